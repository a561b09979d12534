package ratelimit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mumble.info/grumble/pkg/ratelimit"
)

func TestBandwidthRecorderRejectsOverCeiling(t *testing.T) {
	b := ratelimit.NewBandwidthRecorder(time.Second)
	now := time.Now()

	require.True(t, b.AddFrame(now, 1000, 5000))
	require.False(t, b.AddFrame(now, 5000, 5000))
}

func TestBandwidthRecorderEvictsOldSamples(t *testing.T) {
	b := ratelimit.NewBandwidthRecorder(100 * time.Millisecond)
	now := time.Now()
	b.AddFrame(now, 10000, 0)
	require.Equal(t, 100000, b.CurrentBps(now))

	later := now.Add(200 * time.Millisecond)
	require.Equal(t, 0, b.CurrentBps(later))
}

func TestPingTrackerAveragesObservations(t *testing.T) {
	p := &ratelimit.PingTracker{}
	p.Observe(10 * time.Millisecond)
	p.Observe(20 * time.Millisecond)
	avg := p.Average()
	require.InDelta(t, 15.0, avg, 0.5)
}

func TestTextLimiterEnforcesPerSessionBucket(t *testing.T) {
	limiter := ratelimit.NewTextLimiter(1, 1)
	require.True(t, limiter.Allow(1))
	require.False(t, limiter.Allow(1))
	// a different session has its own bucket
	require.True(t, limiter.Allow(2))
}

func TestAutoBanTriggersAfterThreshold(t *testing.T) {
	ab := ratelimit.NewAutoBan(2, time.Minute, 10*time.Minute, false)
	now := time.Now()

	require.False(t, ab.RecordFailure("10.0.0.1", now))
	require.False(t, ab.RecordFailure("10.0.0.1", now.Add(time.Second)))
	require.True(t, ab.RecordFailure("10.0.0.1", now.Add(2*time.Second)))
}

func TestAutoBanSuccessResetsCounterWhenNotCounted(t *testing.T) {
	ab := ratelimit.NewAutoBan(2, time.Minute, 10*time.Minute, false)
	now := time.Now()

	ab.RecordFailure("10.0.0.2", now)
	ab.RecordFailure("10.0.0.2", now.Add(time.Second))
	ab.RecordSuccess("10.0.0.2", now.Add(2*time.Second))

	require.False(t, ab.RecordFailure("10.0.0.2", now.Add(3*time.Second)))
}

func TestAutoBanSlidingWindowExpiresOldAttempts(t *testing.T) {
	ab := ratelimit.NewAutoBan(1, 50*time.Millisecond, time.Minute, false)
	now := time.Now()

	require.False(t, ab.RecordFailure("10.0.0.3", now))
	require.False(t, ab.RecordFailure("10.0.0.3", now.Add(100*time.Millisecond)))
}
