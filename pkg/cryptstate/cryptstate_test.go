package cryptstate_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mumble.info/grumble/pkg/cryptstate"
)

func pair(t *testing.T) (alice, bob *cryptstate.State) {
	t.Helper()
	alice = cryptstate.New()
	require.NoError(t, alice.GenerateKey())

	bob = cryptstate.New()
	require.NoError(t, bob.Init(alice.Key(), alice.DecryptIV(), alice.EncryptIV()))
	return alice, bob
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	alice, bob := pair(t)

	for i := 0; i < 5; i++ {
		plain := []byte("voice-frame-payload")
		frame := alice.Encrypt(plain)
		got, result, err := bob.Decrypt(frame)
		require.NoError(t, err)
		require.Equal(t, cryptstate.Ok, result)
		require.Equal(t, plain, got)
	}
}

func TestReplayedPacketRejectedOnce(t *testing.T) {
	alice, bob := pair(t)

	frame := alice.Encrypt([]byte("hello"))
	_, result, err := bob.Decrypt(frame)
	require.NoError(t, err)
	require.Equal(t, cryptstate.Ok, result)

	_, result, err = bob.Decrypt(frame)
	require.NoError(t, err)
	require.Equal(t, cryptstate.Replayed, result)
}

func TestOutOfOrderWithinWindowIsLate(t *testing.T) {
	alice, bob := pair(t)

	var frames [][]byte
	for i := 0; i < 5; i++ {
		frames = append(frames, alice.Encrypt([]byte("frame")))
	}

	// Deliver frame 0 first (fast path), then 2, then 1 (late).
	_, r0, err := bob.Decrypt(frames[0])
	require.NoError(t, err)
	require.Equal(t, cryptstate.Ok, r0)

	_, r2, err := bob.Decrypt(frames[2])
	require.NoError(t, err)
	require.Equal(t, cryptstate.Late, r2)

	_, r1, err := bob.Decrypt(frames[1])
	require.NoError(t, err)
	require.Equal(t, cryptstate.Late, r1)
}

func TestInvalidTagRejected(t *testing.T) {
	alice, bob := pair(t)

	frame := alice.Encrypt([]byte("hello"))
	frame[len(frame)-1] ^= 0xFF

	_, result, err := bob.Decrypt(frame)
	require.NoError(t, err)
	require.Equal(t, cryptstate.Invalid, result)
}
