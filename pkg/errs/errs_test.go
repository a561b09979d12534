package errs_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"mumble.info/grumble/pkg/errs"
)

func TestIsMatchesWrappedKind(t *testing.T) {
	err := fmt.Errorf("dial failed: %w", errs.New(errs.TransientNetwork, "connect to hub"))
	require.True(t, errs.Is(err, errs.TransientNetwork))
	require.False(t, errs.Is(err, errs.Permission))
}

func TestWireRoundTripPreservesKind(t *testing.T) {
	original := errs.New(errs.Permission, "no write access")
	wire := errs.ToWire(original)
	require.Equal(t, errs.Permission, wire.Kind)

	back := wire.FromWire()
	require.Equal(t, errs.Permission, back.Kind)
	require.Equal(t, "no write access", back.Message)
}

func TestUnclassifiedErrorBecomesInternal(t *testing.T) {
	wire := errs.ToWire(fmt.Errorf("boom"))
	require.Equal(t, errs.Internal, wire.Kind)
}
