package varint_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mumble.info/grumble/pkg/varint"
)

func TestRoundTrip(t *testing.T) {
	values := []uint64{
		0, 1, 0x7F, 0x80, 0x3FFF, 0x4000,
		0x1FFFFF, 0x200000, 0xFFFFFFF, 0x10000000,
		0xFFFFFFFF, 0x100000000, 1 << 40, ^uint64(0),
	}
	for _, v := range values {
		buf := varint.Encode(nil, v)
		got, n, err := varint.Decode(buf)
		require.NoError(t, err)
		require.Equal(t, len(buf), n)
		require.Equal(t, v, got)
	}
}

func TestDecodeTruncated(t *testing.T) {
	_, _, err := varint.Decode([]byte{0xF0, 0x01})
	require.ErrorIs(t, err, varint.ErrTruncated)

	_, _, err = varint.Decode(nil)
	require.ErrorIs(t, err, varint.ErrTruncated)
}

func TestEncodeNegative(t *testing.T) {
	buf := varint.EncodeNegative(nil, -5)
	v, n, err := varint.DecodeInt64(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Equal(t, int64(-5), v)
}
