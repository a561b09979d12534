package framing_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"mumble.info/grumble/pkg/framing"
)

func TestWriteReadFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, framing.WriteFrame(&buf, 7, []byte("hello")))

	f, err := framing.ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, uint16(7), f.Type)
	require.Equal(t, []byte("hello"), f.Payload)
}

func TestReadFrameRejectsOversized(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, framing.WriteFrame(&buf, 1, nil))
	// Corrupt the length field to an oversized value.
	raw := buf.Bytes()
	raw[2], raw[3], raw[4], raw[5] = 0x7F, 0xFF, 0xFF, 0xFF
	_, err := framing.ReadFrame(bytes.NewReader(raw))
	require.ErrorIs(t, err, framing.ErrPayloadTooLarge)
}
