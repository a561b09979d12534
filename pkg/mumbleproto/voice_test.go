package mumbleproto_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mumble.info/grumble/pkg/mumbleproto"
)

func TestVoicePacketRoundTripClientToServer(t *testing.T) {
	in := &mumbleproto.VoicePacket{
		Codec:    mumbleproto.CodecOpus,
		Target:   0,
		Sequence: 128,
		Payload:  []byte{0x01, 0x02, 0x03},
	}
	data := in.Marshal(false)

	got, err := mumbleproto.ParseVoicePacket(data, false)
	require.NoError(t, err)
	require.Equal(t, in.Codec, got.Codec)
	require.Equal(t, in.Target, got.Target)
	require.Equal(t, in.Sequence, got.Sequence)
	require.Equal(t, in.Payload, got.Payload)
}

func TestVoicePacketRoundTripWithSession(t *testing.T) {
	in := &mumbleproto.VoicePacket{
		Codec:    mumbleproto.CodecCELTBeta,
		Target:   5,
		Session:  99,
		Sequence: 7,
		Payload:  []byte("frame"),
	}
	data := in.Marshal(true)

	got, err := mumbleproto.ParseVoicePacket(data, true)
	require.NoError(t, err)
	require.Equal(t, in, got)
}

func TestVoicePacketPingEchoesTimestamp(t *testing.T) {
	in := &mumbleproto.VoicePacket{
		Codec:     mumbleproto.CodecPing,
		Target:    0,
		Sequence:  1,
		Timestamp: 1234567,
		Payload:   nil,
	}
	data := in.Marshal(false)

	got, err := mumbleproto.ParseVoicePacket(data, false)
	require.NoError(t, err)
	require.Equal(t, in.Timestamp, got.Timestamp)
	require.Empty(t, got.Payload)
}

func TestParseVoicePacketTooShort(t *testing.T) {
	_, err := mumbleproto.ParseVoicePacket(nil, false)
	require.Error(t, err)
}

func TestEdgeVoiceHeaderRoundTrip(t *testing.T) {
	h := &mumbleproto.EdgeVoiceHeader{
		Version:  1,
		SenderID: 10,
		TargetID: mumbleproto.EdgeBroadcastTarget,
		Sequence: 55,
		Codec:    byte(mumbleproto.CodecOpus),
	}
	inner := []byte{0xAA, 0xBB, 0xCC}
	full := append(h.Marshal(), inner...)

	gotHeader, gotInner, err := mumbleproto.ParseEdgeVoiceHeader(full)
	require.NoError(t, err)
	require.Equal(t, h, gotHeader)
	require.Equal(t, inner, gotInner)
}

func TestParseEdgeVoiceHeaderTooShort(t *testing.T) {
	_, _, err := mumbleproto.ParseEdgeVoiceHeader(make([]byte, mumbleproto.EdgeHeaderSize-1))
	require.Error(t, err)
}
