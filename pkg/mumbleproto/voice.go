package mumbleproto

import (
	"errors"

	"mumble.info/grumble/pkg/varint"
)

// Voice codec identifiers packed into the top 3 bits of a voice
// datagram's first byte (§4.4).
type VoiceCodec byte

const (
	CodecCELTAlpha VoiceCodec = 0
	CodecPing      VoiceCodec = 1
	CodecSpeex     VoiceCodec = 2
	CodecCELTBeta  VoiceCodec = 3
	CodecOpus      VoiceCodec = 4
)

// ErrShortVoicePacket is returned when a datagram is too short to hold
// its mandatory header fields.
var ErrShortVoicePacket = errors.New("mumbleproto: voice packet too short")

// VoicePacket is a decoded client voice datagram (§4.4). Session is
// only present on server-emitted (outbound-to-client) or forwarded
// packets; client-to-server packets omit it and Session is left 0.
type VoicePacket struct {
	Codec     VoiceCodec
	Target    byte
	Session   uint32
	Sequence  uint64
	Payload   []byte
	Timestamp uint64 // valid only when Codec == CodecPing
}

// ParseVoicePacket decodes a plaintext voice datagram body (after OCB2
// decryption strips the crypto header/tag). hasSession selects whether
// a session varint is present before the sequence varint, matching the
// server-side/forwarded framing; client-to-server packets never carry
// one.
func ParseVoicePacket(data []byte, hasSession bool) (*VoicePacket, error) {
	if len(data) < 1 {
		return nil, ErrShortVoicePacket
	}
	head := data[0]
	data = data[1:]

	pkt := &VoicePacket{
		Codec:  VoiceCodec(head >> 5),
		Target: head & 0x1F,
	}

	if hasSession {
		session, n, err := varint.Decode(data)
		if err != nil {
			return nil, err
		}
		pkt.Session = uint32(session)
		data = data[n:]
	}

	seq, n, err := varint.Decode(data)
	if err != nil {
		return nil, err
	}
	pkt.Sequence = seq
	data = data[n:]

	if pkt.Codec == CodecPing {
		ts, n, err := varint.Decode(data)
		if err != nil {
			return nil, err
		}
		pkt.Timestamp = ts
		pkt.Payload = data[n:]
		return pkt, nil
	}

	pkt.Payload = data
	return pkt, nil
}

// Marshal re-serializes the packet into the plaintext layout consumed
// by ParseVoicePacket / OCB2 encryption.
func (p *VoicePacket) Marshal(withSession bool) []byte {
	head := byte(p.Codec)<<5 | (p.Target & 0x1F)
	buf := []byte{head}

	if withSession {
		buf = varint.Encode(buf, uint64(p.Session))
	}
	buf = varint.Encode(buf, p.Sequence)

	if p.Codec == CodecPing {
		buf = varint.Encode(buf, p.Timestamp)
	}
	buf = append(buf, p.Payload...)
	return buf
}

// EdgeHeaderSize is the fixed size of the Edge-to-Edge voice forwarding
// header (§4.10, §5 "Edge↔Edge voice").
const EdgeHeaderSize = 14

// EdgeBroadcastTarget marks an Edge-to-Edge datagram as a server-wide
// broadcast rather than a single destination channel.
const EdgeBroadcastTarget = 0xFFFFFFFF

// EdgeVoiceHeader is prefixed to the original Mumble voice packet bytes
// when one Edge forwards voice to another (§4.10, §5).
type EdgeVoiceHeader struct {
	Version  uint8
	SenderID uint32
	TargetID uint32
	Sequence uint32
	Codec    uint8
}

func putU32(buf []byte, off int, v uint32) {
	buf[off] = byte(v >> 24)
	buf[off+1] = byte(v >> 16)
	buf[off+2] = byte(v >> 8)
	buf[off+3] = byte(v)
}

func getU32(buf []byte, off int) uint32 {
	return uint32(buf[off])<<24 | uint32(buf[off+1])<<16 | uint32(buf[off+2])<<8 | uint32(buf[off+3])
}

// Marshal writes the 14-byte Edge↔Edge header.
func (h *EdgeVoiceHeader) Marshal() []byte {
	buf := make([]byte, EdgeHeaderSize)
	buf[0] = h.Version
	putU32(buf, 1, h.SenderID)
	putU32(buf, 5, h.TargetID)
	putU32(buf, 9, h.Sequence)
	buf[13] = h.Codec
	return buf
}

// ParseEdgeVoiceHeader reads the 14-byte Edge↔Edge header and returns
// the remaining inner Mumble voice packet bytes.
func ParseEdgeVoiceHeader(data []byte) (*EdgeVoiceHeader, []byte, error) {
	if len(data) < EdgeHeaderSize {
		return nil, nil, ErrShortVoicePacket
	}
	h := &EdgeVoiceHeader{
		Version:  data[0],
		SenderID: getU32(data, 1),
		TargetID: getU32(data, 5),
		Sequence: getU32(data, 9),
		Codec:    data[13],
	}
	return h, data[EdgeHeaderSize:], nil
}
