// Package rpc implements the Hub<->Edge control-plane transport: a
// single TLS stream per Edge carrying length-prefixed MessagePack
// frames typed request/response/notification/ping/pong (§4.14).
package rpc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"mumble.info/grumble/pkg/errs"
)

// FrameKind identifies one of the five frame shapes exchanged over the
// control stream.
type FrameKind uint8

const (
	KindRequest FrameKind = iota
	KindResponse
	KindNotification
	KindPing
	KindPong
)

// MaxFrameSize bounds a single RPC frame, guarding against a
// malformed or hostile length prefix.
const MaxFrameSize = 16 * 1024 * 1024

// ErrFrameTooLarge is returned when a frame's declared length exceeds
// MaxFrameSize.
var ErrFrameTooLarge = errors.New("rpc: frame exceeds maximum size")

// Frame is one length-prefixed MessagePack message on the wire:
// `(kind:u8, length:u32 BE, payload[length])`.
type Frame struct {
	Kind    FrameKind
	Payload []byte
}

// WriteFrame serializes and writes one frame.
func WriteFrame(w io.Writer, kind FrameKind, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	header := make([]byte, 5)
	header[0] = byte(kind)
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one frame from r.
func ReadFrame(r io.Reader) (Frame, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return Frame{}, err
	}

	length := binary.BigEndian.Uint32(header[1:])
	if length > MaxFrameSize {
		return Frame{}, ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, err
		}
	}

	return Frame{Kind: FrameKind(header[0]), Payload: payload}, nil
}

// Envelope is the MessagePack payload of a request/response/
// notification frame (§4.14 `{id, method, params | result | error}`).
type Envelope struct {
	ID     uint64             `msgpack:"id,omitempty"`
	Method string             `msgpack:"method,omitempty"`
	Params msgpack.RawMessage `msgpack:"params,omitempty"`
	Result msgpack.RawMessage `msgpack:"result,omitempty"`
	Error  *errs.WireError    `msgpack:"error,omitempty"`
}

// EncodeEnvelope marshals env to MessagePack bytes.
func EncodeEnvelope(env *Envelope) ([]byte, error) {
	b, err := msgpack.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("rpc: encode envelope: %w", err)
	}
	return b, nil
}

// DecodeEnvelope unmarshals MessagePack bytes into an Envelope.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("rpc: decode envelope: %w", err)
	}
	return &env, nil
}

// EncodeParams marshals a typed params/result value for embedding in
// an Envelope.
func EncodeParams(v interface{}) (msgpack.RawMessage, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, err
	}
	return msgpack.RawMessage(b), nil
}

// DecodeParams unmarshals an Envelope's params/result into a typed
// destination.
func DecodeParams(raw msgpack.RawMessage, dst interface{}) error {
	return msgpack.Unmarshal(raw, dst)
}
