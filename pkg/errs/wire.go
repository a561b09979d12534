package errs

import "errors"

// WireError is the msgpack-encoded error object carried in RPC
// responses across the Edge/Hub boundary (§4.14), preserving Kind so
// the receiving side can classify without string matching.
type WireError struct {
	Kind    Kind   `msgpack:"kind"`
	Message string `msgpack:"message"`
}

// ToWire converts a classified error into its wire form.
func ToWire(err error) *WireError {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return &WireError{Kind: e.Kind, Message: e.Message}
	}
	return &WireError{Kind: Internal, Message: err.Error()}
}

// FromWire reconstructs a classified error from its wire form.
func (w *WireError) FromWire() *Error {
	if w == nil {
		return nil
	}
	return &Error{Kind: w.Kind, Message: w.Message}
}
