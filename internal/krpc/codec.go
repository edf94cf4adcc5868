package krpc

import (
	"github.com/zeebo/bencode"
)

// Decode parses a datagram. The returned *Error, if not nil, describes the error
// reply that should be sent back and carries the transaction id to echo.
//
// A packet that is not a dictionary with a "t" key fails with ProtocolError.
// A packet without the body named by its "y" key fails with MethodUnknown.
// A query without a "q" string or an "a" dictionary containing an id fails with ProtocolError.
func Decode(b []byte) (*Message, *Error) {
	var v interface{}
	if err := bencode.DecodeBytes(b, &v); err != nil {
		return nil, NewError(ProtocolError, "")
	}
	d, ok := v.(map[string]interface{})
	if !ok {
		return nil, NewError(ProtocolError, "")
	}
	t, ok := d["t"].(string)
	if !ok {
		return nil, NewError(ProtocolError, "")
	}
	y, ok := d["y"].(string)
	if !ok {
		return nil, NewError(MethodUnknown, t)
	}
	body, ok := d[y]
	if !ok {
		return nil, NewError(MethodUnknown, t)
	}
	m := &Message{T: t, Y: y}
	switch y {
	case TypeQuery:
		m.Q, ok = body.(string)
		if !ok {
			return nil, NewError(ProtocolError, t)
		}
		m.A, ok = d["a"].(map[string]interface{})
		if !ok {
			return nil, NewError(ProtocolError, t)
		}
		if _, err := idField(m.A, "id"); err != nil {
			return nil, NewError(ProtocolError, t)
		}
	case TypeResponse:
		// Malformed responses are not answered, they are rejected by ParseReply.
		m.R, _ = body.(map[string]interface{})
	case TypeError:
		m.E, _ = body.([]interface{})
	}
	return m, nil
}

func encode(v interface{}) ([]byte, error) {
	return bencode.EncodeBytes(v)
}
