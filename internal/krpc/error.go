package krpc

import (
	"errors"
	"fmt"
)

// Error codes defined in BEP 5.
const (
	GenericError  = 201
	ServerError   = 202
	ProtocolError = 203
	MethodUnknown = 204
)

var errorMessages = map[int]string{
	GenericError:  "Generic Error",
	ServerError:   "Server Error",
	ProtocolError: "Protocol Error, such as a malformed packet, invalid arguments, or bad token",
	MethodUnknown: "Method Unknown",
}

// SentinelTransactionID is echoed in error replies when the offending packet carried no usable transaction id.
const SentinelTransactionID = "er"

// Error is a KRPC error. It is both the body of an "e" message and the error value
// returned from Decode when an inbound packet must be answered with an error.
type Error struct {
	Code    int
	Message string
	// TransactionID of the packet that caused the error.
	TransactionID string
}

// NewError returns an Error with the standard message for code.
func NewError(code int, transactionID string) *Error {
	if transactionID == "" {
		transactionID = SentinelTransactionID
	}
	msg, ok := errorMessages[code]
	if !ok {
		msg = errorMessages[GenericError]
	}
	return &Error{Code: code, Message: msg, TransactionID: transactionID}
}

func (e *Error) Error() string {
	return fmt.Sprintf("krpc error %d: %s", e.Code, e.Message)
}

// Encode returns the bencoded error message.
func (e *Error) Encode() ([]byte, error) {
	return encode(map[string]interface{}{
		"t": e.TransactionID,
		"y": "e",
		"e": []interface{}{int64(e.Code), e.Message},
	})
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
