package oracle

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// CodeOK and CodeInvalidAccess are the gateway envelope codes with a fixed
// meaning. Any other non-zero code is a generic gateway error.
const (
	CodeOK            = 0
	CodeInvalidAccess = 4100
)

// AuthError is returned when the gateway rejects the access code. It is
// terminal for the session and must not be retried.
type AuthError struct {
	Msg string
}

func (e *AuthError) Error() string {
	if e.Msg == "" {
		return "oracle: invalid access code"
	}
	return "oracle: invalid access code: " + e.Msg
}

// GatewayError is a non-zero, non-auth gateway code.
type GatewayError struct {
	Code int
	Msg  string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("oracle: gateway error %d: %s", e.Code, e.Msg)
}

// TransportError covers non-2xx responses, network failures, timeouts and
// unreadable response bodies.
type TransportError struct {
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("oracle: request timed out: %v", e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("oracle: unexpected status %d: %v", e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("oracle: transport: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// newTransportError classifies a failed round trip, flagging deadline and
// network timeouts.
func newTransportError(err error) *TransportError {
	te := &TransportError{Err: err}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		te.Timeout = true
	}
	return te
}

// IsAuth reports whether err is an invalid-access-code rejection.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsGateway reports whether err is a generic gateway error.
func IsGateway(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsTimeout reports whether err is a transport timeout.
func IsTimeout(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Timeout
}
