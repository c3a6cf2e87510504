package integration

import (
	"errors"
	"fmt"
)

// TransportError signals a connectivity failure talking to the remote system:
// refused connections, DNS failures, timeouts. It is the one failure class
// the runner always re-raises, because the surrounding pipeline cannot make
// progress against an unreachable dependency.
type TransportError struct {
	Service    string
	Underlying error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("service %s unavailable: %v", e.Service, e.Underlying)
}

func (e *TransportError) Unwrap() error { return e.Underlying }

// NewTransportError wraps a connectivity failure.
func NewTransportError(service string, underlying error) *TransportError {
	return &TransportError{Service: service, Underlying: underlying}
}

// RemoteError signals that the remote system responded but reported an
// application-level failure. The runner records it and swallows it so a
// single misbehaving integration does not abort the whole pipeline.
type RemoteError struct {
	Service string
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("service %s remote error [%s]: %s", e.Service, e.Code, e.Message)
	}
	return fmt.Sprintf("service %s remote error: %s", e.Service, e.Message)
}

// NewRemoteError wraps an application-level error response.
func NewRemoteError(service, code, message string) *RemoteError {
	return &RemoteError{Service: service, Code: code, Message: message}
}

// RejectError is a business policy decision, not a fault. It always
// propagates out of the runner and ends with the subject transitioned to
// REJECTED carrying Reason.
type RejectError struct {
	Reason string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("application rejected: %s", e.Reason)
}

// NewRejectError creates a rejection with a human-readable reason code.
func NewRejectError(reason string) *RejectError {
	return &RejectError{Reason: reason}
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// AsReject extracts a RejectError if err is (or wraps) one.
func AsReject(err error) (*RejectError, bool) {
	var re *RejectError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
