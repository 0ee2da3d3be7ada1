package telemetry

import (
	"errors"
	"fmt"
)

// Sentinels matched through errors.Is on the typed errors below.
var (
	ErrEncoding      = errors.New("payload is not valid utf-8")
	ErrMalformed     = errors.New("malformed payload")
	ErrMissingField  = errors.New("missing required field")
	ErrInvalidValue  = errors.New("invalid field value")
	ErrUnknownDevice = errors.New("unknown device")
	ErrStore         = errors.New("store failure")
	ErrBind          = errors.New("bind failure")
)

// DecodeKind enumerates the ways a payload can be rejected by a decoder.
type DecodeKind int

const (
	KindEncoding DecodeKind = iota
	KindMalformed
	KindMissingField
	KindInvalidValue
)

func (k DecodeKind) String() string {
	switch k {
	case KindEncoding:
		return "encoding"
	case KindMalformed:
		return "malformed"
	case KindMissingField:
		return "missing_field"
	case KindInvalidValue:
		return "invalid_value"
	default:
		return "unknown"
	}
}

// DecodeError rejects a whole payload. Field is set for missing and invalid
// field errors; Err carries the underlying parse failure when there is one.
type DecodeError struct {
	Kind  DecodeKind
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case KindEncoding:
		return ErrEncoding.Error()
	case KindMissingField:
		return fmt.Sprintf("%s: %s", ErrMissingField, e.Field)
	case KindInvalidValue:
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", ErrInvalidValue, e.Field, e.Err)
		}
		return fmt.Sprintf("%s: %s", ErrInvalidValue, e.Field)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", ErrMalformed, e.Err)
		}
		return ErrMalformed.Error()
	}
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is lets errors.Is match a DecodeError against the sentinel of its kind.
func (e *DecodeError) Is(target error) bool {
	switch target {
	case ErrEncoding:
		return e.Kind == KindEncoding
	case ErrMalformed:
		return e.Kind == KindMalformed
	case ErrMissingField:
		return e.Kind == KindMissingField
	case ErrInvalidValue:
		return e.Kind == KindInvalidValue
	}
	return false
}

// Missing builds a missing-field error.
func Missing(field string) *DecodeError {
	return &DecodeError{Kind: KindMissingField, Field: field}
}

// Invalid builds an invalid-value error.
func Invalid(field string, err error) *DecodeError {
	return &DecodeError{Kind: KindInvalidValue, Field: field, Err: err}
}

// Malformed builds a malformed-payload error.
func Malformed(err error) *DecodeError {
	return &DecodeError{Kind: KindMalformed, Err: err}
}

// UnknownDeviceError is returned by the router for ids with no destination.
type UnknownDeviceError struct {
	DeviceID int
}

func (e *UnknownDeviceError) Error() string {
	return fmt.Sprintf("%s: %d", ErrUnknownDevice, e.DeviceID)
}

func (e *UnknownDeviceError) Is(target error) bool { return target == ErrUnknownDevice }

// StoreKind enumerates persistent sink failures.
type StoreKind int

const (
	StoreConnection StoreKind = iota
	StoreTimeout
	StoreConstraint
	StoreRejected
)

func (k StoreKind) String() string {
	switch k {
	case StoreConnection:
		return "connection"
	case StoreTimeout:
		return "timeout"
	case StoreConstraint:
		return "constraint"
	case StoreRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// StoreError reports a failed insert. It never stops ingestion.
type StoreError struct {
	Kind  StoreKind
	Table string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s (%s) on %q: %v", ErrStore, e.Kind, e.Table, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStore }

// BindError is the only fatal listener error.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("%s on %s: %v", ErrBind, e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

func (e *BindError) Is(target error) bool { return target == ErrBind }

// Classify returns a stable label for logs and metrics.
func Classify(err error) string {
	var (
		decodeErr *DecodeError
		storeErr  *StoreError
	)
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &decodeErr):
		return decodeErr.Kind.String()
	case errors.Is(err, ErrUnknownDevice):
		return "unknown_device"
	case errors.As(err, &storeErr):
		return "store_" + storeErr.Kind.String()
	case errors.Is(err, ErrBind):
		return "bind"
	default:
		return "internal"
	}
}
