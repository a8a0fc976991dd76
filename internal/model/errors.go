package model

import (
	"errors"
	"fmt"
)

// ErrorKind tags every error that crosses a component boundary, replacing
// string-matching on RPC error messages with an explicit, typed taxonomy.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindUpstreamUnavailable
	KindCircuitOpen
	KindRateLimited
	KindChainTransient
	KindChainPermanent
	KindStorage
	KindDuplicate
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	case KindCircuitOpen:
		return "circuit_open"
	case KindRateLimited:
		return "rate_limited"
	case KindChainTransient:
		return "chain_transient"
	case KindChainPermanent:
		return "chain_permanent"
	case KindStorage:
		return "storage"
	case KindDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// RelayerError is the concrete error type for every classified failure in
// the system. Call sites branch on Kind() via errors.As, never on
// strings.Contains(err.Error(), ...).
type RelayerError struct {
	kind ErrorKind
	msg  string
	err  error
}

func newErr(kind ErrorKind, msg string, cause error) *RelayerError {
	return &RelayerError{kind: kind, msg: msg, err: cause}
}

func (e *RelayerError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *RelayerError) Unwrap() error { return e.err }

func (e *RelayerError) Kind() ErrorKind { return e.kind }

func ValidationError(msg string) error { return newErr(KindValidation, msg, nil) }

func UpstreamUnavailable(msg string, cause error) error {
	return newErr(KindUpstreamUnavailable, msg, cause)
}

func CircuitOpenError(msg string) error { return newErr(KindCircuitOpen, msg, nil) }

func RateLimitedError(msg string, cause error) error {
	return newErr(KindRateLimited, msg, cause)
}

func ChainTransientError(msg string, cause error) error {
	return newErr(KindChainTransient, msg, cause)
}

func ChainPermanentError(msg string, cause error) error {
	return newErr(KindChainPermanent, msg, cause)
}

func StorageError(msg string, cause error) error {
	return newErr(KindStorage, msg, cause)
}

func DuplicateError(msg string) error { return newErr(KindDuplicate, msg, nil) }

// KindOf extracts the ErrorKind from err, returning KindUnknown if err is
// not (or does not wrap) a *RelayerError.
func KindOf(err error) ErrorKind {
	var re *RelayerError
	if errors.As(err, &re) {
		return re.kind
	}
	return KindUnknown
}
