// Package errs defines the failure taxonomy of the input generator. Every
// stage returns one of these types (possibly wrapped) and none of them is
// ever recovered locally: a swallowed error here would surface later as a
// witness that silently fails to prove.
package errs

import "fmt"

// MalformedEmailError reports an email whose structure cannot be parsed:
// missing header/body separator, missing required header, unparseable
// DKIM-Signature tags.
type MalformedEmailError struct {
	Reason string
	Err    error
}

func (e *MalformedEmailError) Error() string { return format("malformed email", e.Reason, e.Err) }
func (e *MalformedEmailError) Unwrap() error { return e.Err }

// SignatureInvalidError reports a DKIM signature that does not verify, or
// whose key cannot be obtained.
type SignatureInvalidError struct {
	Reason string
	Err    error
}

func (e *SignatureInvalidError) Error() string { return format("invalid signature", e.Reason, e.Err) }
func (e *SignatureInvalidError) Unwrap() error { return e.Err }

// InputTooLargeError reports a value that exceeds the circuit capacity.
type InputTooLargeError struct {
	What  string
	Size  int
	Limit int
}

func (e *InputTooLargeError) Error() string {
	return fmt.Sprintf("input too large: %s is %d bytes, limit %d", e.What, e.Size, e.Limit)
}

// RotationMismatchError reports an old relayer hash that cannot be
// reproduced from the email and the previously committed binding.
type RotationMismatchError struct {
	Reason string
	Err    error
}

func (e *RotationMismatchError) Error() string { return format("rotation mismatch", e.Reason, e.Err) }
func (e *RotationMismatchError) Unwrap() error { return e.Err }

// SchemaMismatchError reports assembled signals that do not fit the circuit
// schema. It always means generator and circuit disagree on a version.
type SchemaMismatchError struct {
	Signal string
	Reason string
	Err    error
}

func (e *SchemaMismatchError) Error() string {
	return format("schema mismatch", e.Signal+": "+e.Reason, e.Err)
}
func (e *SchemaMismatchError) Unwrap() error { return e.Err }

func format(kind, reason string, err error) string {
	if err == nil {
		return kind + ": " + reason
	}
	return fmt.Sprintf("%s: %s: %v", kind, reason, err)
}
