package bytecode

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode marks malformed instruction streams: branch targets outside
	// the method, exception ranges over unknown pcs.
	ErrDecode = errors.New("malformed bytecode")

	// ErrVerify marks inconsistencies found while simulating the stream:
	// stack underflow, max-stack overflow, mismatched stack heights.
	ErrVerify = errors.New("bytecode verification failed")
)

// DecodeError is a construction-time failure at a specific pc.
type DecodeError struct {
	PC  int
	Msg string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error at pc %d: %s", e.PC, e.Msg)
}

func (e *DecodeError) Unwrap() error { return ErrDecode }

// VerifyError is a simulation-time failure at a specific pc.
type VerifyError struct {
	PC  int
	Msg string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("verify error at pc %d: %s", e.PC, e.Msg)
}

func (e *VerifyError) Unwrap() error { return ErrVerify }

// Decodef builds a *DecodeError.
func Decodef(pc int, format string, args ...interface{}) error {
	return &DecodeError{PC: pc, Msg: fmt.Sprintf(format, args...)}
}

// Verifyf builds a *VerifyError.
func Verifyf(pc int, format string, args ...interface{}) error {
	return &VerifyError{PC: pc, Msg: fmt.Sprintf(format, args...)}
}

// ErrorPC extracts the offending pc from a decode or verify error.
func ErrorPC(err error) (int, bool) {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.PC, true
	}
	var ve *VerifyError
	if errors.As(err, &ve) {
		return ve.PC, true
	}
	return 0, false
}
