// Package errors holds the coded domain errors returned by the wallet engine.
package errors

import "strings"

// DomainError is a recoverable business failure identified by a stable code.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is matches any DomainError carrying the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// AdmissionDenied is returned when the risk evaluator rejects an operation.
// It matches both ErrAdmissionDenied and the specific reason.
type AdmissionDenied struct {
	Reason *DomainError
}

func (e *AdmissionDenied) Error() string {
	return "admission denied: " + e.Reason.Message
}

func (e *AdmissionDenied) Unwrap() []error {
	return []error{ErrAdmissionDenied, e.Reason}
}

// Code returns the machine readable code of the first DomainError found in err.
func Code(err error) string {
	for err != nil {
		switch e := err.(type) {
		case *AdmissionDenied:
			return e.Reason.Code
		case *DomainError:
			return e.Code
		case interface{ Unwrap() error }:
			err = e.Unwrap()
		case interface{ Unwrap() []error }:
			errs := e.Unwrap()
			if len(errs) == 0 {
				return ""
			}
			err = errs[0]
		default:
			return ""
		}
	}
	return ""
}

// IsAny reports whether err carries one of the given codes.
func IsAny(err error, codes ...string) bool {
	code := Code(err)
	if code == "" {
		return false
	}
	for _, c := range codes {
		if strings.EqualFold(c, code) {
			return true
		}
	}
	return false
}
