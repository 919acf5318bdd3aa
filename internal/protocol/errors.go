package protocol

import (
	"errors"
	"fmt"
)

// Kind groups protocol errors by how a caller should react to them. Every
// kind is fatal to the operation that produced it.
type Kind uint8

const (
	KindAuthorization Kind = iota + 1
	KindValidation
	KindCapacity
	KindStateConflict
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindCapacity:
		return "capacity"
	case KindStateConflict:
		return "state_conflict"
	default:
		return "unknown"
	}
}

// Code names the specific rule that rejected an operation.
type Code string

const (
	CodeUnauthorized        Code = "Unauthorized"
	CodeInvalidAmount       Code = "InvalidAmount"
	CodeInvalidVendor       Code = "InvalidVendor"
	CodeVendorInactive      Code = "VendorInactive"
	CodeInvalidDueDate      Code = "InvalidDueDate"
	CodeWrongOrg            Code = "WrongOrg"
	CodeWrongMint           Code = "WrongMint"
	CodeInvalidWallet       Code = "InvalidWallet"
	CodeInvalidIPFSHash     Code = "InvalidIPFSHash"
	CodeInvalidAuditRate    Code = "InvalidAuditRate"
	CodeConstraintSeeds     Code = "ConstraintSeeds"
	CodeInsufficientFunds   Code = "InsufficientFunds"
	CodeOverflow            Code = "Overflow"
	CodePaymentOverdue      Code = "PaymentOverdue"
	CodeCapExceeded         Code = "CapExceeded"
	CodeDailyCapExceeded    Code = "DailyCapExceeded"
	CodeOrgPaused           Code = "OrgPaused"
	CodeInvalidStatus       Code = "InvalidStatus"
	CodeAlreadyExists       Code = "AlreadyExists"
	CodeNotFound            Code = "NotFound"
	CodeVendorAlreadyActive Code = "VendorAlreadyActive"
	CodeEscrowFunded        Code = "EscrowFunded"
)

var codeKinds = map[Code]Kind{
	CodeUnauthorized:        KindAuthorization,
	CodeInvalidAmount:       KindValidation,
	CodeInvalidVendor:       KindValidation,
	CodeVendorInactive:      KindValidation,
	CodeInvalidDueDate:      KindValidation,
	CodeWrongOrg:            KindValidation,
	CodeWrongMint:           KindValidation,
	CodeInvalidWallet:       KindValidation,
	CodeInvalidIPFSHash:     KindValidation,
	CodeInvalidAuditRate:    KindValidation,
	CodeConstraintSeeds:     KindValidation,
	CodeInsufficientFunds:   KindValidation,
	CodeOverflow:            KindValidation,
	CodePaymentOverdue:      KindValidation,
	CodeCapExceeded:         KindCapacity,
	CodeDailyCapExceeded:    KindCapacity,
	CodeOrgPaused:           KindCapacity,
	CodeInvalidStatus:       KindStateConflict,
	CodeAlreadyExists:       KindStateConflict,
	CodeNotFound:            KindStateConflict,
	CodeVendorAlreadyActive: KindStateConflict,
	CodeEscrowFunded:        KindStateConflict,
}

// Kind returns the kind a code belongs to.
func (c Code) Kind() Kind {
	return codeKinds[c]
}

// Error is returned by every rejected protocol operation.
type Error struct {
	Kind   Kind
	Code   Code
	Op     string
	Detail string
	Err    error
}

func newError(op string, code Code, format string, args ...any) *Error {
	return &Error{Kind: code.Kind(), Code: code, Op: op, Detail: fmt.Sprintf(format, args...)}
}

func wrapError(op string, code Code, err error) *Error {
	return &Error{Kind: code.Kind(), Code: code, Op: op, Detail: err.Error(), Err: err}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s error %s", e.Op, e.Kind, e.Code)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code, so callers can test with a bare
// &Error{Code: ...} target.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the protocol code carried by err, or "" when err is not a
// protocol error.
func CodeOf(err error) Code {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// KindOf returns the kind carried by err, or 0 when err is not a protocol
// error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}

// IsCode reports whether err carries code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
