package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess     Code = 0
	CodeInternal    Code = 1
	CodeUsage       Code = 2
	CodeUnavailable Code = 12
	CodeUnsupported Code = 13
	CodeBlocked     Code = 16

	CodeNoEndpointConfigured Code = 20
	CodeNoAvailableEndpoint  Code = 21
	CodeSigningFailed        Code = 22
	CodeTransactionReverted  Code = 23
	CodeReceiptTimeout       Code = 24
	CodeInsufficientApproval Code = 25
	CodeNoPoolFound          Code = 26
	CodeNoRouteFound         Code = 27
	CodeInvalidPathArity     Code = 28
	CodeConflict             Code = 29
)

// Stage names the step of a chain operation that failed.
type Stage string

const (
	StageConnect   Stage = "connect"
	StageBuild     Stage = "build"
	StageSign      Stage = "sign"
	StageBroadcast Stage = "broadcast"
	StageConfirm   Stage = "confirm"
	StageDiagnose  Stage = "diagnose"
	StageRoute     Stage = "route"
	StageEncode    Stage = "encode"
)

// Error is a typed error that carries a stable error code and, for chain
// operations, the failing stage.
type Error struct {
	Code    Code
	Message string
	Cause   error

	Stage  Stage
	Reason string
	Leg    string
	TxHash string
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Stage != "" {
		b.WriteString(string(e.Stage))
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Reason != "" {
		fmt.Fprintf(&b, " (reason: %s)", e.Reason)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// At sets the failing stage and returns the receiver for chaining.
func (e *Error) At(stage Stage) *Error {
	e.Stage = stage
	return e
}

// WithTx records the hash of the broadcast transaction the error refers to.
func (e *Error) WithTx(hash string) *Error {
	e.TxHash = hash
	return e
}

func NoEndpointConfigured(family string) *Error {
	return New(CodeNoEndpointConfigured, fmt.Sprintf("no endpoint configured for chain family %q", family)).At(StageConnect)
}

func NoAvailableEndpoint(tried int, cause error) *Error {
	return Wrap(CodeNoAvailableEndpoint, fmt.Sprintf("no available endpoint (%d probed)", tried), cause).At(StageConnect)
}

func SigningFailed(cause error) *Error {
	return Wrap(CodeSigningFailed, "sign transaction", cause).At(StageSign)
}

func TransactionReverted(txHash, reason string) *Error {
	e := New(CodeTransactionReverted, "transaction reverted").At(StageConfirm).WithTx(txHash)
	e.Reason = reason
	return e
}

func ReceiptTimeout(txHash string, cause error) *Error {
	return Wrap(CodeReceiptTimeout, "timed out waiting for receipt", cause).At(StageConfirm).WithTx(txHash)
}

func InsufficientApproval(token string) *Error {
	return New(CodeInsufficientApproval, fmt.Sprintf("router allowance for %s still insufficient after approval", token)).At(StageBuild)
}

func NoPoolFound(token string) *Error {
	return New(CodeNoPoolFound, fmt.Sprintf("no pool found for %s against wrapped native token", token)).At(StageRoute)
}

func NoRouteFound(leg string, cause error) *Error {
	e := Wrap(CodeNoRouteFound, fmt.Sprintf("no route: %s leg has no pool", leg), cause).At(StageRoute)
	e.Leg = leg
	return e
}

func InvalidPathArity(tokens, fees int) *Error {
	return New(CodeInvalidPathArity, fmt.Sprintf("path needs %d fees for %d tokens, got %d", max(tokens-1, 0), tokens, fees)).At(StageEncode)
}

// Conflict reports on-chain state that forbids the requested write, such as an
// id registered by another account or a task that already finished.
func Conflict(message string) *Error {
	return New(CodeConflict, message).At(StageBuild)
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	for err != nil {
		e, ok := As(err)
		if !ok {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if cliErr, ok := As(err); ok {
		return int(cliErr.Code)
	}
	return int(CodeInternal)
}

// TypeName is the stable snake_case label rendered in error envelopes.
func TypeName(code Code) string {
	switch code {
	case CodeUsage:
		return "usage_error"
	case CodeUnavailable:
		return "unavailable"
	case CodeUnsupported:
		return "unsupported"
	case CodeBlocked:
		return "command_blocked"
	case CodeNoEndpointConfigured:
		return "no_endpoint_configured"
	case CodeNoAvailableEndpoint:
		return "no_available_endpoint"
	case CodeSigningFailed:
		return "signing_failed"
	case CodeTransactionReverted:
		return "transaction_reverted"
	case CodeReceiptTimeout:
		return "receipt_timeout"
	case CodeInsufficientApproval:
		return "insufficient_approval"
	case CodeNoPoolFound:
		return "no_pool_found"
	case CodeNoRouteFound:
		return "no_route_found"
	case CodeInvalidPathArity:
		return "invalid_path_arity"
	case CodeConflict:
		return "conflict"
	default:
		return "internal_error"
	}
}
