package domain

import "errors"

// Class groups engine errors by how a caller is expected to react to them.
type Class int

const (
	ClassUnknown Class = iota
	// ClassValidation: nonsensical input, rejected before any state change.
	ClassValidation
	// ClassPolicy: valid request forbidden by current state or market conditions.
	ClassPolicy
	// ClassStateMachine: operation not valid in the entity's lifecycle phase.
	ClassStateMachine
	// ClassAuthorization: caller or target does not match the expected identity.
	ClassAuthorization
	// ClassResource: broken internal invariant or external shortfall.
	ClassResource
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassPolicy:
		return "policy"
	case ClassStateMachine:
		return "state_machine"
	case ClassAuthorization:
		return "authorization"
	case ClassResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Error is a classified engine error. Values are compared by identity, so
// callers match them with errors.Is.
type Error struct {
	Code  string
	Class Class
	msg   string
}

func (e *Error) Error() string {
	return e.msg
}

func newError(code string, class Class, msg string) *Error {
	return &Error{Code: code, Class: class, msg: msg}
}

// Validation
var (
	ErrInvalidAmount          = newError("InvalidAmount", ClassValidation, "invalid amount")
	ErrInvalidVestingDuration = newError("InvalidVestingDuration", ClassValidation, "invalid vesting duration")
	ErrInvalidCliffDuration   = newError("InvalidCliffDuration", ClassValidation, "invalid cliff duration")
	ErrInvalidFeeBasisPoints  = newError("InvalidFeeBasisPoints", ClassValidation, "fee basis points must not exceed 10000")
)

// Policy
var (
	ErrSlippageExceeded    = newError("SlippageExceeded", ClassPolicy, "slippage tolerance exceeded")
	ErrCliffNotReached     = newError("CliffNotReached", ClassPolicy, "cliff period not reached yet")
	ErrNoTokensToClaim     = newError("NoTokensToClaim", ClassPolicy, "no tokens available to claim")
	ErrThresholdNotReached = newError("ThresholdNotReached", ClassPolicy, "migration threshold not reached")
	ErrNoFeesToWithdraw    = newError("NoFeesToWithdraw", ClassPolicy, "no fees to withdraw")
)

// State machine
var (
	ErrCurveComplete        = newError("CurveComplete", ClassStateMachine, "bonding curve is complete")
	ErrAlreadyMigrated      = newError("AlreadyMigrated", ClassStateMachine, "already migrated to DEX")
	ErrNotMigrated          = newError("NotMigrated", ClassStateMachine, "token not migrated yet")
	ErrLpAlreadyBurned      = newError("LpAlreadyBurned", ClassStateMachine, "LP tokens have already been burned")
	ErrLiquidityLocked      = newError("LiquidityLocked", ClassStateMachine, "migration custody is closed, liquidity is locked")
	ErrPoolExists           = newError("PoolExists", ClassStateMachine, "pool already created for this asset")
	ErrCurveExists          = newError("CurveExists", ClassStateMachine, "bonding curve already initialized")
	ErrCurveNotFound        = newError("CurveNotFound", ClassStateMachine, "bonding curve not found")
	ErrScheduleExists       = newError("ScheduleExists", ClassStateMachine, "vesting schedule already exists")
	ErrScheduleNotFound     = newError("ScheduleNotFound", ClassStateMachine, "vesting schedule not found")
	ErrPolicyExists         = newError("PolicyExists", ClassStateMachine, "global policy already initialized")
	ErrPolicyNotInitialized = newError("PolicyNotInitialized", ClassStateMachine, "global policy not initialized")
	ErrPolicyClosed         = newError("PolicyClosed", ClassStateMachine, "global policy is closed")
)

// Authorization
var (
	ErrUnauthorized    = newError("Unauthorized", ClassAuthorization, "unauthorized")
	ErrInvalidTreasury = newError("InvalidTreasury", ClassAuthorization, "invalid treasury address")
)

// Arithmetic and resource
var (
	ErrArithmeticOverflow          = newError("ArithmeticOverflow", ClassResource, "arithmetic overflow")
	ErrInsufficientTokens          = newError("InsufficientTokens", ClassResource, "insufficient tokens in bonding curve")
	ErrInsufficientSOL             = newError("InsufficientSOL", ClassResource, "insufficient SOL in bonding curve")
	ErrInsufficientFees            = newError("InsufficientFees", ClassResource, "insufficient fees to withdraw")
	ErrInsufficientSOLForMigration = newError("InsufficientSOLForMigration", ClassResource, "insufficient SOL for migration fee and pool liquidity")
	ErrTransferFailed              = newError("TransferFailed", ClassResource, "transfer failed")
)

// ClassOf returns the class of the first classified error in err's chain.
func ClassOf(err error) Class {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ClassUnknown
}

// CodeOf returns the stable code of a classified error, or "" for foreign errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Retryable reports whether the same request may succeed later under
// different market conditions.
func Retryable(err error) bool {
	return ClassOf(err) == ClassPolicy
}
