package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrRateLimited      = errors.New("rate limited")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrWSDisconnect     = errors.New("websocket disconnected")
	ErrLockHeld         = errors.New("lock already held")
	ErrFeatureArity     = errors.New("feature arity mismatch")
	ErrConnectivityLost = errors.New("connectivity lost")
	ErrNotFilled        = errors.New("order not filled")
)

// MalformedBookError reports a raw snapshot that could not be normalized.
type MalformedBookError struct {
	Reason string
}

func (e *MalformedBookError) Error() string {
	return "malformed book: " + e.Reason
}

// FeatureComputationError reports a snapshot whose features are undefined,
// for example zero volume on both sides.
type FeatureComputationError struct {
	Feature string
	Reason  string
}

func (e *FeatureComputationError) Error() string {
	return fmt.Sprintf("feature %s: %s", e.Feature, e.Reason)
}

// ScoringServiceError wraps a failure of the external scoring collaborator.
type ScoringServiceError struct {
	Err error
}

func (e *ScoringServiceError) Error() string {
	return "scoring service: " + e.Err.Error()
}

func (e *ScoringServiceError) Unwrap() error { return e.Err }

// RiskReason names the limit a signal violated.
type RiskReason string

const (
	RiskReasonMaxPosition RiskReason = "max_position"
	RiskReasonMaxLoss     RiskReason = "max_loss"
)

// RiskLimitExceeded is returned by the risk gate when a signal is rejected.
type RiskLimitExceeded struct {
	Reason RiskReason
	Detail string
}

func (e *RiskLimitExceeded) Error() string {
	return fmt.Sprintf("risk limit exceeded (%s): %s", e.Reason, e.Detail)
}

// ExecutionError wraps a failed order placement or simulated fill.
type ExecutionError struct {
	Op  string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution %s: %v", e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
