// Package errors provides structured error handling for the arena core.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Structural rejections: the item never reaches staging.
	CodeRejectStructural     Code = "REJECT_STRUCTURAL"
	CodeRejectMissingKey     Code = "REJECT_MISSING_KEY"
	CodeRejectMissingInputID Code = "REJECT_MISSING_INPUT_ID"
	CodeRejectReservedSeq    Code = "REJECT_RESERVED_SEQUENCE_FIELD"
	CodeRejectUnknownKind    Code = "REJECT_UNKNOWN_KIND"
	CodeRejectInvalidPayload Code = "REJECT_INVALID_PAYLOAD"

	// Capacity rejections: a staging window or ring is full.
	CodeRejectOverflowKey    Code = "REJECT_OVERFLOW_PER_KEY"
	CodeRejectOverflowGlobal Code = "REJECT_OVERFLOW_GLOBAL"
	CodeRejectRingFull       Code = "REJECT_RING_FULL"

	// Staleness rejection: the targeted window is already frozen.
	CodeRejectStale Code = "REJECT_STALE_WINDOW"

	// Scheduler and wiring errors.
	CodeLoopInvalidPeriod   Code = "LOOP_INVALID_PERIOD"
	CodeStagingInvalidCaps  Code = "STAGING_INVALID_CAPS"
	CodePolicyUnimplemented Code = "OVERFLOW_POLICY_UNIMPLEMENTED"
	CodeRingInvalidCapacity Code = "RING_INVALID_CAPACITY"

	// Storage errors.
	CodeNotFound Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes. The transport layer uses
// this to turn rejections into explicit negative acknowledgements.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - structural validation failures
	case CodeRejectStructural,
		CodeRejectMissingKey,
		CodeRejectMissingInputID,
		CodeRejectReservedSeq,
		CodeRejectUnknownKind,
		CodeRejectInvalidPayload:
		return codes.InvalidArgument

	// ResourceExhausted - capacity caps hit, drop-newest applied
	case CodeRejectOverflowKey,
		CodeRejectOverflowGlobal,
		CodeRejectRingFull:
		return codes.ResourceExhausted

	// FailedPrecondition - the window closed before the item arrived
	case CodeRejectStale:
		return codes.FailedPrecondition

	// NotFound - storage record missing
	case CodeNotFound:
		return codes.NotFound

	default:
		return codes.Internal
	}
}

// IsRejection reports whether the code belongs to the rejection taxonomy,
// as opposed to wiring or storage failures.
func (c Code) IsRejection() bool {
	switch c {
	case CodeRejectStructural,
		CodeRejectMissingKey,
		CodeRejectMissingInputID,
		CodeRejectReservedSeq,
		CodeRejectUnknownKind,
		CodeRejectInvalidPayload,
		CodeRejectOverflowKey,
		CodeRejectOverflowGlobal,
		CodeRejectRingFull,
		CodeRejectStale:
		return true
	default:
		return false
	}
}
