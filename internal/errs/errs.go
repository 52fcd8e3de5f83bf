// Package errs defines the error taxonomy of the routing pipeline and the
// classification helpers the transport layer uses to decide between
// redelivery and dead-lettering.
//
// Classification rules:
//
//   - ReferenceDataError and ConfigurationError are retryable: redelivery can
//     succeed once the reference service recovers or a human fixes the
//     routing configuration.
//   - ValidationError, CAConflictError, IndeterminableCAError and
//     TransformerNotFoundError are terminal: retrying cannot change the
//     outcome, the envelope goes to the dead-letter channel.
//   - DiscardError marks the enumerated soft exits (unsupported schema
//     version, stale message, duplicate event); these are dead-lettered with
//     a reason and acknowledged, never retried.
package errs

import (
	"errors"
	"fmt"
)

// ReferenceDataError indicates a reference lookup failed or returned data
// the pipeline cannot use. Retryable by redelivery.
type ReferenceDataError struct {
	Entity string
	Key    string
	Err    error
}

func (e *ReferenceDataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reference data %s %q: %v", e.Entity, e.Key, e.Err)
	}
	return fmt.Sprintf("reference data %s %q unavailable", e.Entity, e.Key)
}

func (e *ReferenceDataError) Unwrap() error { return e.Err }

// ValidationError indicates the payload does not match the expected
// observation or event shape. Terminal: a retry cannot fix a malformed
// payload.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid payload: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid payload: %s", e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ConfigurationError indicates unusable routing configuration, e.g. an
// unsupported broker selection. Retryable only after a human fix, so it is
// treated as retryable by redelivery to avoid silent data loss, but logged
// at high severity.
type ConfigurationError struct {
	DestinationID string
	Reason        string
}

func (e *ConfigurationError) Error() string {
	if e.DestinationID != "" {
		return fmt.Sprintf("destination %s misconfigured: %s", e.DestinationID, e.Reason)
	}
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// CAConflictError indicates events within one patrol resolved to more than
// one distinct conservation area. Terminal.
type CAConflictError struct {
	UUIDs []string
}

func (e *CAConflictError) Error() string {
	return fmt.Sprintf("conflicting conservation area uuids: %v", e.UUIDs)
}

// IndeterminableCAError indicates no conservation area could be resolved
// from the event types or the segment leader. Terminal.
type IndeterminableCAError struct {
	PatrolID string
}

func (e *IndeterminableCAError) Error() string {
	return fmt.Sprintf("conservation area indeterminable for patrol %q", e.PatrolID)
}

// TransformerNotFoundError indicates no encoder is registered for a
// stream-type/destination-type pair. Terminal.
type TransformerNotFoundError struct {
	StreamType      string
	DestinationType string
}

func (e *TransformerNotFoundError) Error() string {
	return fmt.Sprintf("no transformer for stream type %q and destination type %q",
		e.StreamType, e.DestinationType)
}

// DiscardError marks an envelope that must not be retried nor treated as a
// failure: unsupported version, stale message, already processed.
type DiscardError struct {
	Reason string
}

func (e *DiscardError) Error() string { return "discarded: " + e.Reason }

// Discard reasons used in dead-letter attributes and metrics.
const (
	ReasonUnsupportedVersion = "unsupported_schema_version"
	ReasonTooOld             = "message_too_old"
	ReasonDuplicate          = "already_processed"
)

// Retryable reports whether the transport should redeliver the envelope.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var refErr *ReferenceDataError
	var cfgErr *ConfigurationError
	if errors.As(err, &refErr) || errors.As(err, &cfgErr) {
		return true
	}
	// Unexpected errors default to retry; terminal classes are enumerated.
	return !DeadLetter(err)
}

// DeadLetter reports whether the envelope must be routed to the dead-letter
// channel instead of being retried.
func DeadLetter(err error) bool {
	if err == nil {
		return false
	}
	var valErr *ValidationError
	var caErr *CAConflictError
	var indErr *IndeterminableCAError
	var tnfErr *TransformerNotFoundError
	var disErr *DiscardError
	return errors.As(err, &valErr) ||
		errors.As(err, &caErr) ||
		errors.As(err, &indErr) ||
		errors.As(err, &tnfErr) ||
		errors.As(err, &disErr)
}

// Reason returns the dead-letter reason attribute for a terminal error.
func Reason(err error) string {
	var disErr *DiscardError
	if errors.As(err, &disErr) {
		return disErr.Reason
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return "validation_error"
	}
	var caErr *CAConflictError
	if errors.As(err, &caErr) {
		return "ca_conflict"
	}
	var indErr *IndeterminableCAError
	if errors.As(err, &indErr) {
		return "ca_indeterminable"
	}
	var tnfErr *TransformerNotFoundError
	if errors.As(err, &tnfErr) {
		return "transformer_not_found"
	}
	return "error"
}
