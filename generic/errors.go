/*
errors.go - Centralized error types for the pantry engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Store packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Recoverable reconciliation errors - matching failures, referential
     misses, stale requests. The engine logs them and keeps going.
  2. Caller errors - invalid input, unknown IDs, wrong meal state.
  3. Conversion errors - incompatible units.

USAGE:
  if errors.Is(err, generic.ErrUnitIncompatible) {
      // skip the line, never guess a factor
  }

SEE ALSO:
  - units/units.go: IncompatibleError
  - suggest/payload.go: SuggestionError producers
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMatchingFailure is returned when the suggestion service cannot
	// produce ingredient matches. Scheduling continues with no reservations.
	ErrMatchingFailure = errors.New("ingredient matching failed")

	// ErrSuggestionFailure is returned when recipe suggestions fail.
	ErrSuggestionFailure = errors.New("suggestion request failed")

	// ErrReferentialMiss is returned when a ledger line points at an
	// inventory item that no longer exists.
	ErrReferentialMiss = errors.New("inventory item not found for allocation line")

	// ErrUnitIncompatible is returned when two units have no physical conversion.
	ErrUnitIncompatible = errors.New("incompatible units")

	// ErrStaleRequest is returned when an async response arrives after a
	// newer request for the same operation was issued.
	ErrStaleRequest = errors.New("stale request")

	// ErrInvalidInput covers user input that blocks an action synchronously.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidSlotKey is returned for malformed slot keys.
	ErrInvalidSlotKey = errors.New("invalid slot key")

	ErrItemNotFound     = errors.New("inventory item not found")
	ErrMealNotFound     = errors.New("meal not found")
	ErrLeftoverNotFound = errors.New("leftover not found")

	// ErrAlreadyCooked is returned when cooking a meal that was already cooked
	// without asking for a repeat cook.
	ErrAlreadyCooked = errors.New("meal already cooked")

	// ErrNotCooked is returned when undoing a cook that never happened.
	ErrNotCooked = errors.New("meal not cooked")

	// ErrNotCookDay is returned when a cook/reschedule-with-chain operation is
	// applied to a leftover meal.
	ErrNotCookDay = errors.New("meal is a leftover, not a cook day")

	// ErrNoReceipt is returned when undoing a cook whose deductions were
	// never recorded.
	ErrNoReceipt = errors.New("no cook receipt for meal")

	// ErrSlotReserved is returned when moving a reservation into a slot that
	// already holds another meal's reservation.
	ErrSlotReserved = errors.New("slot already holds a reservation")

	// ErrDocumentNotFound is returned by DocumentStore.Load for unknown names.
	ErrDocumentNotFound = errors.New("document not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// SuggestionKind tags why a suggestion call failed.
type SuggestionKind string

const (
	SuggestionTransport SuggestionKind = "transport" // HTTP / provider error
	SuggestionEmpty     SuggestionKind = "empty"     // no text returned
	SuggestionMalformed SuggestionKind = "malformed" // not JSON
	SuggestionInvalid   SuggestionKind = "invalid"   // JSON failed schema validation
)

// SuggestionError is the Err side of a tagged suggestion result.
type SuggestionError struct {
	Op     string // "match" or "recipes"
	Kind   SuggestionKind
	Reason string
	Cause  error
}

func (e *SuggestionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Kind, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Kind, e.Reason)
}

func (e *SuggestionError) Unwrap() []error {
	sentinel := ErrSuggestionFailure
	if e.Op == "match" {
		sentinel = ErrMatchingFailure
	}
	if e.Cause != nil {
		return []error{sentinel, e.Cause}
	}
	return []error{sentinel}
}

// StaleRequestError records which sequence lost the race.
type StaleRequestError struct {
	Key    string
	Seq    uint64
	Latest uint64
}

func (e *StaleRequestError) Error() string {
	return fmt.Sprintf("stale request for %s: seq %d, latest %d", e.Key, e.Seq, e.Latest)
}

func (e *StaleRequestError) Unwrap() error { return ErrStaleRequest }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidSlotKey) ||
		errors.Is(err, ErrUnitIncompatible)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrMealNotFound) ||
		errors.Is(err, ErrLeftoverNotFound) ||
		errors.Is(err, ErrDocumentNotFound)
}

// IsConflict returns true if the request clashes with the current meal state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyCooked) ||
		errors.Is(err, ErrNotCooked) ||
		errors.Is(err, ErrNotCookDay) ||
		errors.Is(err, ErrNoReceipt) ||
		errors.Is(err, ErrSlotReserved)
}

// IsRecoverable returns true for errors the engine degrades around instead
// of surfacing to the user.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrMatchingFailure) ||
		errors.Is(err, ErrReferentialMiss) ||
		errors.Is(err, ErrStaleRequest)
}
