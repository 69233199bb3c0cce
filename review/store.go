package review

import (
	"context"
	"errors"
)

// ErrRecordNotFound is returned by OutcomeStore.LoadOutcome for unknown
// session ids.
var ErrRecordNotFound = errors.New("outcome record not found")

// OutcomeStore persists completed outcomes as Records.
// Implementations live in review/store.
type OutcomeStore interface {
	// SaveOutcome stores rec, replacing any record with the same session id.
	SaveOutcome(ctx context.Context, rec Record) error

	// LoadOutcome returns the record for sessionID or ErrRecordNotFound.
	LoadOutcome(ctx context.Context, sessionID string) (Record, error)

	// ListOutcomes returns up to limit records, most recently completed
	// first. A limit <= 0 returns all records.
	ListOutcomes(ctx context.Context, limit int) ([]Record, error)

	Close() error
}
