package saga

import "context"

// Repository is the persistence seam the orchestrator saves through.
// Declared locally (not in internal/ports) since its *SagaInstance return
// type belongs to this package. Save enforces optimistic concurrency: the
// caller's in-memory SagaInstance.Version must match the stored version or
// Save returns a version-conflict error (§5), mirroring
// internal/ports.StaleVersionError's contract without this package
// importing ports for a single error type.
type Repository interface {
	// Save persists saga at its current Version, incrementing it on
	// success, and drains+forwards its buffered domain events atomically
	// with the write (outbox pattern). Returns a stale-version error if
	// another writer already advanced saga past the caller's expected
	// version.
	Save(ctx context.Context, saga *SagaInstance) error
	FindByID(ctx context.Context, id string) (*SagaInstance, error)
	// FindNonTerminal lists every saga not in a terminal status, used by
	// crash recovery to resume in-flight sagas on startup (§4.5).
	FindNonTerminal(ctx context.Context) ([]*SagaInstance, error)
}
