package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EntityStore reads and writes canonical entities. Lookups never return the
// whole entity set at once.
type EntityStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*CanonicalEntity, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]CanonicalEntity, error)
	// FindCandidates returns unabsorbed entities whose canonical text or any
	// alias equals one of texts (case-insensitive), or whose key is in keys.
	FindCandidates(ctx context.Context, texts []string, keys []string) ([]CanonicalEntity, error)
	// List pages through unabsorbed entities ordered by id.
	List(ctx context.Context, after uuid.UUID, limit int) ([]CanonicalEntity, error)
	ListVisible(ctx context.Context, minScore float64) ([]CanonicalEntity, error)
	ListConflicts(ctx context.Context) ([]CanonicalEntity, error)
	Update(ctx context.Context, e *CanonicalEntity) error
}

type CitationStore interface {
	GetByURLs(ctx context.Context, urls []string) ([]CitationReference, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]CitationReference, error)
}

type MergeDecisionStore interface {
	GetDecision(ctx context.Context, a, b uuid.UUID) (*MergeDecision, error)
	ListByEntity(ctx context.Context, entityID uuid.UUID) ([]MergeDecision, error)
}

// Batch is one unit of durable work. Everything in it commits or nothing does.
type Batch struct {
	ImportID  string
	Index     int
	Entities  []*CanonicalEntity
	Citations []*CitationReference
	Decisions []MergeDecision
}

func (b *Batch) Empty() bool {
	return len(b.Entities) == 0 && len(b.Citations) == 0 && len(b.Decisions) == 0
}

type BatchCommitter interface {
	// CommitBatch writes the batch atomically. When ImportID is set the batch
	// index is recorded as that import's checkpoint in the same transaction.
	CommitBatch(ctx context.Context, b *Batch) error
	// LastCommittedBatch returns the highest committed batch index of an
	// import, or -1 when none has been committed.
	LastCommittedBatch(ctx context.Context, importID string) (int, error)
}

// WriteLocker serializes every read-modify-write of the entity graph, so
// an entity is never written from two operations at once. unlock is safe to
// call more than once.
type WriteLocker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// SuggestionStore is the Tier C side store, kept apart from the entity graph.
type SuggestionStore interface {
	Enqueue(ctx context.Context, s MergeSuggestion) (bool, error)
	Get(ctx context.Context, a, b uuid.UUID) (*MergeSuggestion, error)
	ListPending(ctx context.Context) ([]MergeSuggestion, error)
	Update(ctx context.Context, s MergeSuggestion) error
	Remove(ctx context.Context, a, b uuid.UUID) error
	// ReserveSurface logs one surfacing of pairKey at at, unless limit
	// surfacings are already logged at or after since. The check and the
	// write are one atomic step.
	ReserveSurface(ctx context.Context, pairKey string, at, since time.Time, limit int) (bool, error)
	CountSurfacedSince(ctx context.Context, since time.Time) (int, error)
}

// ReviewQueue holds entities flagged for human review after a merge conflict.
type ReviewQueue interface {
	PushConflict(ctx context.Context, entityID uuid.UUID) error
	ListConflicts(ctx context.Context) ([]uuid.UUID, error)
	RemoveConflict(ctx context.Context, entityID uuid.UUID) error
}

type SweepMarker interface {
	LastSweep(ctx context.Context) (time.Time, error)
	MarkSweep(ctx context.Context, at time.Time) error
}

type PersonaStatusStore interface {
	GetStatus(ctx context.Context, personaID string) (PersonaStatus, error)
	SetStatus(ctx context.Context, personaID string, status PersonaStatus) error
}

// SideStore bundles the small keyed stores that live outside the entity graph.
type SideStore interface {
	SuggestionStore
	ReviewQueue
	SweepMarker
	PersonaStatusStore
}
