package domain

import (
	"context"

	"github.com/questdex/questdex/internal/semver"
)

// QuestRepository defines the persistence interface for quest records.
// Implementations may use SQLite, in-memory storage, or other
// backends. All methods accept a context so caller deadlines propagate
// into the underlying store; cancellation never leaves a partial
// record because every write is a single atomic statement or
// transaction.
type QuestRepository interface {
	// Register persists a new record and sets its ID. Uniqueness over
	// (name, version including build metadata) is enforced by the
	// store itself, so of two concurrent registrations of the same
	// version exactly one succeeds and the other receives
	// DuplicateVersionError.
	Register(ctx context.Context, quest *Quest) error

	// Get retrieves a record by exact version. When the query version
	// carries build metadata the full version must match; without it,
	// build metadata is ignored and the most recently registered
	// matching record wins. Returns QuestNotFoundError on absence.
	Get(ctx context.Context, name string, version semver.Version) (*Quest, error)

	// FindByName retrieves every record registered under name, ordered
	// by version precedence descending with registration recency as
	// the tiebreak. An unknown name yields an empty slice, not an
	// error.
	FindByName(ctx context.Context, name string) ([]*Quest, error)

	// ListVersions returns every version registered under name,
	// ascending by version precedence. An unknown name yields an
	// empty slice.
	ListVersions(ctx context.Context, name string) ([]semver.Version, error)

	// ListNames returns the distinct names of all registered quests in
	// lexicographic order.
	ListNames(ctx context.Context) ([]string, error)

	// Remove deletes records matching the version; build metadata
	// narrows the match the same way as Get, except that without build
	// metadata every build variant of the version is removed. Returns
	// QuestNotFoundError when nothing matches. Administrative use
	// only; not part of the normal flow.
	Remove(ctx context.Context, name string, version semver.Version) error

	// Close releases any resources held by the repository.
	Close() error
}
