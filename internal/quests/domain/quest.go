// Package domain provides the pure domain layer for the quest index
// with no infrastructure dependencies.
//
// It defines the Quest entity with encapsulated state, the
// QuestRepository interface for persistence abstraction, and the
// domain-specific error types. The layer has no knowledge of
// databases, HTTP, or any other infrastructure concern.
package domain

import (
	"encoding/json"
	"time"

	"github.com/questdex/questdex/internal/semver"
)

// Quest represents one registered (name, version) record. Records are
// immutable after registration: an update to a quest is modeled as
// registering a new version, never as mutating an existing record.
// All fields are unexported; use the constructor and getters.
type Quest struct {
	id        int64
	guid      string
	name      string
	version   semver.Version
	metadata  json.RawMessage
	createdAt time.Time
}

// NewQuest creates a quest record pending registration. The repository
// assigns the database ID on insert.
func NewQuest(guid, name string, version semver.Version, metadata json.RawMessage) *Quest {
	return &Quest{
		guid:      guid,
		name:      name,
		version:   version,
		metadata:  metadata,
		createdAt: time.Now().UTC(),
	}
}

// ReconstructQuest rebuilds a quest from persisted state. Only
// repository implementations should call this.
func ReconstructQuest(id int64, guid, name string, version semver.Version, metadata json.RawMessage, createdAt time.Time) *Quest {
	return &Quest{
		id:        id,
		guid:      guid,
		name:      name,
		version:   version,
		metadata:  metadata,
		createdAt: createdAt,
	}
}

// ID returns the internal database identifier (0 until registered).
func (q *Quest) ID() int64 { return q.id }

// SetID assigns the database identifier after insertion.
func (q *Quest) SetID(id int64) { q.id = id }

// GUID returns the stable external identifier of the record.
func (q *Quest) GUID() string { return q.guid }

// Name returns the case-sensitive quest name.
func (q *Quest) Name() string { return q.name }

// Version returns the registered semantic version.
func (q *Quest) Version() semver.Version { return q.version }

// Metadata returns the opaque payload registered with this version.
// The index stores and returns it unexamined.
func (q *Quest) Metadata() json.RawMessage { return q.metadata }

// CreatedAt returns the registration time. It is the deterministic
// tiebreak when two records compare equal under version precedence.
func (q *Quest) CreatedAt() time.Time { return q.createdAt }
