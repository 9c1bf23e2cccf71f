package sqlite

import (
	"encoding/json"
	"time"

	"github.com/questdex/questdex/internal/quests/domain"
	"github.com/questdex/questdex/internal/semver"
)

// QuestModel represents the database row for the quests table.
// Version components are stored in separate columns so the store can
// pre-order the bulk of a name's history in SQL; the canonical version
// string is kept alongside for exact retrieval.
type QuestModel struct {
	ID         int64
	GUID       string
	Name       string
	Major      int64
	Minor      int64
	Patch      int64
	Prerelease string
	Build      string
	Version    string
	Metadata   *string // nullable, opaque JSON payload
	CreatedAt  int64   // Unix timestamp in nanoseconds
}

// toQuestModel converts a domain Quest entity to a database row.
func toQuestModel(q *domain.Quest) *QuestModel {
	v := q.Version()
	m := &QuestModel{
		ID:         q.ID(),
		GUID:       q.GUID(),
		Name:       q.Name(),
		Major:      int64(v.Major),
		Minor:      int64(v.Minor),
		Patch:      int64(v.Patch),
		Prerelease: v.Prerelease,
		Build:      v.Build,
		Version:    v.String(),
		CreatedAt:  q.CreatedAt().UnixNano(),
	}
	if len(q.Metadata()) > 0 {
		s := string(q.Metadata())
		m.Metadata = &s
	}
	return m
}

// toDomain converts a database row back to a domain Quest entity.
func (m *QuestModel) toDomain() *domain.Quest {
	version := semver.Version{
		Major:      uint64(m.Major),
		Minor:      uint64(m.Minor),
		Patch:      uint64(m.Patch),
		Prerelease: m.Prerelease,
		Build:      m.Build,
	}
	var metadata json.RawMessage
	if m.Metadata != nil {
		metadata = json.RawMessage(*m.Metadata)
	}
	return domain.ReconstructQuest(
		m.ID, m.GUID, m.Name, version, metadata,
		time.Unix(0, m.CreatedAt).UTC(),
	)
}
