package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/questdex/questdex/internal/infrastructure/sqlite"
	"github.com/questdex/questdex/internal/semver"
)

// questData holds all data for a quest record to be inserted.
type questData struct {
	guid      string
	name      string
	version   string
	metadata  *string
	createdAt time.Time
}

// QuestOption configures a quest during builder setup.
type QuestOption func(*questData)

// GUID overrides the generated record GUID.
func GUID(guid string) QuestOption {
	return func(q *questData) { q.guid = guid }
}

// Metadata sets the raw JSON metadata document.
func Metadata(raw string) QuestOption {
	return func(q *questData) { q.metadata = &raw }
}

// CreatedAt sets the registration timestamp. Useful for exercising
// recency tiebreaks without sleeping in tests.
func CreatedAt(ts time.Time) QuestOption {
	return func(q *questData) { q.createdAt = ts }
}

// Builder accumulates quest records and inserts them directly into the
// database, bypassing the resolver. Direct inserts let tests pin
// timestamps that the registration path would assign itself.
type Builder struct {
	t      *testing.T
	db     *sqlite.DB
	quests []questData
}

// NewBuilder creates a builder for the given test database.
func NewBuilder(t *testing.T, db *sqlite.DB) *Builder {
	t.Helper()
	return &Builder{t: t, db: db}
}

// WithQuest adds a quest record with optional configuration.
// The version must be a valid semantic version.
func (b *Builder) WithQuest(name, version string, opts ...QuestOption) *Builder {
	quest := questData{
		guid:      uuid.NewString(),
		name:      name,
		version:   version,
		createdAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&quest)
	}
	b.quests = append(b.quests, quest)
	return b
}

// Build inserts all accumulated records into the database.
func (b *Builder) Build() {
	b.t.Helper()
	for _, quest := range b.quests {
		b.insertQuest(quest)
	}
}

func (b *Builder) insertQuest(quest questData) {
	b.t.Helper()

	v, err := semver.Parse(quest.version)
	require.NoError(b.t, err, "builder version %q must be valid", quest.version)

	_, err = b.db.Conn().Exec(
		`INSERT INTO quests (guid, name, major, minor, patch, prerelease, build, version, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		quest.guid, quest.name, v.Major, v.Minor, v.Patch, v.Prerelease, v.Build,
		v.String(), quest.metadata, quest.createdAt.UnixNano(),
	)
	require.NoError(b.t, err)
}
