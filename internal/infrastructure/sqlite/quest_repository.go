package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/ncruces/go-sqlite3"

	"github.com/questdex/questdex/internal/quests/domain"
	"github.com/questdex/questdex/internal/semver"
)

// questColumns is the list of columns to select for quest queries.
const questColumns = `id, guid, name, major, minor, patch, prerelease, build, version, metadata, created_at`

// questRepository implements domain.QuestRepository using SQLite.
type questRepository struct {
	db *sql.DB
}

// newQuestRepository creates a new questRepository instance.
func newQuestRepository(db *sql.DB) *questRepository {
	return &questRepository{db: db}
}

// Ensure questRepository implements domain.QuestRepository.
var _ domain.QuestRepository = (*questRepository)(nil)

// scanQuest scans a row into a QuestModel.
func scanQuest(scanner interface{ Scan(...any) error }) (*QuestModel, error) {
	var model QuestModel
	err := scanner.Scan(
		&model.ID, &model.GUID, &model.Name,
		&model.Major, &model.Minor, &model.Patch,
		&model.Prerelease, &model.Build, &model.Version,
		&model.Metadata, &model.CreatedAt,
	)
	return &model, err
}

// Register inserts a new quest record and sets its ID. The UNIQUE
// constraint over (name, major, minor, patch, prerelease, build) makes
// the insert the atomic arbiter between concurrent duplicate
// registrations; no application-level locking is involved.
func (r *questRepository) Register(ctx context.Context, quest *domain.Quest) error {
	model := toQuestModel(quest)

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO quests (guid, name, major, minor, patch, prerelease, build, version, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		model.GUID, model.Name, model.Major, model.Minor, model.Patch,
		model.Prerelease, model.Build, model.Version, model.Metadata, model.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.DuplicateVersionError{Name: quest.Name(), Version: quest.Version().String()}
		}
		return fmt.Errorf("failed to insert quest: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	quest.SetID(id)
	return nil
}

// Get retrieves a record by exact version. A query version without
// build metadata matches any build variant, most recent registration
// first; with build metadata the full version must match.
func (r *questRepository) Get(ctx context.Context, name string, version semver.Version) (*domain.Quest, error) {
	query := `SELECT ` + questColumns + ` FROM quests
		 WHERE name = ? AND major = ? AND minor = ? AND patch = ? AND prerelease = ?`
	args := []any{name, int64(version.Major), int64(version.Minor), int64(version.Patch), version.Prerelease}

	if version.Build != "" {
		query += ` AND build = ?`
		args = append(args, version.Build)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT 1`

	row := r.db.QueryRowContext(ctx, query, args...)
	model, err := scanQuest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.QuestNotFoundError{Name: name, Version: version.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quest: %w", err)
	}
	return model.toDomain(), nil
}

// FindByName retrieves every record under name, ordered by version
// precedence descending with registration recency as the tiebreak.
// The rows for one name are fetched once; pre-release precedence is
// finished in memory because SQL cannot express it.
func (r *questRepository) FindByName(ctx context.Context, name string) ([]*domain.Quest, error) {
	quests, err := r.queryByName(ctx, name)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(quests, func(i, j int) bool {
		if c := quests[i].Version().Compare(quests[j].Version()); c != 0 {
			return c > 0
		}
		if !quests[i].CreatedAt().Equal(quests[j].CreatedAt()) {
			return quests[i].CreatedAt().After(quests[j].CreatedAt())
		}
		return quests[i].ID() > quests[j].ID()
	})
	return quests, nil
}

// ListVersions returns every version under name, ascending by version
// precedence with insertion order as the tiebreak.
func (r *questRepository) ListVersions(ctx context.Context, name string) ([]semver.Version, error) {
	quests, err := r.queryByName(ctx, name)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(quests, func(i, j int) bool {
		if c := quests[i].Version().Compare(quests[j].Version()); c != 0 {
			return c < 0
		}
		return quests[i].ID() < quests[j].ID()
	})

	versions := make([]semver.Version, len(quests))
	for i, q := range quests {
		versions[i] = q.Version()
	}
	return versions, nil
}

// ListNames returns the distinct names of all registered quests.
func (r *questRepository) ListNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT name FROM quests ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list quest names: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan quest name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quest names: %w", err)
	}
	return names, nil
}

// Remove deletes records matching the version. Without build metadata
// every build variant of the version is removed; with it, only the
// exact record.
func (r *questRepository) Remove(ctx context.Context, name string, version semver.Version) error {
	query := `DELETE FROM quests
		 WHERE name = ? AND major = ? AND minor = ? AND patch = ? AND prerelease = ?`
	args := []any{name, int64(version.Major), int64(version.Minor), int64(version.Patch), version.Prerelease}

	if version.Build != "" {
		query += ` AND build = ?`
		args = append(args, version.Build)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to remove quest: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return &domain.QuestNotFoundError{Name: name, Version: version.String()}
	}
	return nil
}

// Close releases any resources held by the repository.
// This is a no-op because the connection is owned by the DB struct.
func (r *questRepository) Close() error {
	return nil
}

func (r *questRepository) queryByName(ctx context.Context, name string) ([]*domain.Quest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+questColumns+` FROM quests WHERE name = ?
		 ORDER BY major DESC, minor DESC, patch DESC`,
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query quests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var quests []*domain.Quest
	for rows.Next() {
		model, err := scanQuest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quest row: %w", err)
		}
		quests = append(quests, model.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quest rows: %w", err)
	}
	return quests, nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint
// failure.
func isUniqueViolation(err error) bool {
	var serr *sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode() == sqlite3.CONSTRAINT_UNIQUE
	}
	return false
}
