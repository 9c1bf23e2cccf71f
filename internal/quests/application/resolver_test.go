package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questdex/questdex/internal/pubsub"
	"github.com/questdex/questdex/internal/quests/domain"
	"github.com/questdex/questdex/internal/semver"
	"github.com/questdex/questdex/internal/testutil"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	db := testutil.NewTestDB(t)
	resolver := NewResolver(db.Quests())
	t.Cleanup(resolver.Close)
	return resolver
}

func register(t *testing.T, r *Resolver, name string, versions ...string) {
	t.Helper()
	for _, v := range versions {
		_, err := r.Register(context.Background(), name, v, nil)
		require.NoError(t, err)
	}
}

func TestResolver_Register(t *testing.T) {
	resolver := newTestResolver(t)

	quest, err := resolver.Register(context.Background(), "widget", "1.0.0", []byte(`{"tier":1}`))
	require.NoError(t, err)
	assert.NotEmpty(t, quest.GUID())
	assert.Equal(t, "widget", quest.Name())
	assert.Equal(t, "1.0.0", quest.Version().String())
	assert.JSONEq(t, `{"tier":1}`, string(quest.Metadata()))
}

func TestResolver_Register_EmptyName(t *testing.T) {
	resolver := newTestResolver(t)

	_, err := resolver.Register(context.Background(), "", "1.0.0", nil)
	require.ErrorIs(t, err, ErrEmptyName)
}

func TestResolver_Register_InvalidVersion(t *testing.T) {
	resolver := newTestResolver(t)

	_, err := resolver.Register(context.Background(), "widget", "not-a-version", nil)
	var parseErr *semver.ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestResolver_Register_Duplicate(t *testing.T) {
	resolver := newTestResolver(t)
	register(t, resolver, "widget", "1.0.0")

	_, err := resolver.Register(context.Background(), "widget", "1.0.0", nil)
	var dupErr *domain.DuplicateVersionError
	require.ErrorAs(t, err, &dupErr)
}

func TestResolver_ResolveExact(t *testing.T) {
	resolver := newTestResolver(t)
	register(t, resolver, "widget", "1.0.0", "1.2.0")

	quest, err := resolver.ResolveExact(context.Background(), "widget", "1.2.0")
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", quest.Version().String())

	_, err = resolver.ResolveExact(context.Background(), "widget", "9.9.9")
	var notFound *domain.QuestNotFoundError
	require.ErrorAs(t, err, &notFound)

	_, err = resolver.ResolveExact(context.Background(), "widget", "banana")
	var parseErr *semver.ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestResolver_ResolveLatest_SkipsPrereleases(t *testing.T) {
	resolver := newTestResolver(t)
	register(t, resolver, "widget", "1.0.0", "1.2.0", "2.0.0-rc.1")

	// 2.0.0-rc.1 has the highest precedence but latest stays on the
	// release line.
	quest, err := resolver.ResolveLatest(context.Background(), "widget")
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", quest.Version().String())
}

func TestResolver_ResolveLatest_OnlyPrereleases(t *testing.T) {
	resolver := newTestResolver(t)
	register(t, resolver, "widget", "1.0.0-alpha", "1.0.0-beta")

	_, err := resolver.ResolveLatest(context.Background(), "widget")
	var notFound *domain.QuestNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestResolver_ResolveLatest_UnknownName(t *testing.T) {
	resolver := newTestResolver(t)

	_, err := resolver.ResolveLatest(context.Background(), "missing")
	var notFound *domain.QuestNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestResolver_ResolveSatisfying(t *testing.T) {
	resolver := newTestResolver(t)
	register(t, resolver, "widget", "1.0.0", "1.2.0", "2.0.0-rc.1")

	tests := []struct {
		constraint string
		want       string
	}{
		{"^1.0", "1.2.0"},
		{"~1.0", "1.0.0"},
		{"=1.0.0", "1.0.0"},
		{"<1.2.0", "1.0.0"},
		{">=2.0.0-0", "2.0.0-rc.1"},
		{"*", "1.2.0"},
	}

	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			quest, err := resolver.ResolveSatisfying(context.Background(), "widget", tt.constraint)
			require.NoError(t, err)
			assert.Equal(t, tt.want, quest.Version().String())
		})
	}
}

func TestResolver_ResolveSatisfying_NoMatch(t *testing.T) {
	resolver := newTestResolver(t)
	register(t, resolver, "widget", "1.0.0", "1.2.0", "2.0.0-rc.1")

	// 2.0.0-rc.1 falls in the numeric range but pre-releases stay
	// opt-in, so nothing satisfies.
	_, err := resolver.ResolveSatisfying(context.Background(), "widget", ">=2.0.0")
	var notFound *domain.QuestNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "widget", notFound.Name)
}

func TestResolver_ResolveSatisfying_InvalidConstraint(t *testing.T) {
	resolver := newTestResolver(t)
	register(t, resolver, "widget", "1.0.0")

	_, err := resolver.ResolveSatisfying(context.Background(), "widget", ">=not.a.version")
	var cerr *semver.ConstraintError
	require.ErrorAs(t, err, &cerr)
}

func TestResolver_ResolveSatisfying_BuildRecencyTiebreak(t *testing.T) {
	db := testutil.NewTestDB(t)
	resolver := NewResolver(db.Quests())
	t.Cleanup(resolver.Close)

	base := time.Now().UTC()
	testutil.NewBuilder(t, db).
		WithQuest("widget", "1.0.0+first", testutil.CreatedAt(base)).
		WithQuest("widget", "1.0.0+second", testutil.CreatedAt(base.Add(time.Second))).
		Build()

	quest, err := resolver.ResolveSatisfying(context.Background(), "widget", "=1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0+second", quest.Version().String())
}

func TestResolver_ResolveN(t *testing.T) {
	resolver := newTestResolver(t)
	register(t, resolver, "widget", "1.0.0", "1.1.0", "1.2.0", "2.0.0")

	// n best matches, descending.
	quests, err := resolver.ResolveN(context.Background(), "widget", "^1.0", 2)
	require.NoError(t, err)
	require.Len(t, quests, 2)
	assert.Equal(t, "1.2.0", quests[0].Version().String())
	assert.Equal(t, "1.1.0", quests[1].Version().String())

	// n == 0 returns all matches.
	quests, err = resolver.ResolveN(context.Background(), "widget", "^1.0", 0)
	require.NoError(t, err)
	assert.Len(t, quests, 3)

	// Empty constraint means any release version.
	quests, err = resolver.ResolveN(context.Background(), "widget", "", 0)
	require.NoError(t, err)
	assert.Len(t, quests, 4)

	// No matches is an empty result, not an error.
	quests, err = resolver.ResolveN(context.Background(), "widget", "^9", 0)
	require.NoError(t, err)
	assert.Empty(t, quests)
}

func TestResolver_List(t *testing.T) {
	resolver := newTestResolver(t)
	register(t, resolver, "widget", "2.0.0", "1.0.0", "1.2.0")

	versions, err := resolver.List(context.Background(), "widget")
	require.NoError(t, err)

	got := make([]string, len(versions))
	for i, v := range versions {
		got[i] = v.String()
	}
	assert.Equal(t, []string{"1.0.0", "1.2.0", "2.0.0"}, got)

	// Unknown names list as empty.
	versions, err = resolver.List(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestResolver_ListNames(t *testing.T) {
	resolver := newTestResolver(t)
	register(t, resolver, "beta-quest", "1.0.0")
	register(t, resolver, "alpha-quest", "1.0.0", "2.0.0")

	names, err := resolver.ListNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha-quest", "beta-quest"}, names)
}

func TestResolver_Remove(t *testing.T) {
	resolver := newTestResolver(t)
	register(t, resolver, "widget", "1.0.0", "2.0.0")

	err := resolver.Remove(context.Background(), "widget", "1.0.0")
	require.NoError(t, err)

	versions, err := resolver.List(context.Background(), "widget")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "2.0.0", versions[0].String())

	err = resolver.Remove(context.Background(), "widget", "1.0.0")
	var notFound *domain.QuestNotFoundError
	require.ErrorAs(t, err, &notFound)

	err = resolver.Remove(context.Background(), "widget", "nope")
	var parseErr *semver.ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestResolver_Events(t *testing.T) {
	resolver := newTestResolver(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := resolver.Subscribe(ctx)

	register(t, resolver, "widget", "1.0.0")

	select {
	case ev := <-events:
		assert.Equal(t, pubsub.RegisteredEvent, ev.Type)
		assert.Equal(t, "widget", ev.Payload.Name)
		assert.Equal(t, "1.0.0", ev.Payload.Version)
		assert.NotEmpty(t, ev.Payload.GUID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for registered event")
	}

	require.NoError(t, resolver.Remove(context.Background(), "widget", "1.0.0"))

	select {
	case ev := <-events:
		assert.Equal(t, pubsub.RemovedEvent, ev.Type)
		assert.Equal(t, "widget", ev.Payload.Name)
		assert.Equal(t, "1.0.0", ev.Payload.Version)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for removed event")
	}
}
