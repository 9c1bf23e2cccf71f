// Package application provides the resolution engine for the quest
// index: registration plus exact, latest, and constraint-satisfying
// version queries. The engine holds no locks and no caches; all
// consistency comes from the store's transactional guarantees, and
// every call fetches the rows for one name at most once.
package application

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/questdex/questdex/internal/log"
	"github.com/questdex/questdex/internal/pubsub"
	"github.com/questdex/questdex/internal/quests/domain"
	"github.com/questdex/questdex/internal/semver"
)

// ErrEmptyName rejects registrations and queries without a quest name.
var ErrEmptyName = errors.New("quest name must not be empty")

// QuestEvent is the payload published on registry changes.
type QuestEvent struct {
	GUID    string `json:"guid,omitempty"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Resolver implements the lookup and registration operations against a
// quest repository.
type Resolver struct {
	repo   domain.QuestRepository
	broker *pubsub.Broker[QuestEvent]
	tracer trace.Tracer
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTracer sets the tracer used for resolution spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Resolver) { r.tracer = tracer }
}

// NewResolver creates a resolver over the given repository.
func NewResolver(repo domain.QuestRepository, opts ...Option) *Resolver {
	r := &Resolver{
		repo:   repo,
		broker: pubsub.NewBroker[QuestEvent](),
		tracer: noop.NewTracerProvider().Tracer("questdex"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe returns a channel of registry events. The subscription
// ends when ctx is cancelled.
func (r *Resolver) Subscribe(ctx context.Context) <-chan pubsub.Event[QuestEvent] {
	return r.broker.Subscribe(ctx)
}

// Close shuts down the event broker.
func (r *Resolver) Close() {
	r.broker.Close()
}

// Register validates and persists a new (name, version) record.
// Returns *semver.ParseError for malformed versions before any store
// access, and *domain.DuplicateVersionError on collision.
func (r *Resolver) Register(ctx context.Context, name, versionText string, metadata []byte) (*domain.Quest, error) {
	ctx, span := r.tracer.Start(ctx, "resolver.register",
		trace.WithAttributes(attribute.String("quest.name", name), attribute.String("quest.version", versionText)))
	defer span.End()

	if name == "" {
		return nil, ErrEmptyName
	}
	version, err := semver.Parse(versionText)
	if err != nil {
		return nil, err
	}

	quest := domain.NewQuest(uuid.NewString(), name, version, metadata)
	if err := r.repo.Register(ctx, quest); err != nil {
		return nil, err
	}

	log.Info(log.CatResolve, "registered quest", "name", name, "version", version.String(), "guid", quest.GUID())
	r.broker.Publish(pubsub.RegisteredEvent, QuestEvent{
		GUID:    quest.GUID(),
		Name:    quest.Name(),
		Version: quest.Version().String(),
	})
	return quest, nil
}

// ResolveExact looks up one record by its exact version string.
func (r *Resolver) ResolveExact(ctx context.Context, name, versionText string) (*domain.Quest, error) {
	ctx, span := r.tracer.Start(ctx, "resolver.exact",
		trace.WithAttributes(attribute.String("quest.name", name), attribute.String("quest.version", versionText)))
	defer span.End()

	version, err := semver.Parse(versionText)
	if err != nil {
		return nil, err
	}
	return r.repo.Get(ctx, name, version)
}

// ResolveLatest returns the maximal non-pre-release version of name.
// Pre-releases are never returned by an unconstrained latest query;
// when only pre-releases exist the result is *domain.QuestNotFoundError.
func (r *Resolver) ResolveLatest(ctx context.Context, name string) (*domain.Quest, error) {
	ctx, span := r.tracer.Start(ctx, "resolver.latest",
		trace.WithAttributes(attribute.String("quest.name", name)))
	defer span.End()

	quests, err := r.repo.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	for _, quest := range quests {
		if !quest.Version().IsPrerelease() {
			return quest, nil
		}
	}
	return nil, &domain.QuestNotFoundError{Name: name}
}

// ResolveSatisfying returns the maximal version of name satisfying the
// constraint. Records that compare equal (build-metadata-only
// differences) are broken by most recent registration.
func (r *Resolver) ResolveSatisfying(ctx context.Context, name, constraintText string) (*domain.Quest, error) {
	ctx, span := r.tracer.Start(ctx, "resolver.satisfying",
		trace.WithAttributes(attribute.String("quest.name", name), attribute.String("quest.constraint", constraintText)))
	defer span.End()

	constraint, err := semver.ParseConstraint(constraintText)
	if err != nil {
		return nil, err
	}

	matches, err := r.findSatisfying(ctx, name, constraint, 1)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, &domain.QuestNotFoundError{Name: name}
	}
	return matches[0], nil
}

// ResolveN returns the n highest versions of name satisfying the
// constraint, descending. n == 0 means all matches; an empty
// constraint means any release version.
func (r *Resolver) ResolveN(ctx context.Context, name, constraintText string, n int) ([]*domain.Quest, error) {
	ctx, span := r.tracer.Start(ctx, "resolver.resolve_n",
		trace.WithAttributes(
			attribute.String("quest.name", name),
			attribute.String("quest.constraint", constraintText),
			attribute.Int("quest.limit", n)))
	defer span.End()

	constraint := semver.AnyVersion()
	if constraintText != "" {
		var err error
		constraint, err = semver.ParseConstraint(constraintText)
		if err != nil {
			return nil, err
		}
	}
	return r.findSatisfying(ctx, name, constraint, n)
}

// List returns every version registered under name, ascending.
// An unknown name yields an empty slice, not an error.
func (r *Resolver) List(ctx context.Context, name string) ([]semver.Version, error) {
	ctx, span := r.tracer.Start(ctx, "resolver.list",
		trace.WithAttributes(attribute.String("quest.name", name)))
	defer span.End()

	return r.repo.ListVersions(ctx, name)
}

// ListNames returns the distinct names of all registered quests.
func (r *Resolver) ListNames(ctx context.Context) ([]string, error) {
	ctx, span := r.tracer.Start(ctx, "resolver.list_names")
	defer span.End()

	return r.repo.ListNames(ctx)
}

// Remove performs the administrative deletion of a version.
func (r *Resolver) Remove(ctx context.Context, name, versionText string) error {
	ctx, span := r.tracer.Start(ctx, "resolver.remove",
		trace.WithAttributes(attribute.String("quest.name", name), attribute.String("quest.version", versionText)))
	defer span.End()

	version, err := semver.Parse(versionText)
	if err != nil {
		return err
	}
	if err := r.repo.Remove(ctx, name, version); err != nil {
		return err
	}

	log.Info(log.CatResolve, "removed quest", "name", name, "version", version.String())
	r.broker.Publish(pubsub.RemovedEvent, QuestEvent{Name: name, Version: version.String()})
	return nil
}

// findSatisfying filters one name's records against the constraint.
// The records arrive ordered by precedence descending with recency as
// the tiebreak, so the first match is the resolution result.
func (r *Resolver) findSatisfying(ctx context.Context, name string, constraint semver.Constraint, n int) ([]*domain.Quest, error) {
	quests, err := r.repo.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}

	var matches []*domain.Quest
	for _, quest := range quests {
		if !constraint.Matches(quest.Version()) {
			continue
		}
		matches = append(matches, quest)
		if n > 0 && len(matches) == n {
			break
		}
	}
	return matches, nil
}
