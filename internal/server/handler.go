// Package server provides the HTTP boundary for the quest index.
// It translates wire requests into resolution-engine calls, serializes
// results, and exposes registry events over SSE. The core index has no
// knowledge of this layer.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/questdex/questdex/internal/log"
	"github.com/questdex/questdex/internal/quests/application"
	"github.com/questdex/questdex/internal/quests/domain"
	"github.com/questdex/questdex/internal/semver"
)

// Handler provides HTTP endpoints for quest index operations.
type Handler struct {
	resolver *application.Resolver
	tracer   trace.Tracer
}

// HandlerConfig configures the API handler.
type HandlerConfig struct {
	// Resolver executes registration and lookup operations (required).
	Resolver *application.Resolver
	// Tracer creates per-request spans (optional).
	Tracer trace.Tracer
}

// NewHandler creates a new API handler wrapping the given resolver.
func NewHandler(resolver *application.Resolver) *Handler {
	return &Handler{
		resolver: resolver,
		tracer:   noop.NewTracerProvider().Tracer("noop"),
	}
}

// NewHandlerWithConfig creates a new API handler with full configuration.
func NewHandlerWithConfig(cfg HandlerConfig) *Handler {
	h := NewHandler(cfg.Resolver)
	if cfg.Tracer != nil {
		h.tracer = cfg.Tracer
	}
	return h
}

// Routes returns an http.Handler with all API routes registered.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// Registration and listing
	mux.HandleFunc("POST /quests", h.Register)
	mux.HandleFunc("GET /quests", h.ListNames)

	// Resolution
	mux.HandleFunc("GET /quests/{name}", h.Resolve)
	mux.HandleFunc("GET /quests/{name}/versions", h.ListVersions)
	mux.HandleFunc("GET /quests/{name}/{version}", h.GetExact)

	// Administrative deletion
	mux.HandleFunc("DELETE /quests/{name}/{version}", h.Remove)

	// Event streaming
	mux.HandleFunc("GET /events", h.StreamEvents)

	// Health check
	mux.HandleFunc("GET /health", h.Health)

	return h.traced(mux)
}

// === Request/Response Types ===

// RegisterQuestRequest is the request body for registering a version.
type RegisterQuestRequest struct {
	// Name is the case-sensitive quest identifier (required).
	Name string `json:"name"`
	// Version is the semantic version to register (required).
	Version string `json:"version"`
	// Metadata is an opaque JSON payload stored with the record
	// (optional). The index never examines it.
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// QuestResponse is the response body for a single record.
type QuestResponse struct {
	GUID      string          `json:"guid"`
	Name      string          `json:"name"`
	Version   string          `json:"version"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// QuestListResponse is the response body for multi-record resolution.
type QuestListResponse struct {
	Quests []QuestResponse `json:"quests"`
	Total  int             `json:"total"`
}

// VersionListResponse is the response body for a version history.
type VersionListResponse struct {
	Name     string   `json:"name"`
	Versions []string `json:"versions"`
	Total    int      `json:"total"`
}

// NameListResponse is the response body for the quest name listing.
type NameListResponse struct {
	Names []string `json:"names"`
	Total int      `json:"total"`
}

// HealthResponse is the response body for the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Quests int    `json:"quests"`
}

// ErrorResponse is the response body for errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// === Handlers ===

// Register registers a new (name, version) record.
// POST /quests
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterQuestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body", err.Error())
		return
	}
	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "name is required", "")
		return
	}
	if req.Version == "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "version is required", "")
		return
	}

	quest, err := h.resolver.Register(r.Context(), req.Name, req.Version, req.Metadata)
	if err != nil {
		h.writeResolutionError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, questToResponse(quest))
}

// ListNames returns all registered quest names.
// GET /quests
func (h *Handler) ListNames(w http.ResponseWriter, r *http.Request) {
	names, err := h.resolver.ListNames(r.Context())
	if err != nil {
		h.writeResolutionError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	h.writeJSON(w, http.StatusOK, NameListResponse{Names: names, Total: len(names)})
}

// Resolve answers version queries for one quest.
// GET /quests/{name}?constraint=C&limit=N
//
// The default limit of 1 returns the single best match: the latest
// release when no constraint is given, otherwise the maximal
// satisfying version. limit=0 returns every match descending, and
// limit=n the n best.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	constraint := r.URL.Query().Get("constraint")

	limit := 1
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.writeError(w, http.StatusBadRequest, "validation_error", "limit must be a non-negative integer", "")
			return
		}
		limit = parsed
	}

	if limit == 1 {
		var quest *domain.Quest
		var err error
		if constraint == "" {
			quest, err = h.resolver.ResolveLatest(r.Context(), name)
		} else {
			quest, err = h.resolver.ResolveSatisfying(r.Context(), name, constraint)
		}
		if err != nil {
			h.writeResolutionError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, questToResponse(quest))
		return
	}

	quests, err := h.resolver.ResolveN(r.Context(), name, constraint, limit)
	if err != nil {
		h.writeResolutionError(w, err)
		return
	}

	resp := QuestListResponse{Quests: make([]QuestResponse, 0, len(quests)), Total: len(quests)}
	for _, quest := range quests {
		resp.Quests = append(resp.Quests, questToResponse(quest))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ListVersions returns the full version history of a quest, ascending.
// GET /quests/{name}/versions
func (h *Handler) ListVersions(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	versions, err := h.resolver.List(r.Context(), name)
	if err != nil {
		h.writeResolutionError(w, err)
		return
	}

	resp := VersionListResponse{Name: name, Versions: make([]string, 0, len(versions)), Total: len(versions)}
	for _, v := range versions {
		resp.Versions = append(resp.Versions, v.String())
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetExact returns the record for an exact version string.
// GET /quests/{name}/{version}
func (h *Handler) GetExact(w http.ResponseWriter, r *http.Request) {
	quest, err := h.resolver.ResolveExact(r.Context(), r.PathValue("name"), r.PathValue("version"))
	if err != nil {
		h.writeResolutionError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, questToResponse(quest))
}

// Remove deletes a registered version.
// DELETE /quests/{name}/{version}
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	if err := h.resolver.Remove(r.Context(), r.PathValue("name"), r.PathValue("version")); err != nil {
		h.writeResolutionError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Health returns the service health status.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	names, err := h.resolver.ListNames(r.Context())
	if err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy"})
		return
	}
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Quests: len(names)})
}

// StreamEvents streams registry events via SSE.
// GET /events
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming_unsupported", "Streaming not supported", "")
		return
	}

	events := h.resolver.Subscribe(r.Context())

	_, _ = fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	// Heartbeat ticker to keep the connection alive.
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(event.Payload)
			if err != nil {
				log.ErrorErr(log.CatHTTP, "Failed to marshal event", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}

// === Helpers ===

func questToResponse(q *domain.Quest) QuestResponse {
	return QuestResponse{
		GUID:      q.GUID(),
		Name:      q.Name(),
		Version:   q.Version().String(),
		Metadata:  q.Metadata(),
		CreatedAt: q.CreatedAt(),
	}
}

// writeResolutionError maps core errors onto the wire taxonomy:
// malformed input is 400, absence 404, duplicates 409, and anything
// else a store failure.
func (h *Handler) writeResolutionError(w http.ResponseWriter, err error) {
	var parseErr *semver.ParseError
	var constraintErr *semver.ConstraintError
	var notFound *domain.QuestNotFoundError
	var duplicate *domain.DuplicateVersionError

	switch {
	case errors.As(err, &parseErr):
		h.writeError(w, http.StatusBadRequest, "invalid_version", "Invalid version", err.Error())
	case errors.As(err, &constraintErr):
		h.writeError(w, http.StatusBadRequest, "invalid_constraint", "Invalid constraint", err.Error())
	case errors.Is(err, application.ErrEmptyName):
		h.writeError(w, http.StatusBadRequest, "validation_error", err.Error(), "")
	case errors.As(err, &notFound):
		h.writeError(w, http.StatusNotFound, "not_found", err.Error(), "")
	case errors.As(err, &duplicate):
		h.writeError(w, http.StatusConflict, "duplicate_version", err.Error(), "")
	default:
		log.ErrorErr(log.CatHTTP, "store failure", err)
		h.writeError(w, http.StatusInternalServerError, "store_error", "Store unavailable", err.Error())
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.ErrorErr(log.CatHTTP, "Failed to encode JSON response", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message, details string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// traced wraps the mux with a per-request server span.
func (h *Handler) traced(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := h.tracer.Start(r.Context(), "http.request",
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.path", r.URL.Path),
			))
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
