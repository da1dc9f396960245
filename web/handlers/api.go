package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/scrypster/reverie/internal/config"
	"github.com/scrypster/reverie/internal/consolidation"
	"github.com/scrypster/reverie/internal/ingest"
	"github.com/scrypster/reverie/internal/memory"
	"github.com/scrypster/reverie/internal/reflection"
	"github.com/scrypster/reverie/internal/storage"
	"github.com/scrypster/reverie/pkg/types"
)

// API holds the handlers for the reflection and consolidation
// endpoints. The hub is optional; without one events are simply not
// broadcast.
type API struct {
	store        *memory.Store
	cfg          *config.Config
	reflector    *reflection.Engine
	consolidator *consolidation.Engine
	hub          *WebSocketHub
}

// NewAPI creates the API handler set.
func NewAPI(store *memory.Store, cfg *config.Config, reflector *reflection.Engine, consolidator *consolidation.Engine, hub *WebSocketHub) *API {
	return &API{
		store:        store,
		cfg:          cfg,
		reflector:    reflector,
		consolidator: consolidator,
		hub:          hub,
	}
}

// Health handles GET /api/health.
func (h *API) Health(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "1.0.0",
	})
}

// Status handles GET /api/status: service health, backend reachability,
// and setup hints for an unreachable backend.
func (h *API) Status(w http.ResponseWriter, r *http.Request) {
	available := h.reflector.Healthy(r.Context())

	status := map[string]interface{}{
		"service": "reverie",
		"status":  "healthy",
		"ollama": map[string]interface{}{
			"available": available,
			"url":       h.cfg.LLM.OllamaURL,
			"model":     h.cfg.LLM.OllamaModel,
		},
		"setup_instructions": map[string]interface{}{
			"ollama_not_available": !available,
			"install_ollama": map[string]string{
				"macos":   "brew install ollama",
				"linux":   "curl -fsSL https://ollama.ai/install.sh | sh",
				"windows": "Download from https://ollama.ai/download",
			},
			"run_ollama": "ollama serve",
			"pull_model": "ollama pull " + h.cfg.LLM.OllamaModel,
			"verify":     "curl " + h.cfg.LLM.OllamaURL + "/api/tags",
		},
	}
	respondSuccess(w, http.StatusOK, status)
}

// Reflect handles POST /api/reflect: select relevant memories, generate
// a thought (model first, deterministic fallback), persist it as a new
// text memory, and broadcast it.
func (h *API) Reflect(w http.ResponseWriter, r *http.Request) {
	var req types.ReflectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid reflection request")
		return
	}

	// Copy out of the store first, then merge the caller's context
	// memories; selection and generation run without any lock held.
	candidates := h.store.QueryMemories(types.MemoryQuery{Limit: h.cfg.Reflection.MaxMemories})
	candidates = append(candidates, req.Memories...)

	focus := req.FocusEmbedding
	if len(focus) == 0 && len(req.Memories) > 0 {
		embeddings := make([][]float32, 0, len(req.Memories))
		for i := range req.Memories {
			if len(req.Memories[i].Embedding) > 0 {
				embeddings = append(embeddings, req.Memories[i].Embedding)
			}
		}
		focus = memory.AverageEmbedding(embeddings)
	}

	selected := memory.SelectRelevant(candidates, focus, h.cfg.Reflection.ReflectCount, memory.DefaultQuotas)
	if len(selected) == 0 {
		n := len(candidates)
		if n > h.cfg.Reflection.ReflectCount {
			n = h.cfg.Reflection.ReflectCount
		}
		selected = candidates[:n]
	}

	thought := h.reflector.Reflect(r.Context(), selected, req.UserQuery)

	// Persist the thought as a memory. Persistence trouble is logged
	// inside the store; the thought is still returned.
	h.store.AddMemory(thought.AsMemory(time.Now().UTC()))

	if h.hub != nil {
		h.hub.BroadcastEvent(EventThoughtCreated, thought)
	}
	respondSuccess(w, http.StatusOK, thought)
}

// Consolidate handles POST /api/consolidate: run a consolidation pass
// over the whole store, persist the produced experiences, and mark the
// member memories consolidated.
func (h *API) Consolidate(w http.ResponseWriter, r *http.Request) {
	var req types.ConsolidationRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "invalid consolidation request")
			return
		}
	}

	memories := h.store.AllMemories()
	result, experiences := h.consolidator.Consolidate(r.Context(), memories, req)

	for _, exp := range experiences {
		h.store.AddExperience(exp)
		h.store.MarkConsolidated(exp.ConsolidatedFrom, exp.ID)
		if h.hub != nil {
			h.hub.BroadcastEvent(EventExperienceCreated, exp)
		}
	}

	if len(experiences) > 0 {
		if err := h.store.SnapshotExperiences(); err != nil {
			log.Printf("api: experience snapshot after consolidation failed: %v", err)
		}
		log.Printf("api: consolidation created %d experiences from %d thoughts",
			result.ExperiencesCreated, result.ThoughtsConsolidated)
	}

	respondSuccess(w, http.StatusOK, result)
}

// ListMemories handles GET /api/memories with limit, modality, and
// since query parameters.
func (h *API) ListMemories(w http.ResponseWriter, r *http.Request) {
	q := types.MemoryQuery{
		Limit: parseInt(r.URL.Query().Get("limit"), 0),
		Since: parseTime(r.URL.Query().Get("since")),
	}
	if mod := r.URL.Query().Get("modality"); mod != "" {
		q.Modality = types.ParseModality(mod)
	}
	respondSuccess(w, http.StatusOK, h.store.QueryMemories(q))
}

// CreateMemory handles POST /api/memories, accepting a perception
// record in the ingestion format.
func (h *API) CreateMemory(w http.ResponseWriter, r *http.Request) {
	var rec ingest.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		respondError(w, http.StatusBadRequest, "invalid memory record")
		return
	}

	m := rec.ToMemory()
	h.store.AddMemory(&m)
	respondSuccess(w, http.StatusCreated, m)
}

// ClearMemories handles DELETE /api/memories.
func (h *API) ClearMemories(w http.ResponseWriter, r *http.Request) {
	h.store.ClearMemories()
	if h.hub != nil {
		h.hub.BroadcastEvent(EventMemoriesCleared, nil)
	}
	respondSuccess(w, http.StatusOK, nil)
}

// ListExperiences handles GET /api/experiences.
func (h *API) ListExperiences(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 0)
	respondSuccess(w, http.StatusOK, h.store.Experiences(limit))
}

// GetExperience handles GET /api/experiences/{id}.
func (h *API) GetExperience(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "experience ID is required")
		return
	}

	exp, err := h.store.GetExperience(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Experience not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load experience")
		return
	}
	respondSuccess(w, http.StatusOK, exp)
}

// ClearExperiences handles DELETE /api/experiences.
func (h *API) ClearExperiences(w http.ResponseWriter, r *http.Request) {
	h.store.ClearExperiences()
	if h.hub != nil {
		h.hub.BroadcastEvent(EventExperiencesCleared, nil)
	}
	respondSuccess(w, http.StatusOK, nil)
}

// Stats handles GET /api/stats.
func (h *API) Stats(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, h.store.Stats())
}
