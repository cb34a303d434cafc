package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/index"
	"github.com/starford/othala/internal/vaultservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *vaultservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *vaultservice.Service) *Handler {
	return &Handler{svc: svc}
}

// artifactID extracts the vault id from the URL (everything after
// /api/artifacts/). Supports encoded slashes from OpenAPI clients
// (e.g. vault:%2F%2FDemo%2FWidget%2Fv1.0).
func artifactID(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListArtifacts handles GET /api/artifacts.
//
//	@Summary		List registered artifacts with pagination
//	@Tags			artifacts
//	@Produce		json
//	@Param			limit	query		int	false	"Page size"
//	@Param			offset	query		int	false	"Page offset"
//	@Success		200		{object}	ArtifactListResponse
//	@Security		BearerAuth
//	@Router			/artifacts [get]
func (h *Handler) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = 100
	}
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.ListArtifacts(r.Context(), limit, offset)
	if err != nil {
		slog.Error("list artifacts failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if items == nil {
		items = []ArtifactListItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"artifacts": items,
		"total":     total,
	})
}

// GetArtifact handles GET /api/artifacts/*.
//
//	@Summary		Get a single artifact by vault id
//	@Tags			artifacts
//	@Produce		json
//	@Param			vault_id	path		string	true	"Vault id"
//	@Success		200			{object}	ArtifactDetail
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/artifacts/{vault_id} [get]
func (h *Handler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	id := artifactID(r)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("vault id is required"))
		return
	}
	detail, err := h.svc.GetArtifact(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get artifact failed", slog.String("vault_id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// Register handles POST /api/artifacts.
//
//	@Summary		Register an artifact in the vault
//	@Tags			artifacts
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RegisterRequest	true	"Artifact to register"
//	@Success		201		{object}	ArtifactDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/artifacts [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.VaultID == "" || req.FilePath == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("vault_id and file_path are required"))
		return
	}

	detail, err := h.svc.Register(r.Context(), req.VaultID, req.FilePath, req.Predecessor, req.Metadata)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrFormat):
			writeJSON(w, http.StatusBadRequest, errorBody("malformed vault id"))
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("artifact file not found"))
		default:
			slog.Error("register failed", slog.String("vault_id", req.VaultID), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusCreated, detail)
}

// Unregister handles DELETE /api/artifacts/*.
//
//	@Summary		Remove an artifact from the vault
//	@Tags			artifacts
//	@Param			vault_id	path	string	true	"Vault id"
//	@Success		204			"Artifact removed"
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/artifacts/{vault_id} [delete]
func (h *Handler) Unregister(w http.ResponseWriter, r *http.Request) {
	id := artifactID(r)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("vault id is required"))
		return
	}
	if err := h.svc.Unregister(r.Context(), id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("unregister failed", slog.String("vault_id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Verify handles GET /api/verify.
//
//	@Summary		Verify an artifact against its recorded checksum
//	@Tags			integrity
//	@Produce		json
//	@Param			id	query		string	true	"Vault id"
//	@Success		200	{object}	VerifyResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/verify [get]
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'id' is required"))
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Verify(r.Context(), id))
}

// ValidateChain handles GET /api/validate.
//
//	@Summary		Validate bidirectional chain consistency
//	@Tags			integrity
//	@Produce		json
//	@Param			id	query		string	true	"Vault id"
//	@Success		200	{object}	VerifyResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/validate [get]
func (h *Handler) ValidateChain(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'id' is required"))
		return
	}
	writeJSON(w, http.StatusOK, h.svc.ValidateChain(r.Context(), id))
}

// Trace handles GET /api/trace.
//
//	@Summary		Trace a lineage chain
//	@Tags			lineage
//	@Produce		json
//	@Param			id			query		string	true	"Vault id"
//	@Param			direction	query		string	false	"Trace direction"	Enums(backward, forward)
//	@Success		200			{object}	TraceResponse
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/trace [get]
func (h *Handler) Trace(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'id' is required"))
		return
	}
	direction := r.URL.Query().Get("direction")
	if direction == "" {
		direction = "backward"
	}

	chain, err := h.svc.Trace(r.Context(), id, direction)
	cycle := errors.Is(err, apperr.ErrCycle)
	if err != nil && !cycle {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrFormat):
			writeJSON(w, http.StatusBadRequest, errorBody("invalid direction"))
		default:
			slog.Error("trace failed", slog.String("vault_id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	if chain == nil {
		chain = []string{}
	}
	writeJSON(w, http.StatusOK, TraceResponse{
		VaultID:   id,
		Direction: direction,
		Chain:     chain,
		Cycle:     cycle,
	})
}

// Report handles GET /api/report.
//
//	@Summary		Lineage report: roots, leaves, forks, chains
//	@Tags			lineage
//	@Produce		json
//	@Success		200	{object}	ReportResponse
//	@Security		BearerAuth
//	@Router			/report [get]
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Report(r.Context()))
}

// Export handles GET /api/export.
//
//	@Summary		Export vault state with its canonical hash
//	@Tags			lineage
//	@Produce		json
//	@Success		200	{object}	vault.State
//	@Security		BearerAuth
//	@Router			/export [get]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.ExportState(r.Context())
	if err != nil {
		slog.Error("export failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// Graph handles GET /api/graph.
//
//	@Summary		Get the lineage graph
//	@Tags			lineage
//	@Produce		json
//	@Success		200	{object}	GraphResponse
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	nodes, links, err := h.svc.GraphData(r.Context())
	if err != nil {
		slog.Error("graph failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if nodes == nil {
		nodes = []index.GraphNode{}
	}
	if links == nil {
		links = []index.GraphLink{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes": nodes,
		"links": links,
	})
}

// GraphDOT handles GET /api/graph.dot.
//
//	@Summary		Get the lineage graph in GraphViz DOT form
//	@Tags			lineage
//	@Produce		plain
//	@Success		200	{string}	string
//	@Security		BearerAuth
//	@Router			/graph.dot [get]
func (h *Handler) GraphDOT(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(h.svc.GraphDOT(r.Context())))
}

// Drift handles GET /api/drift.
//
// Without an id it lists artifacts whose observed on-disk digest
// disagrees with the registered one; with ?id= it runs the checksum
// reconciler against that artifact's file.
//
//	@Summary		Checksum drift: listing and per-artifact reconciliation
//	@Tags			integrity
//	@Produce		json
//	@Param			id	query		string	false	"Vault id"
//	@Success		200	{object}	DriftCheckResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/drift [get]
func (h *Handler) Drift(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		rows, err := h.svc.DriftedArtifacts(r.Context())
		if err != nil {
			slog.Error("drift list failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
			return
		}
		items := make([]DriftItem, len(rows))
		for i, row := range rows {
			items[i] = DriftItem{
				VaultID:         row.VaultID,
				FilePath:        row.FilePath,
				Checksum:        row.Checksum,
				CurrentChecksum: row.CurrentChecksum,
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"drifted": items})
		return
	}

	d, err := h.svc.CheckDrift(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("drift check failed", slog.String("vault_id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, DriftCheckResponse{
		VaultID:    id,
		Embedded:   d.Embedded,
		Sidecar:    d.Sidecar,
		Calculated: d.Calculated,
		HasDrift:   d.HasDrift(),
		IsCorrect:  d.IsCorrect(),
	})
}
