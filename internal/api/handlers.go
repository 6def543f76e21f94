package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/casampa-lab/sinaliza/internal/conflict"
	"github.com/casampa-lab/sinaliza/internal/model"
	"github.com/casampa-lab/sinaliza/internal/workflow"
)

const maxBodyBytes = 1 << 20

type batchRequest struct {
	model.Selection
	Force bool `json:"force"`
}

type reconcileBatchRequest struct {
	IDs           []string `json:"ids"`
	DecidedBy     string   `json:"decidido_por"`
	Justification string   `json:"justificativa"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) runBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decode(w, r, &req) {
		return
	}
	report, err := s.matcher.Run(r.Context(), req.Selection, req.Force)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) listPending(w http.ResponseWriter, r *http.Request) {
	needs, err := s.reconciler.ListPending(r.Context(), selectionFromQuery(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if needs == nil {
		needs = []model.NeedRecord{}
	}
	writeJSON(w, http.StatusOK, needs)
}

func (s *Server) reconcile(w http.ResponseWriter, r *http.Request) {
	var in workflow.DecisionInput
	if !decode(w, r, &in) {
		return
	}
	need, err := s.reconciler.Reconcile(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, need)
}

func (s *Server) reconcileBatch(w http.ResponseWriter, r *http.Request) {
	var req reconcileBatchRequest
	if !decode(w, r, &req) {
		return
	}
	ids := make(map[string]struct{}, len(req.IDs))
	for _, id := range req.IDs {
		if id = strings.TrimSpace(id); id != "" {
			ids[id] = struct{}{}
		}
	}
	res, err := s.reconciler.ReconcileBatch(r.Context(), ids, req.DecidedBy, req.Justification)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) detectConflicts(w http.ResponseWriter, r *http.Request) {
	var sel model.Selection
	if !decode(w, r, &sel) {
		return
	}
	found, err := s.conflicts.Detect(r.Context(), sel)
	if err != nil {
		writeError(w, err)
		return
	}
	if found == nil {
		found = []model.ConflictRecord{}
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) listConflicts(w http.ResponseWriter, r *http.Request) {
	sel := selectionFromQuery(r)
	out, err := s.conflicts.List(r.Context(), sel.LotID, sel.HighwayID, sel.AssetType)
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []model.ConflictRecord{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) resolveConflict(w http.ResponseWriter, r *http.Request) {
	var in conflict.ResolveInput
	if !decode(w, r, &in) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.conflicts.Resolve(r.Context(), id, in); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved", "id": id})
}

func (s *Server) deleteNeed(w http.ResponseWriter, r *http.Request) {
	if err := s.conflicts.DeleteNeed(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func selectionFromQuery(r *http.Request) model.Selection {
	q := r.URL.Query()
	return model.Selection{
		LotID:     q.Get("lot_id"),
		HighwayID: q.Get("highway_id"),
		AssetType: model.AssetType(q.Get("asset_type")),
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

// statusFor maps domain sentinels onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation),
		errors.Is(err, model.ErrInvalidGeometry),
		errors.Is(err, model.ErrUnknownAssetType):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrNotPending):
		return http.StatusConflict
	case errors.Is(err, model.ErrConfiguration):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}
