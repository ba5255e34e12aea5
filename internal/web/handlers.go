package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/pricesheet/internal/importer"
	"github.com/JonMunkholm/pricesheet/internal/ledger"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	p, err := s.orch.Progress(r.Context())
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, p)
}

// sheetView is a batch sheet with its ledger state.
type sheetView struct {
	ID          string          `json:"id"`
	Distributor string          `json:"distributor"`
	Product     string          `json:"product"`
	Status      ledger.Status   `json:"status"`
	Attempts    int             `json:"attempts"`
	ErrorKind   string          `json:"error_kind,omitempty"`
	ErrorDetail string          `json:"error_detail,omitempty"`
	Summary     *ledger.Summary `json:"summary,omitempty"`
	UpdatedAt   *time.Time      `json:"updated_at,omitempty"`
}

func (s *Server) sheetView(r *http.Request, id string) (sheetView, bool, error) {
	sh, ok := s.orch.Batch().Sheet(id)
	if !ok {
		return sheetView{}, false, nil
	}
	e, err := s.orch.Ledger().Status(r.Context(), id)
	if err != nil {
		return sheetView{}, true, err
	}
	v := sheetView{
		ID:          id,
		Distributor: sh.Distributor,
		Product:     sh.ProductName(),
		Status:      e.Status,
		Attempts:    e.Attempts,
		ErrorKind:   e.ErrorKind,
		ErrorDetail: e.ErrorDetail,
		Summary:     e.Summary,
	}
	if !e.UpdatedAt.IsZero() {
		v.UpdatedAt = &e.UpdatedAt
	}
	return v, true, nil
}

func (s *Server) handleListSheets(w http.ResponseWriter, r *http.Request) {
	ids := s.orch.Batch().IDs()
	views := make([]sheetView, 0, len(ids))
	for _, id := range ids {
		v, _, err := s.sheetView(r, id)
		if err != nil {
			respondError(w, r, err, http.StatusInternalServerError)
			return
		}
		views = append(views, v)
	}
	writeJSON(w, views)
}

func (s *Server) handleSheet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sheetID")
	v, ok, err := s.sheetView(r, id)
	if !ok {
		writeError(w, http.StatusNotFound, "sheet not in batch", "NF001")
		return
	}
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	history, err := s.orch.Ledger().History(r.Context(), id)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, struct {
		sheetView
		History []ledger.Event `json:"history"`
	}{v, history})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	p, err := s.orch.Preview(r.Context(), chi.URLParam(r, "sheetID"))
	if errors.Is(err, importer.ErrUnknownSheet) {
		writeError(w, http.StatusNotFound, "sheet not in batch", "NF001")
		return
	}
	if err != nil {
		respondError(w, r, err, http.StatusBadGateway)
		return
	}
	writeJSON(w, p)
}

func (s *Server) handleImportSheet(w http.ResponseWriter, r *http.Request) {
	res, err := s.orch.ProcessSheet(r.Context(), chi.URLParam(r, "sheetID"))
	if errors.Is(err, importer.ErrUnknownSheet) {
		writeError(w, http.StatusNotFound, "sheet not in batch", "NF001")
		return
	}
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	status := http.StatusOK
	if res.Outcome == importer.OutcomeFailed {
		status = http.StatusUnprocessableEntity
	}
	writeJSONStatus(w, status, res)
}

func (s *Server) handleForget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sheetID")
	if _, ok := s.orch.Batch().Sheet(id); !ok {
		writeError(w, http.StatusNotFound, "sheet not in batch", "NF001")
		return
	}
	if err := s.orch.Ledger().Forget(r.Context(), id); err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	if !s.running.TryLock() {
		writeError(w, http.StatusConflict, "an import run is already in progress", "RUN001")
		return
	}
	defer s.running.Unlock()

	next, err := s.orch.ProcessNext(r.Context())
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, next)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if !s.running.TryLock() {
		writeError(w, http.StatusConflict, "an import run is already in progress", "RUN001")
		return
	}
	defer s.running.Unlock()

	report, err := s.orch.RunBatch(r.Context())
	if err != nil {
		respondError(w, r, err, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, report)
}
