package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/didanchor/didanchor/internal/cache"
	"github.com/didanchor/didanchor/internal/document"
)

type Server struct {
	engine *cache.Engine
}

// NewServer exposes the cache's resolution operations over HTTP. Read-only:
// apply and rollback stay with the ledger observer.
func NewServer(engine *cache.Engine) http.Handler {
	s := &Server{engine: engine}

	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/1.0", func(r chi.Router) {
		r.Get("/identifiers/{did}", s.handleResolve)
		r.Get("/versions/{id}", s.handleLookup)
		r.Get("/versions/{id}/first", s.handleFirst)
		r.Get("/versions/{id}/last", s.handleLast)
		r.Get("/versions/{id}/next", s.handleNext)
		r.Get("/versions/{id}/prev", s.handlePrev)
	})

	return r
}

type documentResponse struct {
	DID      string            `json:"did,omitempty"`
	Version  string            `json:"versionId,omitempty"`
	Document document.Document `json:"document"`
}

type versionResponse struct {
	Version string `json:"versionId"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	did := chi.URLParam(r, "did")

	tip, err := s.engine.Last(did)
	if err != nil {
		writeError(w, err)
		return
	}
	doc, err := s.engine.Lookup(r.Context(), tip)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, documentResponse{DID: did, Version: tip, Document: doc})
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	doc, err := s.engine.Lookup(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, documentResponse{Version: id, Document: doc})
}

func (s *Server) handleFirst(w http.ResponseWriter, r *http.Request) {
	version, err := s.engine.First(r.Context(), chi.URLParam(r, "id"))
	writeVersion(w, version, err)
}

func (s *Server) handleLast(w http.ResponseWriter, r *http.Request) {
	version, err := s.engine.Last(chi.URLParam(r, "id"))
	writeVersion(w, version, err)
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	version, err := s.engine.Next(chi.URLParam(r, "id"))
	writeVersion(w, version, err)
}

func (s *Server) handlePrev(w http.ResponseWriter, r *http.Request) {
	version, err := s.engine.Prev(r.Context(), chi.URLParam(r, "id"))
	writeVersion(w, version, err)
}

func writeVersion(w http.ResponseWriter, version string, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, versionResponse{Version: version})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	if errors.Is(err, cache.ErrUnknown) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
