// Package api exposes the lead book, the analysis service and the persona
// registry as a JSON HTTP API.
//
//	GET  /api/leads                  ?status=NEGOTIATING&sort=nexus
//	POST /api/leads
//	GET  /api/leads/{id}
//	POST /api/leads/{id}/contract
//	POST /api/analysis/property      multipart: image, address, lead
//	POST /api/analysis/assess        multipart: image, address
//	GET  /api/analysis/comps         ?address=
//	GET  /api/personas
//
// Errors are returned as {"error": "..."} with a short message; causes are
// logged, not echoed.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrWong99/iq360/internal/analysis"
	"github.com/MrWong99/iq360/internal/leads"
	"github.com/MrWong99/iq360/internal/observe"
	"github.com/MrWong99/iq360/internal/persona"
)

// Analyzer is the part of the analysis service the API calls.
type Analyzer interface {
	AnalyzeProperty(ctx context.Context, image []byte, mimeType, address string) (analysis.PropertyReport, bool, error)
	MarketComps(ctx context.Context, address string) (analysis.MarketReport, error)
	GenerateContract(ctx context.Context, lead leads.Lead) (string, error)
	Assess(ctx context.Context, image []byte, mimeType, address string) (analysis.Assessment, error)
}

// Server holds the handler dependencies.
type Server struct {
	book     *leads.Book
	analyzer Analyzer
	personas *persona.Registry
}

// New returns a Server. analyzer may be nil, in which case the analysis and
// contract routes answer 503.
func New(book *leads.Book, analyzer Analyzer, personas *persona.Registry) *Server {
	return &Server{book: book, analyzer: analyzer, personas: personas}
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/leads", s.listLeads)
	mux.HandleFunc("POST /api/leads", s.createLead)
	mux.HandleFunc("GET /api/leads/{id}", s.getLead)
	mux.HandleFunc("POST /api/leads/{id}/contract", s.contract)
	mux.HandleFunc("POST /api/analysis/property", s.analyzeProperty)
	mux.HandleFunc("POST /api/analysis/assess", s.assess)
	mux.HandleFunc("GET /api/analysis/comps", s.comps)
	mux.HandleFunc("GET /api/personas", s.listPersonas)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// fail maps err to a status code and a message safe to show clients.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status int
		msg    string
	)
	switch {
	case errors.Is(err, leads.ErrNotFound):
		status, msg = http.StatusNotFound, "lead not found"
	case errors.Is(err, leads.ErrDuplicateID):
		status, msg = http.StatusConflict, "lead id already exists"
	case errors.Is(err, leads.ErrBackwardsStatus):
		status, msg = http.StatusConflict, "lead status cannot move backwards"
	case errors.Is(err, leads.ErrClosed):
		status, msg = http.StatusConflict, "lead is closed"
	case errors.Is(err, errBadUpload):
		status, msg = http.StatusBadRequest, "invalid multipart upload"
	case errors.Is(err, analysis.ErrImageTooLarge):
		status, msg = http.StatusRequestEntityTooLarge, "image is too large"
	case errors.Is(err, analysis.ErrEmptyImage):
		status, msg = http.StatusBadRequest, "image is required"
	case errors.Is(err, analysis.ErrEmptyAddress):
		status, msg = http.StatusBadRequest, "address is required"
	case errors.Is(err, analysis.ErrMalformedReply):
		status, msg = http.StatusBadGateway, "model returned an unreadable reply"
	case errors.Is(err, context.DeadlineExceeded):
		status, msg = http.StatusGatewayTimeout, "model call timed out"
	default:
		status, msg = http.StatusBadGateway, "analysis backend unavailable"
	}
	level := observe.Logger(r.Context()).Warn
	if status >= 500 {
		level = observe.Logger(r.Context()).Error
	}
	level("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	writeError(w, status, msg)
}
