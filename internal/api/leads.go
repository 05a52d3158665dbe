package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MrWong99/iq360/internal/leads"
)

// maxLeadBody caps JSON lead submissions.
const maxLeadBody = 64 << 10

func (s *Server) listLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := leads.ListOptions{
		Status:  leads.Status(strings.ToUpper(q.Get("status"))),
		ByNexus: q.Get("sort") == "nexus",
	}
	if opts.Status != "" && !opts.Status.IsValid() {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	writeJSON(w, http.StatusOK, s.book.List(r.Context(), opts))
}

func (s *Server) getLead(w http.ResponseWriter, r *http.Request) {
	l, err := s.book.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) createLead(w http.ResponseWriter, r *http.Request) {
	var l leads.Lead
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLeadBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&l); err != nil {
		writeError(w, http.StatusBadRequest, "invalid lead body")
		return
	}
	added, err := s.book.Add(r.Context(), l)
	if err != nil {
		if errors.Is(err, leads.ErrDuplicateID) {
			fail(w, r, err)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.Header().Set("Location", "/api/leads/"+added.ID)
	writeJSON(w, http.StatusCreated, added)
}

type contractResponse struct {
	Lead     leads.Lead `json:"lead"`
	Contract string     `json:"contract"`
}

// contract drafts an assignment for the lead and moves it to
// CONTRACT_TRIGGERED. Closed leads are refused before any model call.
func (s *Server) contract(w http.ResponseWriter, r *http.Request) {
	if s.analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis is not configured")
		return
	}
	l, err := s.book.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if l.Status == leads.StatusClosed {
		fail(w, r, fmt.Errorf("contract for %s: %w", l.ID, leads.ErrClosed))
		return
	}
	doc, err := s.analyzer.GenerateContract(r.Context(), l)
	if err != nil {
		fail(w, r, err)
		return
	}
	if l, err = s.book.Advance(r.Context(), l.ID, leads.StatusContractTriggered); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contractResponse{Lead: l, Contract: doc})
}
