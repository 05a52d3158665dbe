package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/MrWong99/iq360/internal/analysis"
	"github.com/MrWong99/iq360/internal/leads"
	"github.com/MrWong99/iq360/internal/persona"
)

// maxUpload caps a multipart upload: the image plus form fields.
const maxUpload = analysis.MaxImageBytes + 1<<20

type upload struct {
	image    []byte
	mimeType string
	address  string
	leadID   string
}

var errBadUpload = errors.New("api: invalid multipart upload")

// readUpload parses the multipart form. A missing or empty image is
// reported as analysis.ErrEmptyImage, a body over maxUpload as
// analysis.ErrImageTooLarge and anything else unreadable as errBadUpload.
func readUpload(w http.ResponseWriter, r *http.Request) (upload, error) {
	if r.ContentLength > maxUpload {
		return upload{}, fmt.Errorf("%w: body of %d bytes", analysis.ErrImageTooLarge, r.ContentLength)
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		if tooBig := new(http.MaxBytesError); errors.As(err, &tooBig) {
			return upload{}, fmt.Errorf("%w: body over %d bytes", analysis.ErrImageTooLarge, tooBig.Limit)
		}
		return upload{}, fmt.Errorf("%w: %w", errBadUpload, err)
	}
	u := upload{
		address: strings.TrimSpace(r.FormValue("address")),
		leadID:  r.FormValue("lead"),
	}
	f, hdr, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return u, analysis.ErrEmptyImage
	}
	if err != nil {
		return upload{}, fmt.Errorf("%w: %w", errBadUpload, err)
	}
	defer f.Close()
	if u.image, err = io.ReadAll(f); err != nil {
		return upload{}, fmt.Errorf("%w: %w", errBadUpload, err)
	}
	if len(u.image) == 0 {
		return u, analysis.ErrEmptyImage
	}
	u.mimeType = hdr.Header.Get("Content-Type")
	if u.mimeType == "application/octet-stream" {
		u.mimeType = ""
	}
	return u, nil
}

type propertyResponse struct {
	Report analysis.PropertyReport `json:"report"`
	Cached bool                    `json:"cached"`
	Lead   *leads.Lead             `json:"lead,omitempty"`
}

func (s *Server) analyzeProperty(w http.ResponseWriter, r *http.Request) {
	if s.analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis is not configured")
		return
	}
	u, err := readUpload(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}

	var lead *leads.Lead
	if u.leadID != "" {
		l, err := s.book.Get(r.Context(), u.leadID)
		if err != nil {
			fail(w, r, err)
			return
		}
		if u.address == "" {
			u.address = l.Address
		}
		lead = &l
	}

	rep, cached, err := s.analyzer.AnalyzeProperty(r.Context(), u.image, u.mimeType, u.address)
	if err != nil {
		fail(w, r, err)
		return
	}
	if lead != nil {
		updated, err := s.book.ApplyAnalysis(r.Context(), lead.ID, rep.HealthScore, rep.DistressMarkers)
		if err != nil {
			fail(w, r, err)
			return
		}
		lead = &updated
	}
	writeJSON(w, http.StatusOK, propertyResponse{Report: rep, Cached: cached, Lead: lead})
}

func (s *Server) assess(w http.ResponseWriter, r *http.Request) {
	if s.analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis is not configured")
		return
	}
	u, err := readUpload(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	a, err := s.analyzer.Assess(r.Context(), u.image, u.mimeType, u.address)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) comps(w http.ResponseWriter, r *http.Request) {
	if s.analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis is not configured")
		return
	}
	rep, err := s.analyzer.MarketComps(r.Context(), r.URL.Query().Get("address"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) listPersonas(w http.ResponseWriter, _ *http.Request) {
	var out []persona.Persona
	if s.personas != nil {
		out = s.personas.List()
	}
	if out == nil {
		out = []persona.Persona{}
	}
	writeJSON(w, http.StatusOK, out)
}
