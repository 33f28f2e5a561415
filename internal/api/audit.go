package api

import (
	"net/http"

	"github.com/Veraticus/glrules/internal/model"
)

// DefaultMinOccurrences is how often a correction must repeat to be reported
// as a pattern.
const DefaultMinOccurrences = 2

type correctionRequest struct {
	ApplicationID   *int64  `json:"application_id" validate:"omitempty,gt=0"`
	RuleID          *string `json:"rule_id"`
	VendorName      string  `json:"vendor_name" validate:"max=512"`
	Description     string  `json:"description" validate:"max=4096"`
	OriginalGLCode  string  `json:"original_gl_code" validate:"max=64"`
	CorrectedGLCode string  `json:"corrected_gl_code" validate:"required,max=64"`
}

type correctionPatternResponse struct {
	SuggestedRule model.Rule `json:"suggested_rule"`
	model.CorrectionPattern
}

func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, err)
		return
	}

	apps, err := s.store.ListApplications(r.Context(), ownerFrom(r.Context()), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apps)
}

func (s *Server) handleListCorrections(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, err)
		return
	}

	corrections, err := s.store.ListCorrections(r.Context(), ownerFrom(r.Context()), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, corrections)
}

func (s *Server) handleCreateCorrection(w http.ResponseWriter, r *http.Request) {
	var req correctionRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	c := model.Correction{
		OwnerID:         ownerFrom(r.Context()),
		ApplicationID:   req.ApplicationID,
		RuleID:          req.RuleID,
		VendorName:      req.VendorName,
		Description:     req.Description,
		OriginalGLCode:  req.OriginalGLCode,
		CorrectedGLCode: req.CorrectedGLCode,
	}
	if err := s.store.RecordCorrection(r.Context(), &c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleCorrectionPatterns(w http.ResponseWriter, r *http.Request) {
	minOccurrences, err := queryInt(r, "min_occurrences", DefaultMinOccurrences)
	if err != nil {
		writeError(w, err)
		return
	}

	owner := ownerFrom(r.Context())
	patterns, err := s.store.CorrectionPatterns(r.Context(), owner, minOccurrences)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]correctionPatternResponse, len(patterns))
	for i, p := range patterns {
		resp[i] = correctionPatternResponse{
			CorrectionPattern: p,
			SuggestedRule:     p.SuggestedRule(owner),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
