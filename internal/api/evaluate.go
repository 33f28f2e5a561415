package api

import (
	"net/http"

	"github.com/Veraticus/glrules/internal/model"
)

type evaluateRequest struct {
	VendorName    *string             `json:"vendor_name" validate:"omitempty,max=512"`
	Amount        *float64            `json:"amount"`
	Date          *model.Date         `json:"date"`
	AISuggestion  *model.AISuggestion `json:"ai_suggestion"`
	Description   string              `json:"description" validate:"required,max=4096"`
	DocumentID    string              `json:"document_id" validate:"max=256"`
	LineItemIndex int                 `json:"line_item_index" validate:"gte=0"`
	Record        bool                `json:"record"`
}

func (req evaluateRequest) lineItem() model.LineItem {
	return model.LineItem{
		VendorName:  req.VendorName,
		Amount:      req.Amount,
		Date:        req.Date,
		Description: req.Description,
	}
}

type evaluateResponse struct {
	ApplicationID *int64 `json:"application_id,omitempty"`
	model.EvaluationResult
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	owner := ownerFrom(r.Context())
	result, err := s.evaluator.Evaluate(r.Context(), owner, req.lineItem(), req.AISuggestion)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := evaluateResponse{EvaluationResult: result}
	if req.Record {
		app := model.NewApplication(owner, req.DocumentID, req.LineItemIndex, result)
		if err := s.store.RecordApplication(r.Context(), &app); err != nil {
			writeError(w, err)
			return
		}
		resp.ApplicationID = &app.ID
	}

	writeJSON(w, http.StatusOK, resp)
}
