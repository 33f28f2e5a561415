package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Veraticus/glrules/internal/model"
)

type ruleRequest struct {
	IsActive    *bool            `json:"is_active"`
	Conditions  model.Conditions `json:"conditions"`
	Action      model.Action     `json:"action"`
	Name        string           `json:"name" validate:"required,max=200"`
	Description string           `json:"description" validate:"max=2000"`
	Priority    int              `json:"priority"`
}

func (req ruleRequest) apply(rule *model.Rule) {
	rule.Name = req.Name
	rule.Description = req.Description
	rule.Priority = req.Priority
	rule.Conditions = req.Conditions
	rule.Action = req.Action
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))

	list, err := s.store.ListRules(r.Context(), ownerFrom(r.Context()), activeOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	owner := ownerFrom(r.Context())
	rule := model.Rule{OwnerID: owner, IsActive: true}
	req.apply(&rule)

	if err := s.store.CreateRule(r.Context(), &rule); err != nil {
		writeError(w, err)
		return
	}
	s.evaluator.Invalidate(owner)

	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.store.GetRule(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	owner := ownerFrom(r.Context())
	rule, err := s.store.GetRule(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	req.apply(rule)
	if err := s.store.UpdateRule(r.Context(), rule); err != nil {
		writeError(w, err)
		return
	}
	s.evaluator.Invalidate(owner)

	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r.Context())
	if err := s.store.DeleteRule(r.Context(), owner, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	s.evaluator.Invalidate(owner)

	w.WriteHeader(http.StatusNoContent)
}
