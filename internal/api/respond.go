package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Veraticus/glrules/internal/common"
	"github.com/Veraticus/glrules/internal/model"
	"github.com/Veraticus/glrules/internal/storage"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type errorResponse struct {
	Error string `json:"error"`
}

// errBadRequest marks malformed request input.
var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeError maps domain errors to HTTP status codes. Unexpected errors are
// logged and reported without detail.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, model.ErrInvalidLineItem),
		errors.Is(err, model.ErrInvalidRule),
		errors.Is(err, storage.ErrInvalidApplication),
		errors.Is(err, storage.ErrInvalidCorrection),
		errors.Is(err, storage.ErrEmptyString):
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, common.ErrMissingOwner):
		writeErrorMessage(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, common.ErrNotFound):
		writeErrorMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, common.ErrDuplicateEntry):
		writeErrorMessage(w, http.StatusConflict, err.Error())
	default:
		slog.Error("Request failed", "error", err)
		writeErrorMessage(w, http.StatusInternalServerError, "internal error")
	}
}

// decode reads a JSON body into v and validates its struct tags.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %w", errBadRequest, err)
	}
	if err := validate.Struct(v); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", errBadRequest, strings.Join(msgs, "; "))
}

// queryInt reads a non-negative integer query parameter.
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, name)
	}
	return n, nil
}
