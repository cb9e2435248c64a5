package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/examcoach/internal/gateway"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func fail(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, gateway.Envelope{Success: false, Error: msg, Code: code})
}

func internalError(w http.ResponseWriter, op string, err error) {
	slog.Error(op, "error", err)
	fail(w, http.StatusInternalServerError, "Internal server error.", "INTERNAL_SERVER_ERROR")
}

func ok() gateway.Envelope {
	return gateway.Envelope{Success: true}
}

// decodeValid decodes the JSON body into v and validates it. It writes the
// error response and returns false on failure.
func (s *Server) decodeValid(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		fail(w, http.StatusBadRequest, "Invalid JSON body.", "INVALID_REQUEST")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		fail(w, http.StatusBadRequest, validationMessage(err), "MISSING_FIELD")
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required", "required_if":
			parts = append(parts, fmt.Sprintf("missing required field: %s", fe.Namespace()))
		default:
			parts = append(parts, fmt.Sprintf("invalid value for %s (%s %s)", fe.Namespace(), fe.Tag(), fe.Param()))
		}
	}
	return strings.Join(parts, "; ")
}
