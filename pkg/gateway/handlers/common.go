package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vango-go/resilios/pkg/core"
	"github.com/vango-go/resilios/pkg/gateway/apierror"
	"github.com/vango-go/resilios/pkg/gateway/auth"
	"github.com/vango-go/resilios/pkg/gateway/mw"
)

// validate reports fields by their JSON names.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// decodeJSON reads one JSON document into dst and validates it.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return &core.Error{Type: core.ErrInvalidRequest, Message: "request body too large", Code: "body_too_large"}
		case errors.Is(err, io.EOF):
			return core.NewInvalidRequestError("request body is required")
		default:
			return core.NewInvalidRequestError("invalid JSON body")
		}
	}
	return validate.Struct(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeCoreErrorJSON(w http.ResponseWriter, reqID string, coreErr *core.Error, status int) {
	if coreErr != nil && coreErr.RequestID == "" {
		coreErr.RequestID = reqID
	}
	writeJSON(w, status, apierror.Envelope{Error: coreErr})
}

// writeErr maps err onto the canonical envelope. Server-side failures are
// logged with the request id; client errors are not.
func writeErr(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	coreErr, status := apierror.FromError(err, reqID)
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", "request_id", reqID, "path", r.URL.Path, "status", status, "error", err)
	}
	writeCoreErrorJSON(w, reqID, coreErr, status)
}

// resolveUser picks the user a request acts for. A signed-in principal
// wins; a claimed id that disagrees with it is rejected.
func resolveUser(r *http.Request, claimed string) (string, error) {
	claimed = strings.TrimSpace(claimed)
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		if claimed != "" && claimed != p.UserID {
			return "", &core.Error{
				Type:    core.ErrPermission,
				Message: "user_id does not match the signed-in user",
				Param:   "user_id",
			}
		}
		return p.UserID, nil
	}
	if claimed == "" {
		return "", core.NewInvalidRequestErrorWithParam("user_id is required", "user_id")
	}
	return claimed, nil
}

func loggerOr(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

func hasPrincipal(r *http.Request) bool {
	_, ok := auth.PrincipalFrom(r.Context())
	return ok
}
