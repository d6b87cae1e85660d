package apierror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vango-go/resilios/pkg/core"
	"github.com/vango-go/resilios/pkg/core/chat"
	"github.com/vango-go/resilios/pkg/core/mascot"
	"github.com/vango-go/resilios/pkg/core/providers/gemini"
	"github.com/vango-go/resilios/pkg/gateway/auth"
	"github.com/vango-go/resilios/pkg/gateway/payments"
	"github.com/vango-go/resilios/pkg/store"
)

type Envelope struct {
	Error *core.Error `json:"error"`
}

// sentinels maps domain errors onto the canonical envelope. Order matters:
// chat.ErrBackend wraps provider errors and is checked after them.
var sentinels = []struct {
	err    error
	typ    core.ErrorType
	code   string
	msg    string
	status int
}{
	{chat.ErrEmptyMessage, core.ErrInvalidRequest, "empty_message", "message or attachment is required", http.StatusBadRequest},
	{chat.ErrUnsupportedMedia, core.ErrInvalidRequest, "unsupported_media", "only image and video attachments are supported", http.StatusBadRequest},
	{chat.ErrAttachmentTooLarge, core.ErrInvalidRequest, "attachment_too_large", "attachment too large", http.StatusRequestEntityTooLarge},
	{chat.ErrBlocked, core.ErrInvalidRequest, "blocked", "message blocked by safety policy", http.StatusBadRequest},
	{chat.ErrQuotaExceeded, core.ErrPaymentRequired, "quota_exceeded", "free daily chat limit reached; upgrade to premium for unlimited chats", http.StatusPaymentRequired},
	{chat.ErrSendInFlight, core.ErrConflict, "send_in_flight", "a message is already being sent", http.StatusConflict},
	{auth.ErrNotGmail, core.ErrPermission, "gmail_only", "only Gmail accounts are accepted", http.StatusForbidden},
	{auth.ErrInvalidCredentials, core.ErrAuthentication, "invalid_credentials", "invalid email or password", http.StatusUnauthorized},
	{auth.ErrInvalidToken, core.ErrAuthentication, "invalid_token", "invalid or expired token", http.StatusUnauthorized},
	{payments.ErrNotConfigured, core.ErrNotConfigured, "payments_not_configured", "payments are not configured", http.StatusNotImplemented},
	{payments.ErrNotCompleted, core.ErrInvalidRequest, "payment_not_completed", "payment was not completed", http.StatusBadRequest},
	{payments.ErrInvalidSignature, core.ErrInvalidRequest, "invalid_signature", "webhook signature verification failed", http.StatusBadRequest},
	{mascot.ErrNoMascots, core.ErrNotFound, "no_mascots", "no mascots found", http.StatusNotFound},
	{store.ErrNotFound, core.ErrNotFound, "", "not found", http.StatusNotFound},
}

func FromError(err error, requestID string) (*core.Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}

	// Context timeouts/cancellation.
	if errors.Is(err, context.DeadlineExceeded) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request timeout",
			RequestID: requestID,
		}, http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request cancelled",
			Code:      "cancelled",
			RequestID: requestID,
		}, http.StatusRequestTimeout
	}

	// Already canonical.
	var coreErr *core.Error
	if errors.As(err, &coreErr) && coreErr != nil {
		out := *coreErr
		out.RequestID = requestID
		return &out, statusFromType(coreErr.Type)
	}

	// Request body validation.
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &core.Error{
			Type:      core.ErrInvalidRequest,
			Message:   validationMessage(fe),
			Param:     paramName(fe),
			RequestID: requestID,
		}, http.StatusBadRequest
	}

	// Model errors surface as 502 unless the request itself was at fault.
	var gemErr *gemini.Error
	if errors.As(err, &gemErr) && gemErr != nil {
		out := &core.Error{
			Type:      core.ErrProvider,
			Message:   gemErr.Message,
			Code:      gemErr.Code,
			RequestID: requestID,
		}
		switch gemErr.Type {
		case gemini.ErrInvalidRequest:
			out.Type = core.ErrInvalidRequest
			return out, http.StatusBadRequest
		case gemini.ErrRateLimit:
			out.Code = "provider_rate_limited"
			return out, http.StatusServiceUnavailable
		case gemini.ErrOverloaded:
			out.Code = "provider_overloaded"
			return out, http.StatusServiceUnavailable
		}
		return out, http.StatusBadGateway
	}

	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return &core.Error{
				Type:      s.typ,
				Message:   s.msg,
				Code:      s.code,
				RequestID: requestID,
			}, s.status
		}
	}

	if errors.Is(err, chat.ErrBackend) {
		return &core.Error{
			Type:      core.ErrProvider,
			Message:   "model call failed; try again later",
			Code:      "model_failed",
			RequestID: requestID,
		}, http.StatusBadGateway
	}

	// Unknown errors: treat as internal API error (do not leak details by default).
	return &core.Error{
		Type:      core.ErrAPI,
		Message:   "internal error",
		RequestID: requestID,
	}, http.StatusInternalServerError
}

func statusFromType(t core.ErrorType) int {
	switch t {
	case core.ErrInvalidRequest:
		return http.StatusBadRequest
	case core.ErrAuthentication:
		return http.StatusUnauthorized
	case core.ErrPaymentRequired:
		return http.StatusPaymentRequired
	case core.ErrPermission:
		return http.StatusForbidden
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrConflict:
		return http.StatusConflict
	case core.ErrRateLimit:
		return http.StatusTooManyRequests
	case core.ErrNotConfigured:
		return http.StatusNotImplemented
	case core.ErrProvider:
		return http.StatusBadGateway
	case core.ErrAPI:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func paramName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	return ns
}

func validationMessage(fe validator.FieldError) string {
	name := paramName(fe)
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s", name, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	case "email":
		return name + " must be an email address"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", name, fe.Param())
	case "latitude", "longitude":
		return name + " is out of range"
	default:
		return fmt.Sprintf("%s failed %s validation", name, fe.Tag())
	}
}
