package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/vango-go/resilios/pkg/gateway/auth"
)

// LoginService exchanges credentials for a session. auth.Authenticator implements it.
type LoginService interface {
	Login(ctx context.Context, email, password string) (auth.Session, error)
}

type loginBody struct {
	Email    string `json:"email" validate:"required,email,max=320"`
	Password string `json:"password" validate:"max=1024"`
}

type LoginHandler struct {
	Auth   LoginService
	Logger *slog.Logger
}

func (h LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if err := decodeJSON(r, &body); err != nil {
		writeErr(w, r, h.Logger, err)
		return
	}
	sess, err := h.Auth.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		writeErr(w, r, h.Logger, err)
		return
	}
	loggerOr(h.Logger).Info("user signed in", "user_id", sess.UserID)
	writeJSON(w, http.StatusOK, sess)
}
