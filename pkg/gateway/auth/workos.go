package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/workos/workos-go/v6/pkg/usermanagement"
	"github.com/workos/workos-go/v6/pkg/workos_errors"
)

type passwordAuthenticator interface {
	AuthenticateWithPassword(ctx context.Context, opts usermanagement.AuthenticateWithPasswordOpts) (usermanagement.AuthenticateResponse, error)
}

// WorkOS verifies passwords with WorkOS User Management.
type WorkOS struct {
	clientID string
	client   passwordAuthenticator
}

func NewWorkOS(apiKey, clientID string) *WorkOS {
	return &WorkOS{
		clientID: clientID,
		client:   usermanagement.NewClient(apiKey),
	}
}

func (w *WorkOS) VerifyPassword(ctx context.Context, email, password string) error {
	if password == "" {
		return ErrInvalidCredentials
	}
	_, err := w.client.AuthenticateWithPassword(ctx, usermanagement.AuthenticateWithPasswordOpts{
		ClientID: w.clientID,
		Email:    email,
		Password: password,
	})
	if err == nil {
		return nil
	}
	var httpErr workos_errors.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.Code {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrInvalidCredentials, httpErr.Message)
		}
	}
	return fmt.Errorf("workos authenticate: %w", err)
}
