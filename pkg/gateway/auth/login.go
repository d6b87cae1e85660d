package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidCredentials is returned when the password check rejects a login.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// PasswordVerifier checks an email/password pair against an identity provider.
type PasswordVerifier interface {
	VerifyPassword(ctx context.Context, email, password string) error
}

// Session is the result of a successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
}

// Authenticator signs users in. Verifier may be nil, in which case any
// Gmail address is accepted without a password check.
type Authenticator struct {
	Verifier PasswordVerifier
	Issuer   *Issuer
}

func (a Authenticator) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !IsGmail(email) {
		return Session{}, ErrNotGmail
	}
	if a.Verifier != nil {
		if err := a.Verifier.VerifyPassword(ctx, email, password); err != nil {
			return Session{}, err
		}
	}

	p := Principal{UserID: UserIDFromEmail(email), Email: email}
	token, exp, err := a.Issuer.Issue(p)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	return Session{Token: token, ExpiresAt: exp, UserID: p.UserID, Email: p.Email}, nil
}
