package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Entitlement is a user's premium status.
type Entitlement struct {
	UserID    string     `json:"user_id"`
	IsPremium bool       `json:"is_premium"`
	Expires   *time.Time `json:"premium_expires,omitempty"`
	Provider  string     `json:"provider,omitempty"`
}

// Grant describes a premium change.
type Grant struct {
	Premium  bool
	Expires  *time.Time
	Provider string
	Ref      string
}

// SetPremium upserts the premium flag of userID.
func (s *Store) SetPremium(ctx context.Context, userID string, g Grant) error {
	var expires sql.NullTime
	if g.Expires != nil {
		expires = sql.NullTime{Time: g.Expires.UTC(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, is_premium, premium_expires, payment_provider, payment_ref, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id) DO UPDATE SET
		   is_premium = EXCLUDED.is_premium,
		   premium_expires = EXCLUDED.premium_expires,
		   payment_provider = EXCLUDED.payment_provider,
		   payment_ref = EXCLUDED.payment_ref,
		   updated_at = EXCLUDED.updated_at`,
		userID, g.Premium, expires, nullString(g.Provider), nullString(g.Ref), s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set premium: %w", err)
	}
	return nil
}

// Entitlement loads the premium status of userID. Unknown users are not
// premium, and a lapsed expiry reads as not premium.
func (s *Store) Entitlement(ctx context.Context, userID string) (Entitlement, error) {
	var (
		premium  bool
		expires  sql.NullTime
		provider sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT is_premium, premium_expires, payment_provider FROM users WHERE user_id = $1`,
		userID,
	).Scan(&premium, &expires, &provider)
	if errors.Is(err, sql.ErrNoRows) {
		return Entitlement{UserID: userID}, nil
	}
	if err != nil {
		return Entitlement{}, fmt.Errorf("query premium: %w", err)
	}

	e := Entitlement{UserID: userID, IsPremium: premium, Provider: provider.String}
	if expires.Valid {
		t := expires.Time
		e.Expires = &t
		if !t.After(s.now()) {
			e.IsPremium = false
		}
	}
	return e, nil
}

// IsPremium reports whether userID currently has premium access.
func (s *Store) IsPremium(ctx context.Context, userID string) (bool, error) {
	e, err := s.Entitlement(ctx, userID)
	if err != nil {
		return false, err
	}
	return e.IsPremium, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
