package auth

import (
	"errors"
	"strings"
)

// ErrNotGmail is returned for sign-ins with a non-Gmail address.
var ErrNotGmail = errors.New("auth: only gmail.com addresses are accepted")

const gmailSuffix = "@gmail.com"

// IsGmail reports whether email is a gmail.com address, ignoring case.
func IsGmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	return len(email) > len(gmailSuffix) && strings.HasSuffix(email, gmailSuffix)
}

// UserIDFromEmail derives the stable user id: "user-" followed by the
// lowercased address with every character outside [a-z0-9] replaced by '_'.
func UserIDFromEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	var b strings.Builder
	b.Grow(len("user-") + len(email))
	b.WriteString("user-")
	for _, r := range email {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}
