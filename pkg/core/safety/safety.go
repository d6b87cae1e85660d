// Package safety holds the keyword checks applied to user messages before
// they reach the model.
package safety

import "strings"

var bannedTerms = []string{"bomb", "kill", "suicide", "terrorism", "child sexual"}

var crisisPhrases = []string{
	"suicidal",
	"want to die",
	"end it",
	"can't do this anymore",
	"kill myself",
	"ending my life",
}

// Verdict is the result of checking one message.
type Verdict struct {
	// Allowed is false when the message matched a banned term.
	Allowed bool
	// Term is the first banned term found.
	Term string
	// Crisis is true when the message reads like a cry for help.
	Crisis bool
}

// Check scans text case-insensitively.
func Check(text string) Verdict {
	lower := strings.ToLower(text)
	v := Verdict{Allowed: true, Crisis: IsCrisis(lower)}
	for _, term := range bannedTerms {
		if strings.Contains(lower, term) {
			v.Allowed = false
			v.Term = term
			break
		}
	}
	return v
}

// Allowed reports whether text passes the banned-term filter.
func Allowed(text string) bool {
	return Check(text).Allowed
}

// IsCrisis reports whether text contains a crisis trigger phrase.
func IsCrisis(text string) bool {
	lower := strings.ToLower(text)
	// Normalize curly apostrophes typed on phones.
	lower = strings.ReplaceAll(lower, "’", "'")
	for _, p := range crisisPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
