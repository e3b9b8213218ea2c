package security

import (
	"strings"

	"github.com/flipdesk/flipquery/internal/lexicon"
)

// DefaultCredentialKeywords are phrases that indicate a question is after
// account credentials rather than trading data.
var DefaultCredentialKeywords = []string{
	"password", "bank pin", "authenticator", "2fa code", "recovery code", "login details",
}

// PIIDetector flags questions that ask for account credentials. Matching is
// on whole words, so "spinning" never trips "pin".
type PIIDetector struct {
	keywords []string
}

func NewPIIDetector(keywords []string) *PIIDetector {
	kws := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kws = append(kws, k)
		}
	}
	return &PIIDetector{keywords: kws}
}

// Detect returns true and the matched keyword if text mentions one.
func (d *PIIDetector) Detect(text string) (bool, string) {
	kw, ok := lexicon.AnyPhrase(text, d.keywords)
	return ok, kw
}
