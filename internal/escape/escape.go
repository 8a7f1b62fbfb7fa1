// Package escape implements the special-character substitution pass applied
// to text content before XML serialization.
//
// The rules are applied as a single independent left-to-right pass over the
// original text: at each position the first rule (in configured order) whose
// pattern matches consumes its input, and the emitted replacement is never
// rescanned. Chaining one rule's output into another rule's input would make
// the result depend on rule order in surprising ways and break idempotence.
package escape

import (
	"strings"

	"github.com/rpattn/oigen/internal/domain"
)

// Sanitize applies the ordered replacement rules to text in one pass.
// Replacement output is emitted verbatim and never re-matched. Rules with an
// empty From pattern are ignored.
func Sanitize(text string, rules []domain.Replacement) string {
	if text == "" || len(rules) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))

	for i := 0; i < len(text); {
		matched := false
		for _, rule := range rules {
			if rule.From == "" {
				continue
			}
			if strings.HasPrefix(text[i:], rule.From) {
				b.WriteString(rule.To)
				i += len(rule.From)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(text[i])
			i++
		}
	}

	return b.String()
}
