package parser

import (
	"strings"

	"github.com/amishk599/jobsieve/internal/model"
)

// ParseLinkedIn extracts listings from a LinkedIn job alert. Each listing is
// a block of three lines:
//
//	Acme Corp
//	Senior Engineer
//	Acme Corp · London (Hybrid)
//
// optionally followed by a salary line and a posted line.
func ParseLinkedIn(msg model.RawMessage) []model.Candidate {
	toks := tokenize(msg.Body)
	reqs := extractRequirements(plainText(msg.Body))

	var out []model.Candidate
	for i := 0; i+2 < len(toks); {
		company, title, footer := toks[i], toks[i+1], toks[i+2]
		if company.kind != tokText || title.kind != tokText || footer.kind != tokCompanyLocation ||
			!strings.EqualFold(footer.left, company.text) {
			i++
			continue
		}
		c := newCandidate(msg, model.SourceLinkedIn, title.text, company.text, footer.right, reqs)
		i = trailer(toks, i+3, &c)
		out = append(out, c)
	}
	return out
}
