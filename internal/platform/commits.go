package platform

import "strings"

// Change reason types, following Conventional Commits.
const (
	CommitTypeFeat     = "feat"
	CommitTypeFix      = "fix"
	CommitTypeDocs     = "docs"
	CommitTypeRefactor = "refactor"
	CommitTypeChore    = "chore"
)

// Footer marks change reasons written through arbor.
const Footer = "Powered-by: Arbor"

// FormatChangeReason builds "<type>(<scope>): <subject>" followed by the body
// and the footer. It is the message the fs store commits with when passed in
// the context under core.ChangeReasonKey.
func FormatChangeReason(ctype, scope, subject, body string) string {
	var sb strings.Builder
	if ctype == "" {
		ctype = CommitTypeChore
	}
	sb.WriteString(ctype)
	if scope != "" {
		sb.WriteString("(" + scope + ")")
	}
	sb.WriteString(": ")
	sb.WriteString(subject)
	if body = strings.TrimSpace(body); body != "" {
		sb.WriteString("\n\n" + body)
	}
	sb.WriteString("\n\n" + Footer)
	return sb.String()
}

// AppendFooter adds the footer to a free-form message unless it has one.
func AppendFooter(msg string) string {
	if strings.Contains(msg, Footer) {
		return msg
	}
	msg = strings.TrimRight(msg, "\n")
	return msg + "\n\n" + Footer
}
