// Package classify decides whether a piece of work is sensitive enough to
// require human approval before execution. Classification is a
// case-insensitive keyword scan over the record's text, tuned to flag
// anything that moves money or sends on the owner's behalf.
package classify

import "strings"

var sensitiveKeywords = []string{
	"payment",
	"send",
	"invoice",
	"transfer",
	"bank",
}

// Keywords returns the sensitive keyword list.
func Keywords() []string {
	out := make([]string, len(sensitiveKeywords))
	copy(out, sensitiveKeywords)
	return out
}

// RequiresApproval reports whether the text mentions a sensitive action,
// along with the keyword that triggered the decision. Matching is
// case-insensitive and substring-based, so "SEND PAYMENT NOW" and
// "sending" both flag.
func RequiresApproval(text string) (bool, string) {
	lowered := strings.ToLower(text)
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lowered, keyword) {
			return true, keyword
		}
	}
	return false, ""
}
