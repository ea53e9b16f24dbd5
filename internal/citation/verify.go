// Package citation checks that model-quoted snippets occur in their source page.
package citation

import "strings"

var squeezer = strings.NewReplacer("\n", "", " ", "")

// Normalize removes newlines and spaces. Tabs, carriage returns and
// punctuation are left untouched.
func Normalize(s string) string {
	return squeezer.Replace(s)
}

// Verify reports whether quote occurs in source once both are normalized.
// A nil or empty quote yields nil, meaning unknown.
func Verify(quote *string, source string) *bool {
	if quote == nil || *quote == "" {
		return nil
	}
	found := strings.Contains(Normalize(source), Normalize(*quote))
	return &found
}
