package extract

import (
	"strings"

	"github.com/sells-group/childcare-cli/pkg/anthropic"
)

// extractText concatenates all text content blocks.
func extractText(resp *anthropic.MessageResponse) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "" || b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// cleanJSON strips markdown fences and extracts the outermost JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// responseJSON returns the answer payload: the forced tool's input when
// present, otherwise JSON recovered from the text blocks.
func responseJSON(resp *anthropic.MessageResponse, tool string) []byte {
	if resp == nil {
		return nil
	}
	if raw, ok := resp.ToolInput(tool); ok {
		return raw
	}
	return []byte(cleanJSON(extractText(resp)))
}
