package inference

import (
	"fmt"
	"strings"
)

// BuildPrompt assembles the request text. context is the full conversation
// transcript, which already ends with the user's question.
func BuildPrompt(context, question string, withImage bool, maxSentences int) string {
	if maxSentences <= 0 {
		maxSentences = 4
	}

	var b strings.Builder
	b.WriteString(context)
	if withImage {
		fmt.Fprintf(&b, "\nContext of question: %s. Analyze the current scene.", question)
		b.WriteString("\n- Answer normally if unrelated to visual context")
		fmt.Fprintf(&b, "\n- Keep answer concise (under %d sentences)", maxSentences)
		b.WriteString("\n- Focus on objects/text when relevant")
		return b.String()
	}
	fmt.Fprintf(&b, "\n- Keep answer concise (under %d sentences)", maxSentences)
	return b.String()
}
