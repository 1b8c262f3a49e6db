package llm

import (
	"regexp"
	"strings"

	"github.com/soyeahso/dealflow/internal/logging"
)

// Some models answer a tool-calling request with tool markup written into
// the text instead of structured calls. These patterns remove it.
var (
	// toolCallBlockRe matches ```tool_call\n{...}\n``` blocks.
	toolCallBlockRe = regexp.MustCompile("(?s)```tool_call\\s*\n(\\{.*?\\})\n\\s*```")

	// funcCallsRe matches <function_calls>...</function_calls> blocks.
	funcCallsRe = regexp.MustCompile(`(?s)<function_calls>.*?</function_calls>`)

	// blockTagRe matches self-contained tool-use XML blocks.
	blockTagRe = regexp.MustCompile(`(?s)(?:` +
		`<invoke\b[^>]*>.*?</invoke>` +
		`|<tool_call\b[^>]*>.*?</tool_call>` +
		`|<tool_use\b[^>]*>.*?</tool_use>` +
		`)`)

	// paramTagRe matches parameter tags that can appear inline.
	paramTagRe = regexp.MustCompile(`(?s)<parameter\b[^>]*>.*?</parameter>`)

	whitespaceLineRe    = regexp.MustCompile(`(?m)^[ \t]+$`)
	blankLineCollapseRe = regexp.MustCompile(`\n{3,}`)
)

// StripToolMarkup removes textual tool-call artifacts from model output and
// tidies the whitespace left behind. Ordinary markdown, code blocks
// included, is kept. Stripped XML blocks are logged at debug level when log
// is non-nil.
func StripToolMarkup(text string, log *logging.Logger) string {
	// Block-level removals leave a paragraph break, inline ones a space.
	cleaned := toolCallBlockRe.ReplaceAllString(text, "\n\n")

	if log != nil {
		for _, m := range funcCallsRe.FindAllString(cleaned, -1) {
			log.Debug().Str("xml", m).Msg("stripped function_calls from model output")
		}
	}
	cleaned = funcCallsRe.ReplaceAllString(cleaned, "\n\n")
	cleaned = blockTagRe.ReplaceAllString(cleaned, "\n\n")
	cleaned = paramTagRe.ReplaceAllString(cleaned, " ")

	cleaned = whitespaceLineRe.ReplaceAllString(cleaned, "")
	cleaned = blankLineCollapseRe.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}
