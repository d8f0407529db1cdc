package openai

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/poiesic/recall/core"
)

const classificationResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "label": {
      "type": "string",
      "enum": [%s]
    }
  },
  "required": ["label"],
  "additionalProperties": false
}`

const classificationPromptTemplate = `Classify the given product or inventory text into exactly one category and return it as JSON.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

%s

Categories:
- LongReport: an extended narrative report, summary or analysis.
- DetailedSpec: specifications, launch details or other structured product facts.
- ProductReview: a short opinion, memo or note about a product or its supply.

Rules:
- The label must be exactly one of: %s.
- Use the context fields only to disambiguate; classify the text itself.
- The JSON must parse without errors; no trailing commas, no extra keys, and no extraneous text outside the object.

Example:
Input: "The new smartphone has a great camera and long battery life."
Output:
{"label":"ProductReview"}

Example:
Input: "Detailed specifications for the upcoming Q1 product launch."
Output:
{"label":"DetailedSpec"}`

// buildSystemPrompt creates the system prompt with the label set embedded.
func buildSystemPrompt(labels []string) string {
	quoted := make([]string, len(labels))
	for i, l := range labels {
		quoted[i] = `"` + l + `"`
	}
	return fmt.Sprintf(classificationPromptTemplate,
		fmt.Sprintf(classificationResponseSchema, strings.Join(quoted, ", ")),
		strings.Join(labels, ", "))
}

// buildUserPrompt renders the text followed by its context fields in key order.
func buildUserPrompt(text string, meta map[string]any) string {
	var b strings.Builder
	b.WriteString(text)
	keys := slices.DeleteFunc(slices.Sorted(maps.Keys(meta)), func(k string) bool {
		return k == core.FieldRawText
	})
	if len(keys) == 0 {
		return b.String()
	}
	b.WriteString("\n\nContext:")
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %s", k, core.FormatValue(core.Normalize(meta[k])))
	}
	return b.String()
}
