package openai

import "strings"

// maxPromptRunes bounds the text sent to the model.
const maxPromptRunes = 4000

// normalizeText collapses runs of whitespace and truncates overly long input.
func normalizeText(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > maxPromptRunes {
		s = string(r[:maxPromptRunes])
	}
	return s
}

// isLetter returns true if the rune is an ASCII letter.
func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
