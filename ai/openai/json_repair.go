// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package openai

import "strings"

// repairJSON fixes common formatting slips in small JSON objects produced by
// models: a key missing its opening quote (`{label":`), single-quoted
// strings, and a trailing comma before the closing brace.
func repairJSON(s string) string {
	in := []rune(s)
	var out strings.Builder
	out.Grow(len(s) + 8)

	inString := false
	var quote rune
	for i := 0; i < len(in); i++ {
		ch := in[i]

		if inString {
			switch {
			case ch == '\\' && i+1 < len(in):
				out.WriteRune(ch)
				i++
				out.WriteRune(in[i])
			case ch == quote:
				inString = false
				out.WriteRune('"')
			case ch == '"':
				// A double quote inside a single-quoted string
				out.WriteString(`\"`)
			default:
				out.WriteRune(ch)
			}
			continue
		}

		switch ch {
		case '"', '\'':
			inString = true
			quote = ch
			out.WriteRune('"')
		case ',':
			// Drop a comma that only precedes a closing brace or bracket
			j := i + 1
			for j < len(in) && isSpace(in[j]) {
				j++
			}
			if j < len(in) && (in[j] == '}' || in[j] == ']') {
				continue
			}
			out.WriteRune(ch)
		default:
			out.WriteRune(ch)
			if ch != '{' {
				continue
			}
			// After an opening brace, look for an unquoted key ending in `":`
			j := i + 1
			for j < len(in) && isSpace(in[j]) {
				out.WriteRune(in[j])
				j++
			}
			k := j
			for k < len(in) && (isLetter(in[k]) || in[k] == '_') {
				k++
			}
			if k > j && k+1 < len(in) && in[k] == '"' && in[k+1] == ':' {
				out.WriteRune('"')
				out.WriteString(string(in[j : k+1]))
				i = k
				continue
			}
			i = j - 1
		}
	}
	return out.String()
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}
