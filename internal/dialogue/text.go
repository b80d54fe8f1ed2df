package dialogue

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

func isYes(lower string) bool {
	switch strings.Trim(lower, " .!¡") {
	case "si", "sí":
		return true
	}
	return false
}

func isNo(lower string) bool {
	return strings.Trim(lower, " .!¡") == "no"
}

// isCancel matches the words that abandon any flow in progress.
func isCancel(lower string) bool {
	switch strings.Trim(lower, " .!¡") {
	case "cancelar", "salir":
		return true
	}
	return false
}

func isKeep(lower string) bool {
	switch strings.TrimSpace(lower) {
	case "mantener", "keep":
		return true
	}
	return false
}

var fillerWords = map[string]bool{
	"el": true, "la": true, "los": true, "las": true,
	"evento": true, "eventos": true, "un": true, "una": true,
	"de": true, "mi": true,
}

// stripTrigger returns what follows the word containing keyword ("agrega"
// consumes all of "agregar") minus leading filler words, keeping the original
// casing.
func stripTrigger(text, keyword string) string {
	rest := text
	if keyword != "" {
		lower := strings.ToLower(text)
		if i := strings.Index(lower, keyword); i >= 0 && len(lower) == len(text) {
			end := i + len(keyword)
			for end < len(text) {
				r, size := utf8.DecodeRuneInString(text[end:])
				if !unicode.IsLetter(r) {
					break
				}
				end += size
			}
			rest = text[end:]
		}
	}
	return trimFillers(rest)
}

func trimFillers(s string) string {
	words := strings.Fields(s)
	for len(words) > 0 {
		w := strings.ToLower(strings.TrimFunc(words[0], isEdgePunct))
		if w != "" && !fillerWords[w] {
			break
		}
		words = words[1:]
	}
	return strings.TrimFunc(strings.Join(words, " "), isEdgePunct)
}

func isEdgePunct(r rune) bool {
	return unicode.IsSpace(r) || strings.ContainsRune("¿?¡!.:;", r)
}
