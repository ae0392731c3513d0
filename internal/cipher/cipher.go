// Package cipher implements the Caesar shift served by POST /cipher.
package cipher

import "strings"

const DefaultShift = 3

// Caesar shifts ASCII letters by shift positions, wrapping within their case.
// Every other rune is copied unchanged. Negative shifts decode.
func Caesar(text string, shift int) string {
	shift = ((shift % 26) + 26) % 26

	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z':
			sb.WriteRune('a' + (r-'a'+rune(shift))%26)
		case r >= 'A' && r <= 'Z':
			sb.WriteRune('A' + (r-'A'+rune(shift))%26)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
