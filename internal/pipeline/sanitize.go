package pipeline

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// maxNameRunes bounds artifact file and folder names. Long candidate names
// combined with deep output paths can exceed filesystem limits.
const maxNameRunes = 120

var unsafeNameChars = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
	"\x00", "",
)

// CandidateFolder names the per-candidate artifact directory as
// "<ID> - <Name>", NFC-normalized and stripped of path-hostile characters.
func CandidateFolder(id, name string) string {
	base := id
	if name != "" {
		base = id + " - " + name
	}
	return sanitizeName(base)
}

// sanitizeName makes s safe to use as a single path element. Exports and
// portal document names carry user-entered text, so composition form and
// separator characters cannot be trusted.
func sanitizeName(s string) string {
	s = norm.NFC.String(s)
	s = unsafeNameChars.Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, ". ")
	if s == "" {
		return "unnamed"
	}
	runes := []rune(s)
	if len(runes) > maxNameRunes {
		s = strings.TrimRight(string(runes[:maxNameRunes]), ". ")
	}
	return s
}
