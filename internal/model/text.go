package model

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s, strips diacritics and trims surrounding space so that
// spreadsheet text like "Manutenção " compares equal to "manutencao".
func Fold(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Blank reports whether an attribute value carries no information: empty,
// whitespace, a dash, or the spreadsheet placeholder "Não se Aplica".
func Blank(s string) bool {
	switch Fold(s) {
	case "", "-", "--", "n/a", "na", "nao se aplica", "nao aplicavel":
		return true
	}
	return false
}

// SameText compares two attribute values ignoring case, accents and
// surrounding whitespace.
func SameText(a, b string) bool {
	return Fold(a) == Fold(b)
}

// ParseNumber parses spreadsheet numbers written with either a decimal
// comma or a decimal point ("1,5", "1.5", "1.234,5"). Blank input yields nil.
func ParseNumber(s string) *float64 {
	s = strings.TrimSpace(s)
	if Blank(s) {
		return nil
	}
	s = strings.ReplaceAll(s, " ", "")
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
