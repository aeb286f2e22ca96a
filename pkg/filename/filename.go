// Package filename turns media titles into download file names.
package filename

import (
	"mime"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	maxBaseRunes = 120
	fallbackBase = "download"
)

// FromTitle builds "<title>.<ext>" with characters that are unsafe in file
// names removed. An empty result falls back to "download".
func FromTitle(title, ext string) string {
	return clean(title) + "." + strings.TrimPrefix(ext, ".")
}

// ASCII folds name to printable ASCII: accents are stripped and anything
// else outside the range becomes '_'.
func ASCII(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	var b strings.Builder
	for _, r := range folded {
		if r < utf8.RuneSelf && unicode.IsPrint(r) && r != '"' && r != '\\' {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}

// ContentDisposition renders an attachment header carrying an ASCII
// filename plus the RFC 5987 UTF-8 form when the two differ.
func ContentDisposition(name string) string {
	ascii := ASCII(name)
	header := mime.FormatMediaType("attachment", map[string]string{"filename": ascii})
	if header == "" {
		header = `attachment; filename="` + fallbackBase + `"`
	}
	if ascii != name {
		header += "; filename*=UTF-8''" + url.PathEscape(name)
	}
	return header
}

func clean(title string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.TrimSpace(title) {
		switch {
		case unicode.IsSpace(r):
			space = true
			continue
		case unicode.IsControl(r), strings.ContainsRune(`/\:*?"<>|`, r):
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	base := strings.Trim(b.String(), ". ")
	if utf8.RuneCountInString(base) > maxBaseRunes {
		base = strings.TrimSpace(string([]rune(base)[:maxBaseRunes]))
	}
	if base == "" {
		return fallbackBase
	}
	return base
}
