package site

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldTransform decomposes to NFD, strips combining marks and recomposes, so
// "Café" folds to "Cafe" before ASCII slugging.
var foldTransform = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify converts an arbitrary name into a URL-safe path segment: accents
// folded, lowercased, runs of non-alphanumerics collapsed to single hyphens.
func Slugify(name string) string {
	folded, _, err := transform.String(foldTransform, name)
	if err != nil {
		folded = name
	}

	var sb strings.Builder
	sb.Grow(len(folded))
	lastHyphen := true // suppress leading hyphens
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				sb.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	slug := strings.TrimRight(sb.String(), "-")
	if slug == "" {
		return "untitled"
	}
	return slug
}

// slugifyPath slugs every segment of a slash-separated relative path.
func slugifyPath(rel string) string {
	if rel == "" || rel == "." {
		return ""
	}
	segs := strings.Split(rel, "/")
	for i, s := range segs {
		segs[i] = Slugify(s)
	}
	return strings.Join(segs, "/")
}
