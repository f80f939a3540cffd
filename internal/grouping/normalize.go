package grouping

import (
	"strings"
	"unicode"
)

// EditionKind classifies special-edition markers found on a material.
type EditionKind string

const (
	// EditionRegular is an unmarked edition.
	EditionRegular EditionKind = ""
	// EditionRecover is a re-covered reissue (리커버).
	EditionRecover EditionKind = "recover"
	// EditionSet is a boxed set or collected edition (세트, 전집).
	EditionSet EditionKind = "set"
	// EditionSpecial covers limited, special and anniversary editions.
	EditionSpecial EditionKind = "special"
)

// Marker terms, matched against the edition label and the title.
var (
	recoverMarkers = []string{"리커버", "리마스터"}
	setMarkers     = []string{"세트", "전집", "박스"}
	specialMarkers = []string{"특별판", "한정판", "스페셜", "기념판", "양장", "개정판"}
)

// defaultNoiseTokens is the stock noise-token list: every edition
// marker term. Titles that only differ by one of these belong to the
// same work.
func defaultNoiseTokens() []string {
	tokens := make([]string, 0, len(recoverMarkers)+len(setMarkers)+len(specialMarkers))
	tokens = append(tokens, recoverMarkers...)
	tokens = append(tokens, setMarkers...)
	tokens = append(tokens, specialMarkers...)
	return tokens
}

// stripNoiseTokens removes every noise token from the title before
// normalization. Edition detection still sees the original title, so a
// stripped marker keeps its penalty.
func stripNoiseTokens(title string, tokens []string) string {
	for _, t := range tokens {
		title = strings.ReplaceAll(title, t, " ")
	}
	return title
}

// normalizeTitle reduces a title to its grouping form: lowercase with
// all spaces and punctuation removed, so "해리포터와 마법사의 돌" and
// "해리 포터와 마법사의 돌!" collapse together.
func normalizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range strings.ToLower(title) {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// firstAuthor returns the first name from a delimited author string.
// Korean catalogs separate co-authors with commas or semicolons and
// often append roles after a colon.
func firstAuthor(author string) string {
	for _, sep := range []string{";", ",", "|"} {
		if i := strings.Index(author, sep); i >= 0 {
			author = author[:i]
		}
	}
	if i := strings.Index(author, ":"); i >= 0 {
		author = author[:i]
	}
	return strings.ToLower(strings.TrimSpace(author))
}

// detectEdition classifies a material by its edition label, falling
// back to markers embedded in the title.
func detectEdition(editionLabel, title string) EditionKind {
	for _, probe := range []string{editionLabel, title} {
		if probe == "" {
			continue
		}
		if kind := editionFromText(probe); kind != EditionRegular {
			return kind
		}
	}
	return EditionRegular
}

func editionFromText(text string) EditionKind {
	if containsAny(text, setMarkers) {
		return EditionSet
	}
	if containsAny(text, recoverMarkers) {
		return EditionRecover
	}
	if containsAny(text, specialMarkers) {
		return EditionSpecial
	}
	return EditionRegular
}

// hasSetIntent reports whether the query itself asks for a set, which
// waives the set-edition penalty.
func hasSetIntent(query string) bool {
	return containsAny(query, setMarkers)
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}
