package locator

import (
	"regexp"
	"strings"
	"unicode"
)

// stateClasses toggle with interaction and never identify an element.
var stateClasses = map[string]bool{
	"active": true, "open": true, "opened": true, "selected": true, "focus": true,
	"focused": true, "hover": true, "disabled": true, "checked": true, "expanded": true,
	"collapsed": true, "show": true, "shown": true, "hidden": true, "visible": true,
	"current": true, "loading": true, "loaded": true, "in": true, "fade": true,
	"closed": true, "ready": true, "error": true, "invalid": true, "valid": true,
	"dirty": true, "pristine": true, "touched": true, "untouched": true,
}

var statePrefixes = []string{"is-", "has-", "ng-", "was-"}

var utilityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^-?(m|p)[trblxyse]?-`),
	regexp.MustCompile(`^(w|h|min-w|min-h|max-w|max-h|gap|space-[xy]|inset|top|left|right|bottom|z|order)-`),
	regexp.MustCompile(`^(flex|grid|col|row|items|justify|self|place)(-|$)`),
	regexp.MustCompile(`^(text|font|leading|tracking|bg|border|rounded|shadow|opacity|ring|outline)-`),
	regexp.MustCompile(`^(block|inline|inline-block|inline-flex|hidden|relative|absolute|fixed|sticky|static|overflow-\w+|truncate|clearfix)$`),
	regexp.MustCompile(`^(d|float|position|align|va|fw|fs|lh)-`),
	regexp.MustCompile(`^(sm|md|lg|xl|2xl|hover|focus|dark):`),
}

var generatedPrefixes = []string{"css-", "sc-", "jsx-", "emotion-", "svelte-", "styled-", "tw-"}

var (
	cssModuleHash = regexp.MustCompile(`^[A-Za-z0-9]+_[A-Za-z0-9]+__[A-Za-z0-9_-]{5,}$`)
	hexRun        = regexp.MustCompile(`[0-9a-f]{6,}`)
)

// IsStateClass reports classes that reflect transient UI state.
func IsStateClass(c string) bool {
	lc := strings.ToLower(c)
	if stateClasses[lc] {
		return true
	}
	for _, p := range statePrefixes {
		if strings.HasPrefix(lc, p) {
			return true
		}
	}
	return false
}

// IsUtilityClass reports atomic/utility framework classes.
func IsUtilityClass(c string) bool {
	if strings.Contains(c, ":") || strings.Contains(c, "[") {
		return true
	}
	for _, re := range utilityPatterns {
		if re.MatchString(c) {
			return true
		}
	}
	return false
}

// IsGeneratedClass reports hashed or build-generated class names.
func IsGeneratedClass(c string) bool {
	for _, p := range generatedPrefixes {
		if strings.HasPrefix(c, p) {
			return true
		}
	}
	if cssModuleHash.MatchString(c) || hasHashRun(c) {
		return true
	}

	var innerUpper, letter, digit int
	for i, r := range c {
		switch {
		case unicode.IsUpper(r):
			letter++
			if i > 0 {
				innerUpper++
			}
		case unicode.IsLetter(r):
			letter++
		case unicode.IsDigit(r):
			digit++
		}
	}
	hyphenated := strings.ContainsAny(c, "-_")

	// Short mixed-case tokens such as "aBc3D".
	if len(c) <= 8 && !hyphenated && (innerUpper >= 2 || (digit > 0 && letter > 0 && innerUpper > 0)) {
		return true
	}
	// Long alphanumeric runs without word structure.
	if len(c) >= 10 && digit > 0 && !hyphenated {
		return true
	}
	return false
}

// Meaningful reports whether a class can anchor a locator.
func Meaningful(c string) bool {
	if len(c) < 2 {
		return false
	}
	return !IsStateClass(c) && !IsUtilityClass(c) && !IsGeneratedClass(c)
}

// MeaningfulClasses filters classes, preserving order and dropping duplicates.
func MeaningfulClasses(classes []string) []string {
	seen := make(map[string]bool, len(classes))
	var out []string
	for _, c := range classes {
		if seen[c] || !Meaningful(c) {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// hasHashRun finds a run of six or more hex characters mixing digits and letters.
func hasHashRun(c string) bool {
	for _, m := range hexRun.FindAllString(c, -1) {
		if strings.IndexFunc(m, unicode.IsDigit) >= 0 && strings.IndexFunc(m, unicode.IsLetter) >= 0 {
			return true
		}
	}
	return false
}
