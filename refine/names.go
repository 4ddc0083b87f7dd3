package refine

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Foreign is the single spelling used for schools outside the country.
const Foreign = "Чужбина"

// CleanAdminID removes embedded spaces and the ".0" left by float conversion.
func CleanAdminID(id string) string {
	id = strings.ReplaceAll(strings.TrimSpace(id), " ", "")
	id = strings.TrimSuffix(id, ".0")
	if strings.EqualFold(id, "nan") {
		return ""
	}
	return id
}

// UnifyForeign collapses every spelling of "abroad" into Foreign.
func UnifyForeign(value string) string {
	if strings.Contains(strings.ToLower(value), "чужбина") {
		return Foreign
	}
	return value
}

// TitleCase upper-cases the first letter of every word and lower-cases the rest.
func TitleCase(value string) string {
	return cases.Title(language.Bulgarian).String(strings.TrimSpace(value))
}

// AdminUnitName is the canonical spelling of a region or municipality.
func AdminUnitName(value string) string {
	return TitleCase(UnifyForeign(value))
}

// PrettyPlace formats a settlement name as "гр. Име" or "с. Име".
// Values without a prefix only get their first letter upper-cased.
func PrettyPlace(value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return value, nil
	}
	if !strings.Contains(value, ".") {
		return upperFirst(value), nil
	}

	parts := strings.Split(value, ".")
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: %q", ErrMalformedPlace, value)
	}
	prefix := strings.ToLower(strings.TrimSpace(parts[0]))
	name := upperFirst(parts[1])
	if name == "" {
		return "", fmt.Errorf("%w: %q has no name after the prefix", ErrMalformedPlace, value)
	}
	return prefix + ". " + name, nil
}

func upperFirst(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return strings.ToUpper(string(r)) + strings.ToLower(s[size:])
}
