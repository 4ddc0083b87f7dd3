package header

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Attribute names of subject columns after translation.
const (
	AttrPeople = "people"
	AttrScore  = "score"
)

// Dimension column names after translation.
const (
	ColRegion       = "region"
	ColMunicipality = "municipality"
	ColPlace        = "place"
	ColSchool       = "school"
	ColAdminID      = "school_admin_id"
)

// Rule rewrites a header cell. Rules run in order and the order matters:
// "код по админ" has to win over the bare "код".
type Rule struct {
	Pattern *regexp.Regexp
	Replace string
	// Note names the export that needed the rule, for audit.
	Note string
}

func rule(pattern, replace, note string) Rule {
	return Rule{Pattern: regexp.MustCompile(pattern), Replace: replace, Note: note}
}

// AnywhereRules are applied wherever they match in a cell.
var AnywhereRules = []Rule{
	rule(`област`, ColRegion, ""),
	rule(`регион`, ColRegion, ""),
	rule(`община`, ColMunicipality, ""),
	rule(`населено място`, ColPlace, ""),
	rule(`училище`, ColSchool, ""),
	rule(`код по админ`, ColAdminID, ""),
	rule(`код по неиспуо`, ColAdminID, ""),
	rule(`код`, ColAdminID, ""),
	rule(`mat`, "мат", "latin letters in the math abbreviation"),
	rule(`\)з`, ")", "dzi-2022"),
	rule(` \(мах 100 т\)`, "", "nvo-4-2018"),
	rule(`\(пп\)`, "", "dzi-2022"),
	rule(`\(ооп\)`, "", "dzi-2022"),
	rule(` з`, "", ""),
	rule(` b(1|1\.1|2)-з`, "-б${1}", "language level written with a latin b"),
	rule(`диппк-пр\.`, "диппк-пр", ""),
}

// EdgeRules are applied only as a prefix or a suffix of a cell.
var EdgeRules = []Rule{
	rule(`явили се`, AttrPeople, ""),
	rule(`ср\. успех в точки`, AttrScore, ""),
	rule(`ср\.успех`, AttrScore, ""),
	rule(`ср\.усп\.`, AttrScore, ""),
	rule(`ср\.усп`, AttrScore, ""),
	rule(`бр\.`, AttrPeople, ""),
	rule(`брой`, AttrPeople, ""),
}

type edgeRule struct {
	prefix *regexp.Regexp
	suffix *regexp.Regexp
	repl   string
}

var edgeRules = compileEdges(EdgeRules)

func compileEdges(rules []Rule) []edgeRule {
	out := make([]edgeRule, 0, len(rules))
	for _, r := range rules {
		out = append(out, edgeRule{
			prefix: regexp.MustCompile(`^` + r.Pattern.String()),
			suffix: regexp.MustCompile(r.Pattern.String() + `$`),
			repl:   r.Replace,
		})
	}
	return out
}

// CanonicalName rewrites one merged header cell into the controlled vocabulary.
func CanonicalName(cell string) string {
	value := norm.NFC.String(cell)
	value = strings.ReplaceAll(value, `"`, "")
	value = strings.ToLower(value)
	for strings.Contains(value, "  ") {
		value = strings.ReplaceAll(value, "  ", " ")
	}

	for _, r := range AnywhereRules {
		value = strings.TrimSpace(r.Pattern.ReplaceAllString(value, r.Replace))
	}

	for _, r := range edgeRules {
		value = r.prefix.ReplaceAllString(value, r.repl)
		value = r.suffix.ReplaceAllString(value, r.repl)
		value = strings.TrimSpace(value)
	}

	// "бел score" sometimes arrives as "белscore"
	if strings.Contains(value, AttrScore) && !strings.HasPrefix(value, AttrScore) && !strings.Contains(value, " "+AttrScore) {
		value = strings.ReplaceAll(value, AttrScore, " "+AttrScore)
	}

	return value
}
