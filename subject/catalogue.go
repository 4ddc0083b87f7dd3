// Package subject holds the catalogue of examined subjects and the lookup
// from the many abbreviations found in exports to one canonical id.
//
// Foreign languages come in proficiency levels (Б1, Б1.1, Б2) which are
// separate subjects: АЕ, АЕ-Б1, АЕ-Б1.1 and АЕ-Б2.
package subject

import (
	"fmt"
	"sort"
	"strings"
)

// LanguageLevels are the proficiency levels generated for every foreign language.
var LanguageLevels = []string{"Б1", "Б1.1", "Б2"}

// Item is one subject with its alternate spellings.
type Item struct {
	// ID is the canonical upper case abbreviation.
	ID string
	// Name is the full subject name.
	Name string
	// Abbreviations are other spellings seen in exports, without the id.
	Abbreviations []string
}

// New creates an item with an upper case id.
func New(id, name string, abbreviations ...string) Item {
	return Item{
		ID:            strings.ToUpper(id),
		Name:          name,
		Abbreviations: abbreviations,
	}
}

// RawStrings returns the lower case id and abbreviations, the keys the refiner looks up.
func (i Item) RawStrings() []string {
	out := make([]string, 0, len(i.Abbreviations)+1)
	out = append(out, strings.ToLower(i.ID))
	for _, a := range i.Abbreviations {
		out = append(out, strings.ToLower(a))
	}
	return out
}

// JoinedAbbreviations is the persisted form of Abbreviations.
func (i Item) JoinedAbbreviations() string {
	return strings.Join(i.Abbreviations, ",")
}

// SplitAbbreviations parses the persisted form back.
func SplitAbbreviations(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, ",")
}

// WithLevels returns the item followed by one item per language level.
func WithLevels(base Item, levels ...string) []Item {
	out := []Item{base}
	for _, level := range levels {
		abbrevs := make([]string, len(base.Abbreviations))
		for j, a := range base.Abbreviations {
			abbrevs[j] = a + "-" + level
		}
		out = append(out, New(base.ID+"-"+level, base.Name+" "+level, abbrevs...))
	}
	return out
}

func language(id, name string, abbreviations ...string) []Item {
	return WithLevels(New(id, name, abbreviations...), LanguageLevels...)
}

// Default returns the catalogue seeded into a new database.
func Default() []Item {
	var items []Item
	items = append(items, language("АЕ", "Английски език")...)
	items = append(items,
		New("БЕЛ", "Български език и литература"),
		New("БЗО", "Биология и здравно образование"),
		New("ГЕО", "География и икономика", "ГИ"),
		New("ДИППК", "Държавен изпит за придобиване на професионална квалификация"),
		New("ДИППК-п.р", "Държавен изпит за придобиване на професионална квалификация - писмена работа по теория на професията + практика"),
		New("ДИППК-тест", "Държавен изпит за придобиване на професионална квалификация - писмен тест по теория на професията + практика"),
		New("ДИППК-Д.Пр", "Държавен изпит за придобиване на професионална квалификация - дипломен проект"),
		New("ДИППК-пр", "Държавен изпит за придобиване на професионална квалификация - практика "),
		New("ИИ", "Изобразително изкуство"),
		New("ИНФ", "Информатика"),
	)
	items = append(items, language("ИспЕ", "Испански език", "ИЕ", "ИсЕ")...)
	items = append(items, New("ИСТ", "История и цивилизация", "ИЦ"))
	items = append(items, language("ИтЕ", "Италиански език")...)
	items = append(items,
		New("ИТ", "Информационни технологии"),
		New("МУЗ", "Музика"),
		New("МАТ", "Математика"),
	)
	items = append(items, language("НЕ", "Немски език")...)
	items = append(items, language("ПЕ", "Португалски език")...)
	items = append(items, New("ПР", "Предприемачество"))
	items = append(items, language("РЕ", "Руски език")...)
	items = append(items,
		New("ФА", "Физика и астрономия"),
		New("ФИЛ", "Философия"),
	)
	items = append(items, language("ФрЕ", "Френски език", "ФЕ")...)
	items = append(items,
		New("ХООС", "Химия и опазване на околната среда"),
		New("ЧО", "Човекът и обществото"),
		New("ЧП", "Човекът и природата"),
	)
	return items
}

// Map resolves lower case abbreviations to catalogue items.
type Map map[string]Item

// NewMap indexes items by every raw string. Two items claiming the same
// abbreviation is an error.
func NewMap(items []Item) (Map, error) {
	m := make(Map)
	for _, item := range items {
		for _, raw := range item.RawStrings() {
			if prev, ok := m[raw]; ok && prev.ID != item.ID {
				return nil, fmt.Errorf("abbreviation %q claimed by %s and %s", raw, prev.ID, item.ID)
			}
			m[raw] = item
		}
	}
	return m, nil
}

// Lookup finds the item for an abbreviation, ignoring case.
func (m Map) Lookup(abbreviation string) (Item, bool) {
	item, ok := m[strings.ToLower(abbreviation)]
	return item, ok
}

// Items returns the distinct items sorted by id.
func (m Map) Items() []Item {
	seen := make(map[string]bool)
	var out []Item
	for _, item := range m {
		if !seen[item.ID] {
			seen[item.ID] = true
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
