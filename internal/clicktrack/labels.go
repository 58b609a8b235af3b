package clicktrack

import "strings"

// LabelMap rewrites known labels, in either site language, to one canonical
// display form. The zero value maps nothing.
type LabelMap struct {
	canonical map[string]string
}

// NewLabelMap builds a LabelMap. Keys are lowercased and trimmed; the input
// map is copied.
func NewLabelMap(entries map[string]string) LabelMap {
	m := make(map[string]string, len(entries))
	for k, v := range entries {
		m[labelKey(k)] = v
	}
	return LabelMap{canonical: m}
}

// Lookup returns the canonical form of label if it is mapped.
func (l LabelMap) Lookup(label string) (string, bool) {
	v, ok := l.canonical[labelKey(label)]
	return v, ok
}

// Normalize returns the canonical form of label, or label unchanged when it
// is not mapped.
func (l LabelMap) Normalize(label string) string {
	if v, ok := l.Lookup(label); ok {
		return v
	}
	return label
}

// Len returns the number of mapped keys.
func (l LabelMap) Len() int { return len(l.canonical) }

func labelKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// DefaultLabels is the site navigation taxonomy. English labels map onto the
// Polish canonical names.
var DefaultLabels = NewLabelMap(map[string]string{
	// pl
	"wydarzenia":           "Wydarzenia",
	"jak dojechać":         "Jak dojechać",
	"bilety i rezerwacje":  "Bilety i rezerwacje",
	"aktualności":          "Aktualności",
	"galeria":              "Galeria",
	"strona główna":        "Strona główna",
	"o alvernia planet":    "O Alvernia Planet",
	"kontakt":              "Kontakt",
	"wystawa tematyczna":   "Wystawa tematyczna",
	"ścieżka filmowa":      "Ścieżka filmowa",
	"kino 360°":            "Kino 360°",
	"regulamin":            "Regulamin",
	"polityka prywatności": "Polityka prywatności",
	"polityka cookies":     "Polityka cookies",
	"ochrona małoletnich":  "Ochrona małoletnich",
	"rezerwuj wizytę":      "Rezerwuj wizytę",

	// en
	"events":                "Wydarzenia",
	"getting here":          "Jak dojechać",
	"tickets & bookings":    "Bilety i rezerwacje",
	"news":                  "Aktualności",
	"gallery":               "Galeria",
	"home":                  "Strona główna",
	"about alvernia planet": "O Alvernia Planet",
	"contact":               "Kontakt",
	"themed exhibition":     "Wystawa tematyczna",
	"film path":             "Ścieżka filmowa",
	"360° cinema":           "Kino 360°",
	"terms & conditions":    "Regulamin",
	"privacy policy":        "Polityka prywatności",
	"cookies policy":        "Polityka cookies",
	"minors protection":     "Ochrona małoletnich",
	"book your visit":       "Rezerwuj wizytę",
})
