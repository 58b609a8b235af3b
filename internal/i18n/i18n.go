// Package i18n holds the site's UI strings and decides which language a
// visitor is served.
package i18n

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"golang.org/x/text/language"
)

// Source records where a negotiated language came from.
type Source int

const (
	FromDefault Source = iota
	FromQuery
	FromCookie
	FromHeader
)

// Catalog maps message keys to UI strings for each site language. The
// first language is the fallback for missing strings and unmatched
// visitors.
type Catalog struct {
	langs    []string
	messages map[string]map[string]string
	matcher  language.Matcher
}

// Load reads <lang>.json from fsys for every language in langs. The
// fallback file must exist; the others may be missing and then resolve to
// fallback strings.
func Load(fsys fs.FS, langs ...string) (*Catalog, error) {
	if len(langs) == 0 {
		return nil, errors.New("i18n: no languages")
	}
	c := &Catalog{
		langs:    langs,
		messages: make(map[string]map[string]string, len(langs)),
	}
	tags := make([]language.Tag, len(langs))
	for i, lang := range langs {
		tag, err := language.Parse(lang)
		if err != nil {
			return nil, fmt.Errorf("i18n: language %q: %w", lang, err)
		}
		tags[i] = tag

		raw, err := fs.ReadFile(fsys, lang+".json")
		if errors.Is(err, fs.ErrNotExist) && i > 0 {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("i18n: read %s: %w", lang, err)
		}
		var m map[string]string
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("i18n: decode %s: %w", lang, err)
		}
		c.messages[lang] = m
	}
	c.matcher = language.NewMatcher(tags)
	return c, nil
}

// Languages returns the site languages, fallback first.
func (c *Catalog) Languages() []string {
	return append([]string(nil), c.langs...)
}

func (c *Catalog) Fallback() string { return c.langs[0] }

// T returns the string for key in lang, then in the fallback language,
// then key itself.
func (c *Catalog) T(lang, key string) string {
	if v, ok := c.messages[lang][key]; ok {
		return v
	}
	if v, ok := c.messages[c.Fallback()][key]; ok {
		return v
	}
	return key
}

// Match maps a language tag such as "EN" or "pl-PL" to a site language.
func (c *Catalog) Match(tag string) (string, bool) {
	if tag == "" {
		return "", false
	}
	t, err := language.Parse(tag)
	if err != nil {
		return "", false
	}
	base, _ := t.Base()
	for _, lang := range c.langs {
		if lang == base.String() {
			return lang, true
		}
	}
	return "", false
}

// Negotiate picks the language for a request from an explicit choice (the
// ?hl= parameter), a remembered choice (the cookie) and the Accept-Language
// header, in that order. Unsupported or malformed values are skipped.
func (c *Catalog) Negotiate(explicit, remembered, acceptLanguage string) (string, Source) {
	if lang, ok := c.Match(explicit); ok {
		return lang, FromQuery
	}
	if lang, ok := c.Match(remembered); ok {
		return lang, FromCookie
	}
	if lang, ok := c.fromHeader(acceptLanguage); ok {
		return lang, FromHeader
	}
	return c.Fallback(), FromDefault
}

func (c *Catalog) fromHeader(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	tags, weights, err := language.ParseAcceptLanguage(header)
	if err != nil {
		return "", false
	}
	wanted := tags[:0]
	for i, t := range tags {
		if weights[i] > 0 {
			wanted = append(wanted, t)
		}
	}
	if len(wanted) == 0 {
		return "", false
	}
	_, idx, conf := c.matcher.Match(wanted...)
	if conf == language.No {
		return "", false
	}
	return c.langs[idx], true
}
