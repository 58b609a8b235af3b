package i18n

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	fsys := fstest.MapFS{
		"pl.json": {Data: []byte(`{"nav.events":"Wydarzenia","only.pl":"tylko"}`)},
		"en.json": {Data: []byte(`{"nav.events":"Events"}`)},
	}
	c, err := Load(fsys, "pl", "en")
	require.NoError(t, err)
	return c
}

func TestTranslateWithFallback(t *testing.T) {
	c := testCatalog(t)
	assert.Equal(t, "Events", c.T("en", "nav.events"))
	assert.Equal(t, "Wydarzenia", c.T("pl", "nav.events"))
	assert.Equal(t, "tylko", c.T("en", "only.pl"))
	assert.Equal(t, "missing.key", c.T("en", "missing.key"))
	assert.Equal(t, "Wydarzenia", c.T("de", "nav.events"))
}

func TestMatch(t *testing.T) {
	c := testCatalog(t)
	tests := []struct {
		tag  string
		want string
		ok   bool
	}{
		{"en", "en", true},
		{"EN", "en", true},
		{"pl-PL", "pl", true},
		{"de", "", false},
		{"", "", false},
		{"not a tag!", "", false},
	}
	for _, tt := range tests {
		got, ok := c.Match(tt.tag)
		assert.Equal(t, tt.ok, ok, "tag %q", tt.tag)
		assert.Equal(t, tt.want, got, "tag %q", tt.tag)
	}
}

func TestNegotiateHeader(t *testing.T) {
	c := testCatalog(t)
	tests := map[string]string{
		"":                        "pl",
		"en-US,en;q=0.9":          "en",
		"de-DE,de;q=0.9,en;q=0.5": "en",
		"en;q=0.4,pl;q=0.8":       "pl",
		"fr":                      "pl",
		"EN-gb":                   "en",
		"en;q=0,pl;q=0.1":         "pl",
		"en;q=bogus, pl;q=0.9":    "pl",
	}
	for header, want := range tests {
		got, _ := c.Negotiate("", "", header)
		assert.Equal(t, want, got, "header %q", header)
	}
}

func TestNegotiateOrder(t *testing.T) {
	c := testCatalog(t)

	lang, src := c.Negotiate("en", "pl", "pl")
	assert.Equal(t, "en", lang)
	assert.Equal(t, FromQuery, src)

	lang, src = c.Negotiate("de", "en", "pl")
	assert.Equal(t, "en", lang)
	assert.Equal(t, FromCookie, src)

	lang, src = c.Negotiate("", "xx", "en-GB")
	assert.Equal(t, "en", lang)
	assert.Equal(t, FromHeader, src)

	lang, src = c.Negotiate("", "", "fr")
	assert.Equal(t, "pl", lang)
	assert.Equal(t, FromDefault, src)
}

func TestLoad(t *testing.T) {
	_, err := Load(fstest.MapFS{"en.json": {Data: []byte(`{}`)}}, "pl", "en")
	assert.Error(t, err, "fallback file is required")

	_, err = Load(fstest.MapFS{"pl.json": {Data: []byte(`{`)}}, "pl")
	assert.Error(t, err)

	_, err = Load(fstest.MapFS{})
	assert.Error(t, err)

	c, err := Load(fstest.MapFS{"pl.json": {Data: []byte(`{}`)}}, "pl", "en")
	require.NoError(t, err)
	assert.Equal(t, []string{"pl", "en"}, c.Languages())
	assert.Equal(t, "pl", c.Fallback())
	lang, ok := c.Match("en")
	assert.True(t, ok)
	assert.Equal(t, "en", lang)
}
