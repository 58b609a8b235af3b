package site

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alverniaplanet/website/internal/clicktrack"
	"github.com/alverniaplanet/website/internal/domtree"
)

func newTestServer(t *testing.T, opts Options) http.Handler {
	t.Helper()
	s, err := New(opts)
	require.NoError(t, err)
	r := chi.NewRouter()
	s.Routes(r)
	return r
}

func get(t *testing.T, h http.Handler, target string, mutate ...func(*http.Request)) (*httptest.ResponseRecorder, *goquery.Document) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rec.Body.String()))
	require.NoError(t, err)
	return rec, doc
}

func TestSplitFrontMatter(t *testing.T) {
	meta, body, err := splitFrontMatter([]byte("---\ntitle: X\n---\nbody\n"))
	require.NoError(t, err)
	assert.Equal(t, "title: X", string(meta))
	assert.Equal(t, "body\n", string(body))

	meta, body, err = splitFrontMatter([]byte("no front matter"))
	require.NoError(t, err)
	assert.Nil(t, meta)
	assert.Equal(t, "no front matter", string(body))

	_, _, err = splitFrontMatter([]byte("---\ntitle: X\n"))
	assert.Error(t, err)
}

func TestLoadContentSanitizesAndFallsBack(t *testing.T) {
	fsys := fstest.MapFS{
		"pl/home.md":  {Data: []byte("---\ntitle: Start\n---\n# Witaj\n\n<script>alert(1)</script>\n")},
		"pl/extra.md": {Data: []byte("tylko po polsku")},
		"en/home.md":  {Data: []byte("---\ntitle: Home\n---\nHello")},
	}
	c, err := LoadContent(fsys, "pl")
	require.NoError(t, err)

	pl, err := c.Get("pl", "home")
	require.NoError(t, err)
	assert.Equal(t, "Start", pl.Title)
	assert.Contains(t, string(pl.Body), "<h1")
	assert.NotContains(t, string(pl.Body), "<script>")

	en, err := c.Get("en", "extra")
	require.NoError(t, err)
	assert.Equal(t, "pl", en.Lang)

	_, err = c.Get("en", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEmbeddedContentParses(t *testing.T) {
	s, err := New(Options{})
	require.NoError(t, err)
	for _, lang := range []string{"pl", "en"} {
		p, err := s.content.Get(lang, "jak-dojechac")
		require.NoError(t, err)
		assert.Equal(t, lang, p.Lang)
		require.NotNil(t, p.Map)
		assert.Len(t, p.Nearby, 5)
		assert.Len(t, p.Attractions, 7)

		ev, err := s.content.Get(lang, "wydarzenia")
		require.NoError(t, err)
		assert.Len(t, ev.Videos, 3)
	}
}

func TestLocaleResolution(t *testing.T) {
	h := newTestServer(t, Options{})

	rec, doc := get(t, h, "/")
	assert.Equal(t, "pl", rec.Header().Get("Content-Language"))
	assert.Equal(t, "pl", doc.Find("html").AttrOr("lang", ""))

	rec, _ = get(t, h, "/", func(r *http.Request) { r.Header.Set("Accept-Language", "en-GB,en;q=0.9,pl;q=0.5") })
	assert.Equal(t, "en", rec.Header().Get("Content-Language"))
	assert.Contains(t, rec.Header().Values("Vary"), "Accept-Language")

	rec, _ = get(t, h, "/wydarzenia?hl=en")
	assert.Equal(t, "en", rec.Header().Get("Content-Language"))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "hl", cookies[0].Name)
	assert.Equal(t, "en", cookies[0].Value)

	rec, _ = get(t, h, "/", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "hl", Value: "en"})
		r.Header.Set("Accept-Language", "pl")
	})
	assert.Equal(t, "en", rec.Header().Get("Content-Language"), "cookie beats Accept-Language")

	rec, _ = get(t, h, "/?hl=de")
	assert.Equal(t, "pl", rec.Header().Get("Content-Language"))
	assert.Empty(t, rec.Result().Cookies())
}

func TestNavigationActiveState(t *testing.T) {
	_, doc := get(t, newTestServer(t, Options{}), "/wydarzenia?hl=en")

	active := doc.Find("#main-nav a.active")
	require.Equal(t, 1, active.Length())
	assert.Equal(t, "/wydarzenia", active.AttrOr("href", ""))
	assert.Equal(t, "Events", active.Text())

	items := BuildNav(MainNav, "/jak-dojechac/mapa", func(k string) string { return k })
	assert.False(t, items[0].Active)
	assert.True(t, items[2].Active)
}

func TestLanguageSwitcherMarkup(t *testing.T) {
	_, doc := get(t, newTestServer(t, Options{}), "/jak-dojechac")

	links := doc.Find("#lang-switcher a")
	require.Equal(t, 2, links.Length())
	assert.Equal(t, "Polski", links.Eq(0).AttrOr("data-analytics-label", ""))
	assert.Equal(t, "/jak-dojechac?hl=pl", links.Eq(0).AttrOr("href", ""))
	assert.Equal(t, "English", links.Eq(1).AttrOr("data-analytics-label", ""))
	_, current := links.Eq(0).Attr("aria-current")
	assert.True(t, current)
}

func TestOptionalFeatures(t *testing.T) {
	_, bare := get(t, newTestServer(t, Options{}), "/")
	assert.Zero(t, bare.Find("script[src*='googletagmanager']").Length())
	assert.Zero(t, bare.Find("script[src='/assets/tracker.js']").Length())
	assert.Zero(t, bare.Find("#promo").Length())
	assert.Zero(t, bare.Find("a.cta").Length())

	h := newTestServer(t, Options{
		MeasurementID: "G-TEST123",
		SiteKey:       "pk_live_site",
		Promo:         true,
		BookingURL:    "https://bilety.example/rezerwacja",
		BaseURL:       "https://alverniaplanet.pl/",
	})
	_, doc := get(t, h, "/")
	assert.Equal(t, 1, doc.Find("script[src='https://www.googletagmanager.com/gtag/js?id=G-TEST123']").Length())
	assert.Contains(t, doc.Find("script:not([src])").Text(), "anonymize_ip: true")

	tracker := doc.Find("script[src='/assets/tracker.js']")
	assert.Equal(t, "pk_live_site", tracker.AttrOr("data-site-key", ""))
	assert.Equal(t, "/v1/clicks", tracker.AttrOr("data-endpoint", ""))

	assert.Equal(t, "true", doc.Find("#promo summary").AttrOr("data-analytics-ignore", ""))
	assert.Equal(t, "cta_booking", doc.Find("#cta-header").AttrOr("data-analytics-event", ""))
	assert.Equal(t, "https://alverniaplanet.pl/?hl=pl", doc.Find("link[rel=canonical]").AttrOr("href", ""))
}

func TestEventsPageEmbedsVideos(t *testing.T) {
	_, doc := get(t, newTestServer(t, Options{}), "/wydarzenia")
	iframes := doc.Find(".videos iframe")
	assert.Equal(t, 3, iframes.Length())
	assert.Equal(t, "https://www.youtube.com/embed/jt6zh-vaFNc", iframes.First().AttrOr("src", ""))
	assert.Contains(t, doc.Find(".prose").Text(), "Unikatowa infrastruktura")
}

func TestGettingHereDirections(t *testing.T) {
	h := newTestServer(t, Options{})

	_, doc := get(t, h, "/jak-dojechac")
	assert.Equal(t, 5, doc.Find(".places a").Length())
	assert.Zero(t, doc.Find("#map-reset").Length())
	assert.Contains(t, doc.Find("#map").AttrOr("src", ""), "output=embed")

	_, doc = get(t, h, "/jak-dojechac?tab=routes&from="+url.QueryEscape("Kraków"))
	src := doc.Find("#map").AttrOr("src", "")
	assert.Contains(t, src, "saddr=Krak%C3%B3w")
	assert.Equal(t, 1, doc.Find("#map-reset").Length())
	assert.Equal(t, "Kraków", doc.Find(".places a[aria-current]").AttrOr("data-analytics-label", ""))

	_, doc = get(t, h, "/jak-dojechac?tab=attractions&hl=en")
	assert.Zero(t, doc.Find(".places a").Length())
	assert.Equal(t, 7, doc.Find(".places li").Length())
	assert.Contains(t, doc.Find(".places").Text(), "Wieliczka Salt Mine")
}

func TestDirectionsIgnoresUnknownOrigin(t *testing.T) {
	p := Page{Slug: "jak-dojechac", Map: &MapEmbed{Src: "venue"}, Nearby: []Place{{Label: "Kraków"}}}
	d := BuildDirections(p, url.Values{"from": {"Nowhere"}}, func(k string) string { return k })
	assert.Equal(t, "venue", d.MapSrc)
	assert.Empty(t, d.Origin)
	assert.Nil(t, BuildDirections(Page{}, nil, func(k string) string { return k }))
}

func TestNotFound(t *testing.T) {
	rec, doc := get(t, newTestServer(t, Options{}), "/galeria?hl=en")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Page not found.", doc.Find("h1").Text())
}

func TestTrackerAsset(t *testing.T) {
	rec, _ := get(t, newTestServer(t, Options{}), "/assets/tracker.js")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "javascript")
	body := rec.Body.String()
	assert.Contains(t, body, "sendBeacon")
	assert.Contains(t, body, "client_id: gaClientId()")
	assert.Contains(t, body, "_ga=")
}

// Rendered pages classify the way the analytics taxonomy expects.
func TestRenderedPageClassification(t *testing.T) {
	h := newTestServer(t, Options{Promo: true, BookingURL: "https://bilety.example/"})
	rec, _ := get(t, h, "/wydarzenia?hl=en")

	loc, err := url.Parse("https://alverniaplanet.pl/wydarzenia?hl=en")
	require.NoError(t, err)
	doc, err := domtree.NewDocument(strings.NewReader(rec.Body.String()), loc)
	require.NoError(t, err)

	events := &clicktrack.Recorder{}
	sub := clicktrack.New(events).Attach(doc)
	defer sub.Release()

	require.NoError(t, doc.Click("#lang-switcher a[hreflang=pl]"))
	require.NoError(t, doc.Click("#main-nav a[href='/jak-dojechac']"))
	require.NoError(t, doc.Click("#promo summary"))
	require.NoError(t, doc.Click("#cta-header"))
	require.NoError(t, doc.Click(".prose li"))

	assert.Equal(t, []clicktrack.Event{
		{Name: "language_switch", Params: clicktrack.Params{"to": "pl", "label": "Polski"}},
		{Name: "ui_click", Params: clicktrack.Params{"label": "Polski", "href": "/wydarzenia?hl=pl"}},
		{Name: "ui_click", Params: clicktrack.Params{"label": "Jak dojechać", "href": "/jak-dojechac"}},
		{Name: "cta_booking", Params: clicktrack.Params{"label": "Rezerwuj wizytę", "href": "https://bilety.example/"}},
	}, events.Events())
}
