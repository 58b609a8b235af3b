// Package site serves the Alvernia Planet marketing pages.
package site

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/alverniaplanet/website/internal/i18n"
)

//go:embed content locales templates assets
var embedded embed.FS

// Options configures a Server.
type Options struct {
	BaseURL       string
	DefaultLocale string
	BookingURL    string
	Promo         bool
	MeasurementID string

	// SiteKey enables the click tracker when set.
	SiteKey         string
	CollectEndpoint string
}

type Server struct {
	opts    Options
	content *Content
	catalog *i18n.Catalog
	pages   map[string]*template.Template
	tracker []byte
	now     func() time.Time
}

var pageTemplates = map[string]string{
	"home":         "templates/home.html",
	"wydarzenia":   "templates/events.html",
	"jak-dojechac": "templates/getting-here.html",
}

func New(opts Options) (*Server, error) {
	if opts.DefaultLocale == "" {
		opts.DefaultLocale = "pl"
	}
	if opts.CollectEndpoint == "" {
		opts.CollectEndpoint = "/v1/clicks"
	}

	contentFS, err := fs.Sub(embedded, "content")
	if err != nil {
		return nil, err
	}
	content, err := LoadContent(contentFS, opts.DefaultLocale)
	if err != nil {
		return nil, fmt.Errorf("load content: %w", err)
	}

	localesFS, err := fs.Sub(embedded, "locales")
	if err != nil {
		return nil, err
	}
	catalog, err := i18n.Load(localesFS, siteLanguages(opts.DefaultLocale)...)
	if err != nil {
		return nil, err
	}

	pages := make(map[string]*template.Template, len(pageTemplates))
	for slug, file := range pageTemplates {
		t, err := template.ParseFS(embedded, "templates/layout.html", file)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		pages[slug] = t
	}

	tracker, err := embedded.ReadFile("assets/tracker.js")
	if err != nil {
		return nil, err
	}

	return &Server{
		opts:    opts,
		content: content,
		catalog: catalog,
		pages:   pages,
		tracker: tracker,
		now:     time.Now,
	}, nil
}

func (s *Server) Catalog() *i18n.Catalog { return s.catalog }

// siteLanguages lists the site languages with def first.
func siteLanguages(def string) []string {
	langs := []string{def}
	for _, l := range []string{"pl", "en"} {
		if l != def {
			langs = append(langs, l)
		}
	}
	return langs
}

// Routes mounts the pages and assets on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/assets/tracker.js", s.serveTracker)
	r.Group(func(r chi.Router) {
		r.Use(Locale(s.catalog))
		r.Get("/", s.page("home"))
		r.Get("/wydarzenia", s.page("wydarzenia"))
		r.Get("/jak-dojechac", s.page("jak-dojechac"))
		r.NotFound(s.notFound)
	})
}

func (s *Server) serveTracker(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(s.tracker)
}

type trackerView struct {
	SiteKey  string
	Endpoint string
}

type view struct {
	Lang          string
	Title         string
	Description   string
	Canonical     string
	Page          Page
	Nav           []RenderedNavItem
	Langs         []LangOption
	BookingURL    string
	Promo         bool
	MeasurementID string
	Tracker       *trackerView
	Year          int
	Directions    *Directions

	catalog *i18n.Catalog
}

// T translates key into the page language.
func (v view) T(key string) string { return v.catalog.T(v.Lang, key) }

func (s *Server) page(slug string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lang := Lang(r, s.opts.DefaultLocale)
		p, err := s.content.Get(lang, slug)
		if err != nil {
			s.notFound(w, r)
			return
		}

		v := s.newView(r, lang, p)
		if slug == "jak-dojechac" {
			v.Directions = BuildDirections(p, r.URL.Query(), v.T)
		}
		s.render(w, http.StatusOK, s.pages[slug], v)
	}
}

func (s *Server) newView(r *http.Request, lang string, p Page) view {
	title := p.Title
	if p.Slug != "home" && title != "" {
		title += " | " + s.catalog.T(lang, "site.title")
	}
	v := view{
		Lang:          lang,
		Title:         title,
		Description:   p.Description,
		Page:          p,
		Nav:           BuildNav(MainNav, r.URL.Path, func(k string) string { return s.catalog.T(lang, k) }),
		Langs:         LanguageSwitcher(r.URL.Path, lang),
		BookingURL:    s.opts.BookingURL,
		Promo:         s.opts.Promo,
		MeasurementID: s.opts.MeasurementID,
		Year:          s.now().Year(),
		catalog:       s.catalog,
	}
	if base := strings.TrimRight(s.opts.BaseURL, "/"); base != "" {
		v.Canonical = base + r.URL.Path + "?hl=" + lang
	}
	if s.opts.SiteKey != "" {
		v.Tracker = &trackerView{SiteKey: s.opts.SiteKey, Endpoint: s.opts.CollectEndpoint}
	}
	return v
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	lang := Lang(r, s.opts.DefaultLocale)
	home, err := s.content.Get(lang, "home")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	v := s.newView(r, lang, home)
	v.Title = s.catalog.T(lang, "error.not_found")
	v.Page = Page{Title: v.Title}
	s.render(w, http.StatusNotFound, s.pages["home"], v)
}

func (s *Server) render(w http.ResponseWriter, status int, t *template.Template, v view) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", v); err != nil {
		log.Error().Err(err).Str("lang", v.Lang).Msg("Failed to render page")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

// Directions is the getting-here map state selected by ?tab= and ?from=.
type Directions struct {
	MapSrc      string
	MapTitle    string
	Origin      string
	OriginLabel string
	ResetHref   string
	ResetLabel  string
	NearbyTitle string
	Tabs        []Tab
	Places      []PlaceLink
}

type Tab struct {
	Label  string
	Href   string
	Active bool
}

type PlaceLink struct {
	Label    string
	Distance int
	Href     string
	Active   bool
}

const (
	TabRoutes      = "routes"
	TabAttractions = "attractions"
)

// BuildDirections derives the map view from query parameters. Only origins
// listed as nearby places are accepted; anything else shows the venue.
func BuildDirections(p Page, q url.Values, t func(string) string) *Directions {
	if p.Map == nil {
		return nil
	}
	tab := q.Get("tab")
	if tab != TabAttractions {
		tab = TabRoutes
	}

	d := &Directions{
		MapSrc:      p.Map.Src,
		MapTitle:    p.Map.Title,
		ResetHref:   "/" + p.Slug + "?tab=" + tab,
		ResetLabel:  t("getting_here.reset"),
		NearbyTitle: t("getting_here.nearby"),
		Tabs: []Tab{
			{Label: t("getting_here.routes"), Href: "/" + p.Slug + "?tab=" + TabRoutes, Active: tab == TabRoutes},
			{Label: t("getting_here.attractions"), Href: "/" + p.Slug + "?tab=" + TabAttractions, Active: tab == TabAttractions},
		},
	}

	from := q.Get("from")
	for _, n := range p.Nearby {
		if n.Label == from {
			d.Origin = n.Label
			d.OriginLabel = fmt.Sprintf(t("getting_here.from"), n.Label)
			d.MapSrc = DirectionsEmbed(n.Label, p.Map.Destination, false)
		}
	}

	if tab == TabRoutes {
		for _, n := range p.Nearby {
			d.Places = append(d.Places, PlaceLink{
				Label:    n.Label,
				Distance: n.Distance,
				Href:     "/" + p.Slug + "?tab=" + TabRoutes + "&from=" + url.QueryEscape(n.Label),
				Active:   n.Label == d.Origin,
			})
		}
	} else {
		for _, a := range p.Attractions {
			d.Places = append(d.Places, PlaceLink{Label: a.Label, Distance: a.Distance})
		}
	}
	return d
}

// DirectionsEmbed builds a Google Maps directions embed URL.
func DirectionsEmbed(origin, destination string, avoidTolls bool) string {
	q := url.Values{}
	q.Set("output", "embed")
	q.Set("f", "d")
	q.Set("source", "embed")
	q.Set("saddr", origin)
	q.Set("daddr", destination)
	if avoidTolls {
		q.Set("avoid", "tolls")
	}
	return "https://www.google.com/maps?" + q.Encode()
}
