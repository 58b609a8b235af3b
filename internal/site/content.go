package site

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"
)

var ErrNotFound = errors.New("page not found")

// Page is a localized content page.
type Page struct {
	Slug        string
	Lang        string
	Title       string
	Description string
	Tag         string
	Subtitle    string
	Body        template.HTML

	VideosTitle string
	Videos      []Video
	Map         *MapEmbed
	Nearby      []Place
	Attractions []Place
}

type Video struct {
	Title  string `yaml:"title"`
	Body   string `yaml:"body"`
	Src    string `yaml:"src"`
	Poster string `yaml:"poster"`
}

type MapEmbed struct {
	Title       string `yaml:"title"`
	Src         string `yaml:"src"`
	Destination string `yaml:"destination"`
}

type Place struct {
	Label    string `yaml:"label"`
	Distance int    `yaml:"distance"`
	Kind     string `yaml:"kind"`
}

type frontMatter struct {
	Title       string    `yaml:"title"`
	Description string    `yaml:"description"`
	Tag         string    `yaml:"tag"`
	Subtitle    string    `yaml:"subtitle"`
	VideosTitle string    `yaml:"videos_title"`
	Videos      []Video   `yaml:"videos"`
	Map         *MapEmbed `yaml:"map"`
	Nearby      []Place   `yaml:"nearby"`
	Attractions []Place   `yaml:"attractions"`
}

// Content holds every page parsed from <lang>/<slug>.md files.
type Content struct {
	pages    map[string]Page
	fallback string
}

// LoadContent parses all markdown pages in fsys. Pages missing in a locale
// fall back to the same slug in fallback.
func LoadContent(fsys fs.FS, fallback string) (*Content, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough))
	policy := newContentPolicy()

	c := &Content{pages: map[string]Page{}, fallback: fallback}
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(p) != ".md" {
			return nil
		}
		lang := path.Base(path.Dir(p))
		slug := strings.TrimSuffix(path.Base(p), ".md")

		raw, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		page, err := parsePage(md, policy, raw)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		page.Slug, page.Lang = slug, lang
		c.pages[lang+"/"+slug] = page
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns the page for slug in lang, or in the fallback locale.
func (c *Content) Get(lang, slug string) (Page, error) {
	if p, ok := c.pages[lang+"/"+slug]; ok {
		return p, nil
	}
	if p, ok := c.pages[c.fallback+"/"+slug]; ok {
		return p, nil
	}
	return Page{}, ErrNotFound
}

func parsePage(md goldmark.Markdown, policy *bluemonday.Policy, raw []byte) (Page, error) {
	meta, body, err := splitFrontMatter(raw)
	if err != nil {
		return Page{}, err
	}
	var fm frontMatter
	if len(meta) > 0 {
		if err := yaml.Unmarshal(meta, &fm); err != nil {
			return Page{}, fmt.Errorf("front matter: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := md.Convert(body, &buf); err != nil {
		return Page{}, fmt.Errorf("markdown: %w", err)
	}

	return Page{
		Title:       fm.Title,
		Description: fm.Description,
		Tag:         fm.Tag,
		Subtitle:    fm.Subtitle,
		Body:        template.HTML(policy.SanitizeBytes(buf.Bytes())),
		VideosTitle: fm.VideosTitle,
		Videos:      fm.Videos,
		Map:         fm.Map,
		Nearby:      fm.Nearby,
		Attractions: fm.Attractions,
	}, nil
}

// splitFrontMatter separates a leading "---" delimited YAML block from the
// markdown body.
func splitFrontMatter(raw []byte) (meta, body []byte, err error) {
	raw = bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(raw, []byte("---\n")) {
		return nil, raw, nil
	}
	rest := raw[len("---\n"):]
	end := bytes.Index(rest, []byte("\n---\n"))
	if end < 0 {
		if bytes.HasSuffix(rest, []byte("\n---")) {
			return rest[:len(rest)-len("\n---")], nil, nil
		}
		return nil, nil, errors.New("unterminated front matter")
	}
	return rest[:end], rest[end+len("\n---\n"):], nil
}

func newContentPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").OnElements("p", "span", "ul", "li")
	policy.RequireNoFollowOnLinks(false)
	return policy
}
