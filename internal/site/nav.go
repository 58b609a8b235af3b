package site

import "strings"

// NavItem is a top-level navigation entry.
type NavItem struct {
	Path     string
	LabelKey string
}

// RenderedNavItem is a view model for templates.
type RenderedNavItem struct {
	Href   string
	Label  string
	Active bool
}

// MainNav is the primary navigation.
var MainNav = []NavItem{
	{Path: "/", LabelKey: "nav.home"},
	{Path: "/wydarzenia", LabelKey: "nav.events"},
	{Path: "/jak-dojechac", LabelKey: "nav.getting_here"},
}

// BuildNav renders items with active state for currentPath. translate maps
// label keys to display text.
func BuildNav(items []NavItem, currentPath string, translate func(string) string) []RenderedNavItem {
	if currentPath == "" {
		currentPath = "/"
	}
	out := make([]RenderedNavItem, 0, len(items))
	for _, it := range items {
		out = append(out, RenderedNavItem{
			Href:   it.Path,
			Label:  translate(it.LabelKey),
			Active: isActive(it.Path, currentPath),
		})
	}
	return out
}

func isActive(itemPath, currentPath string) bool {
	if itemPath == "/" {
		return currentPath == "/"
	}
	// match exact or prefix boundary: "/wydarzenia" or "/wydarzenia/..."
	return currentPath == itemPath || strings.HasPrefix(currentPath, itemPath+"/")
}

// LangOption is one entry of the language switcher.
type LangOption struct {
	Code   string
	Label  string
	Href   string
	Active bool
}

var langLabels = []struct{ code, label string }{
	{"pl", "Polski"},
	{"en", "English"},
}

// LanguageSwitcher links the current path in every supported language.
func LanguageSwitcher(currentPath, current string) []LangOption {
	if currentPath == "" {
		currentPath = "/"
	}
	out := make([]LangOption, 0, len(langLabels))
	for _, l := range langLabels {
		out = append(out, LangOption{
			Code:   l.code,
			Label:  l.label,
			Href:   currentPath + "?hl=" + l.code,
			Active: l.code == current,
		})
	}
	return out
}
