package clicktrack

import (
	"net"
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	// MaxLabelLength caps emitted labels, counted in characters.
	MaxLabelLength = 120

	DefaultEventName    = "ui_click"
	LanguageSwitchEvent = "language_switch"

	ParamLabel = "label"
	ParamHref  = "href"
	ParamTo    = "to"
)

// ResolveClassifiableAncestor returns the nearest element, starting at n
// itself, that analytics treats as clickable: anything carrying an explicit
// analytics label or event, a hyperlink, a button, or an element with
// role="button".
func ResolveClassifiableAncestor(n Node) (Node, bool) {
	for ; n != nil; n = n.Parent() {
		if n.IsElement() && isClickable(n) {
			return n, true
		}
	}
	return nil, false
}

func isClickable(n Node) bool {
	if _, ok := n.Attr(AttrLabel); ok {
		return true
	}
	if _, ok := n.Attr(AttrEvent); ok {
		return true
	}
	switch n.Tag() {
	case "a", "button":
		return true
	}
	role, _ := n.Attr("role")
	return role == "button"
}

// Ignored reports whether the element opted out of analytics.
func Ignored(n Node) bool {
	v, _ := n.Attr(AttrIgnore)
	return v == "true"
}

// EventName returns the explicit event name of n, or DefaultEventName.
func EventName(n Node) string {
	if v, ok := n.Attr(AttrEvent); ok && v != "" {
		return v
	}
	return DefaultEventName
}

// Label derives the raw label of n: the trimmed explicit label if it is set,
// else the visible text with whitespace collapsed. The result is truncated
// to MaxLabelLength characters. ok is false when both are empty.
func Label(n Node) (label string, ok bool) {
	if v, has := n.Attr(AttrLabel); has {
		if v = strings.TrimSpace(v); v != "" {
			return truncate(v, MaxLabelLength), true
		}
	}
	text := strings.Join(strings.Fields(n.Text()), " ")
	if text == "" {
		return "", false
	}
	return truncate(text, MaxLabelLength), true
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}

// Href returns the link target of an anchor. Targets on the same origin as
// location are reduced to path and query; anything else is returned as an
// absolute URL. When the target cannot be parsed or resolved the raw
// attribute is returned as written. Non-anchors never have an href.
func Href(n Node, location *url.URL) (string, bool) {
	if n.Tag() != "a" {
		return "", false
	}
	raw, ok := n.Attr("href")
	if !ok {
		return "", false
	}
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw, true
	}
	target := ref
	if location != nil && location.IsAbs() {
		target = location.ResolveReference(ref)
	}
	if !target.IsAbs() {
		return raw, true
	}
	if location != nil && origin(target) != "" && origin(target) == origin(location) {
		return pathAndQuery(target), true
	}
	abs := canonicalHost(target)
	if abs.Host != "" && abs.Opaque == "" && abs.Path == "" {
		abs.Path = "/"
	}
	return abs.String(), true
}

func pathAndQuery(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p
}

// origin serializes scheme, host and non-default port. Opaque and host-less
// URLs have no origin.
func origin(u *url.URL) string {
	if u.Opaque != "" || u.Host == "" {
		return ""
	}
	c := canonicalHost(u)
	return c.Scheme + "://" + c.Host
}

func canonicalHost(u *url.URL) *url.URL {
	c := *u
	c.Scheme = strings.ToLower(c.Scheme)
	if c.Host == "" {
		return &c
	}
	host, port := strings.ToLower(c.Hostname()), c.Port()
	if (c.Scheme == "http" && port == "80") || (c.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		c.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		c.Host = "[" + host + "]"
	} else {
		c.Host = host
	}
	return &c
}

// DetectLanguageSwitch reports whether label names one of the site locales
// and returns that locale code.
func DetectLanguageSwitch(label string) (string, bool) {
	switch strings.ToLower(label) {
	case "pl", "polski":
		return "pl", true
	case "en", "english":
		return "en", true
	}
	return "", false
}
