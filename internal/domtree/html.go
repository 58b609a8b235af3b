// Package domtree adapts concrete document representations to
// clicktrack.Node.
package domtree

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/alverniaplanet/website/internal/clicktrack"
)

type htmlNode struct {
	n *html.Node
}

// FromHTML wraps a parsed HTML node.
func FromHTML(n *html.Node) clicktrack.Node {
	if n == nil {
		return nil
	}
	return htmlNode{n: n}
}

// HTMLNode returns the *html.Node behind a node built by FromHTML.
func HTMLNode(n clicktrack.Node) (*html.Node, bool) {
	h, ok := n.(htmlNode)
	if !ok {
		return nil, false
	}
	return h.n, true
}

func (h htmlNode) Parent() clicktrack.Node {
	if h.n.Parent == nil {
		return nil
	}
	return htmlNode{n: h.n.Parent}
}

func (h htmlNode) IsElement() bool { return h.n.Type == html.ElementNode }

func (h htmlNode) Tag() string {
	if h.n.Type != html.ElementNode {
		return ""
	}
	return strings.ToLower(h.n.Data)
}

func (h htmlNode) Attr(name string) (string, bool) {
	for _, a := range h.n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func (h htmlNode) Text() string {
	if h.n.Type == html.TextNode {
		return h.n.Data
	}
	return goquery.NewDocumentFromNode(h.n).Text()
}
