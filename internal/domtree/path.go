package domtree

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alverniaplanet/website/internal/clicktrack"
)

const (
	NodeElement = "element"
	NodeText    = "text"
)

var (
	ErrEmptyPath   = errors.New("click path is empty")
	ErrPathTooDeep = errors.New("click path is too deep")
)

// PathNode is one node of a serialized click path.
type PathNode struct {
	Type  string            `json:"type,omitempty"`
	Tag   string            `json:"tag,omitempty"`
	Attrs map[string]string `json:"attrs,omitempty"`
	Text  string            `json:"text,omitempty"`
}

// Path is the chain of nodes from a click target (index 0) up to the
// outermost element the tracker serialized. The parent of the last node is
// the document.
type Path []PathNode

// Validate checks the shape of p. Only the target may be a text node and
// every element needs a tag.
func (p Path) Validate(maxDepth int) error {
	if len(p) == 0 {
		return ErrEmptyPath
	}
	if maxDepth > 0 && len(p) > maxDepth {
		return fmt.Errorf("%w: %d nodes, max %d", ErrPathTooDeep, len(p), maxDepth)
	}
	for i, n := range p {
		switch n.Type {
		case "", NodeElement:
			if strings.TrimSpace(n.Tag) == "" {
				return fmt.Errorf("click path node %d: element without tag", i)
			}
		case NodeText:
			if i != 0 {
				return fmt.Errorf("click path node %d: text node above the target", i)
			}
		default:
			return fmt.Errorf("click path node %d: unknown type %q", i, n.Type)
		}
	}
	return nil
}

// Target returns the clicked node, or nil for an empty path.
func (p Path) Target() clicktrack.Node {
	if len(p) == 0 {
		return nil
	}
	return pathNode{p: p, i: 0}
}

type pathNode struct {
	p Path
	i int
}

func (n pathNode) Parent() clicktrack.Node {
	if n.i+1 >= len(n.p) {
		return nil
	}
	return pathNode{p: n.p, i: n.i + 1}
}

func (n pathNode) IsElement() bool { return n.p[n.i].Type != NodeText }

func (n pathNode) Tag() string {
	if !n.IsElement() {
		return ""
	}
	return strings.ToLower(n.p[n.i].Tag)
}

func (n pathNode) Attr(name string) (string, bool) {
	v, ok := n.p[n.i].Attrs[name]
	return v, ok
}

func (n pathNode) Text() string { return n.p[n.i].Text }
