package clicktrack

import "strings"

// node is a synthetic tree for tests.
type node struct {
	parent   *node
	tag      string
	text     string
	attrs    map[string]string
	children []*node
}

func el(tag string, attrs map[string]string, children ...*node) *node {
	n := &node{tag: tag, attrs: attrs}
	for _, c := range children {
		c.parent = n
		n.children = append(n.children, c)
	}
	return n
}

func text(s string) *node { return &node{text: s} }

// doc wraps children in html/body under a document node.
func doc(children ...*node) *node {
	root := &node{}
	htmlEl := el("html", nil, el("body", nil, children...))
	htmlEl.parent = root
	root.children = []*node{htmlEl}
	return root
}

func (n *node) Parent() Node {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

func (n *node) IsElement() bool { return n.tag != "" }
func (n *node) Tag() string     { return n.tag }

func (n *node) Attr(name string) (string, bool) {
	v, ok := n.attrs[name]
	return v, ok
}

func (n *node) Text() string {
	if n.tag == "" && n.parent != nil {
		return n.text
	}
	var b strings.Builder
	for _, c := range n.children {
		b.WriteString(c.Text())
	}
	return b.String()
}

// fakeRoot records listeners like a document would.
type fakeRoot struct {
	listeners map[int]Listener
	phases    map[int]Phase
	next      int
}

func newFakeRoot() *fakeRoot {
	return &fakeRoot{listeners: map[int]Listener{}, phases: map[int]Phase{}}
}

func (r *fakeRoot) AddClickListener(phase Phase, l Listener) func() {
	id := r.next
	r.next++
	r.listeners[id] = l
	r.phases[id] = phase
	return func() { delete(r.listeners, id) }
}

func (r *fakeRoot) click(c Click) {
	for i := 0; i < r.next; i++ {
		if l, ok := r.listeners[i]; ok {
			l(c)
		}
	}
}
