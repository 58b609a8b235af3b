package domtree

import (
	"fmt"
	"io"
	"net/url"
	"sort"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/alverniaplanet/website/internal/clicktrack"
)

// Handler is an element-level click handler. Returning true stops the
// click from reaching bubble-phase listeners.
type Handler func(clicktrack.Click) (stop bool)

type listener struct {
	phase clicktrack.Phase
	fn    clicktrack.Listener
}

type handler struct {
	matcher goquery.Matcher
	fn      Handler
}

// Document is a parsed page that dispatches synthetic clicks the way a
// browser does: capture listeners on the root, then element handlers from
// the target outward, then bubble listeners unless a handler stopped
// propagation.
type Document struct {
	doc      *goquery.Document
	location *url.URL

	mu        sync.Mutex
	listeners map[int]listener
	handlers  []handler
	nextID    int
}

// NewDocument parses r as HTML served from location.
func NewDocument(r io.Reader, location *url.URL) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return FromGoquery(doc, location), nil
}

// FromGoquery wraps an already parsed document.
func FromGoquery(doc *goquery.Document, location *url.URL) *Document {
	return &Document{
		doc:       doc,
		location:  location,
		listeners: make(map[int]listener),
	}
}

func (d *Document) Location() *url.URL { return d.location }

// Find runs a CSS selector against the document.
func (d *Document) Find(selector string) *goquery.Selection {
	return d.doc.Find(selector)
}

// AddClickListener implements clicktrack.Root.
func (d *Document) AddClickListener(phase clicktrack.Phase, l clicktrack.Listener) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = listener{phase: phase, fn: l}
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.listeners, id)
	}
}

// Listeners returns how many root listeners are attached.
func (d *Document) Listeners() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners)
}

// Handle registers fn on every element matching selector.
func (d *Document) Handle(selector string, fn Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, handler{matcher: goquery.Single(selector), fn: fn})
}

// Click dispatches a click on the first element matching selector.
func (d *Document) Click(selector string) error {
	sel := d.doc.Find(selector).First()
	if sel.Length() == 0 {
		return fmt.Errorf("no element matches %q", selector)
	}
	d.ClickNode(sel.Get(0))
	return nil
}

// ClickNode dispatches a click on n, which may be a text node.
func (d *Document) ClickNode(n *html.Node) {
	click := clicktrack.Click{Target: FromHTML(n), Location: d.location}

	capture, bubble, handlers := d.snapshot()
	for _, l := range capture {
		l(click)
	}

	stopped := false
	for cur := n; cur != nil && !stopped; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		for _, h := range handlers {
			if h.matcher.Match(cur) && h.fn(click) {
				stopped = true
			}
		}
	}
	if stopped {
		return
	}
	for _, l := range bubble {
		l(click)
	}
}

func (d *Document) snapshot() (capture, bubble []clicktrack.Listener, handlers []handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]int, 0, len(d.listeners))
	for id := range d.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		l := d.listeners[id]
		if l.phase == clicktrack.Capture {
			capture = append(capture, l.fn)
		} else {
			bubble = append(bubble, l.fn)
		}
	}
	handlers = append(handlers, d.handlers...)
	return capture, bubble, handlers
}
