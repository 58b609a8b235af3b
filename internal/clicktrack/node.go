// Package clicktrack classifies raw document clicks into analytics events.
//
// The classifier never sees a browser. It walks a Node tree supplied by an
// adapter (parsed HTML, or the ancestor path a tracker script serialized)
// and forwards what it finds to a Sink.
package clicktrack

import "net/url"

// Attributes read from markup.
const (
	AttrLabel  = "data-analytics-label"
	AttrEvent  = "data-analytics-event"
	AttrIgnore = "data-analytics-ignore"
)

// Node is the read-only view of a document node the classifier walks.
type Node interface {
	// Parent returns the enclosing node, or nil at the document root.
	Parent() Node
	// IsElement reports whether the node is an element rather than text or
	// the document itself.
	IsElement() bool
	// Tag returns the lowercase tag name of an element.
	Tag() string
	// Attr returns the value of the named attribute.
	Attr(name string) (string, bool)
	// Text returns the text content of the node and all its descendants.
	Text() string
}

// Click is one observed click.
type Click struct {
	Target   Node
	Location *url.URL
	X        int
	Y        int
}

// Event is a classified analytics event.
type Event struct {
	Name   string
	Params Params
}

// Params holds event parameters. Absent values are left out of the map.
type Params map[string]any

// String returns the string parameter stored under key.
func (p Params) String(key string) (string, bool) {
	v, ok := p[key].(string)
	return v, ok
}
