// Package audit dry-runs click classification over a rendered page.
package audit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/alverniaplanet/website/internal/clicktrack"
	"github.com/alverniaplanet/website/internal/domtree"
)

// Candidates selects every element a visitor can plausibly click.
const Candidates = "a, button, [role=button], [data-analytics-label], [data-analytics-event], [data-analytics-ignore]"

// Finding is what one candidate element emits when clicked.
type Finding struct {
	Element      string
	Events       []clicktrack.Event
	Ignored      bool
	MissingLabel bool
}

// Report collects findings for one page.
type Report struct {
	Location *url.URL
	Findings []Finding
}

// Fetch downloads and parses a page.
func Fetch(ctx context.Context, client *http.Client, rawURL string) (*domtree.Document, error) {
	loc, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "clickaudit/1.0")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", loc, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("failed to fetch %s: status %d", loc, resp.StatusCode)
	}
	return domtree.NewDocument(resp.Body, loc)
}

// Run clicks every candidate in doc, in document order, and records what
// the classifier emits for each.
func Run(doc *domtree.Document, opts ...clicktrack.Option) Report {
	rec := &clicktrack.Recorder{}
	sub := clicktrack.New(rec, opts...).Attach(doc)
	defer sub.Release()

	report := Report{Location: doc.Location()}
	doc.Find(Candidates).Each(func(_ int, s *goquery.Selection) {
		rec.Reset()
		doc.ClickNode(s.Get(0))
		events := rec.Events()

		f := Finding{
			Element: Describe(s),
			Events:  events,
			Ignored: len(events) == 0 && clicktrack.Ignored(domtree.FromHTML(s.Get(0))),
		}
		if n := len(events); n > 0 {
			_, has := events[n-1].Params[clicktrack.ParamLabel]
			f.MissingLabel = !has
		}
		report.Findings = append(report.Findings, f)
	})
	return report
}

// Unlabeled returns the findings whose generic event carries no label.
func (r Report) Unlabeled() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.MissingLabel {
			out = append(out, f)
		}
	}
	return out
}

// Counts tallies emitted events by name.
func (r Report) Counts() map[string]int {
	out := map[string]int{}
	for _, f := range r.Findings {
		for _, ev := range f.Events {
			out[ev.Name]++
		}
	}
	return out
}

// Describe renders a short, human-readable selector for s.
func Describe(s *goquery.Selection) string {
	var b strings.Builder
	b.WriteString(goquery.NodeName(s))
	if id, ok := s.Attr("id"); ok && id != "" {
		b.WriteString("#" + id)
	} else if class, ok := s.Attr("class"); ok {
		if fields := strings.Fields(class); len(fields) > 0 {
			b.WriteString("." + fields[0])
		}
	}
	if text := strings.Join(strings.Fields(s.Text()), " "); text != "" {
		if r := []rune(text); len(r) > 30 {
			text = string(r[:30]) + "…"
		}
		fmt.Fprintf(&b, " %q", text)
	}
	return b.String()
}

// Write prints the report as an aligned table followed by a summary.
func Write(w io.Writer, r Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ELEMENT\tEVENT\tLABEL\tHREF\tTO")
	for _, f := range r.Findings {
		switch {
		case f.Ignored:
			fmt.Fprintf(tw, "%s\t(ignored)\t\t\t\n", f.Element)
		case len(f.Events) == 0:
			fmt.Fprintf(tw, "%s\t(none)\t\t\t\n", f.Element)
		}
		for _, ev := range f.Events {
			label, _ := ev.Params.String(clicktrack.ParamLabel)
			if f.MissingLabel && label == "" {
				label = "(missing)"
			}
			href, _ := ev.Params.String(clicktrack.ParamHref)
			to, _ := ev.Params.String(clicktrack.ParamTo)
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", f.Element, ev.Name, label, href, to)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	counts := r.Counts()
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "\n%d elements", len(r.Findings))
	for _, name := range names {
		fmt.Fprintf(w, ", %s=%d", name, counts[name])
	}
	_, err := fmt.Fprintf(w, ", unlabeled=%d\n", len(r.Unlabeled()))
	return err
}
