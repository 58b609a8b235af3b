// Command clickaudit lists the analytics events each clickable element of a
// page would emit.
//
//	clickaudit -url https://alverniaplanet.pl/wydarzenia
//	clickaudit -file page.html -location https://alverniaplanet.pl/
package main

import (
	"context"
	"flag"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/alverniaplanet/website/internal/audit"
	"github.com/alverniaplanet/website/internal/clicktrack"
	"github.com/alverniaplanet/website/internal/domtree"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	pageURL := flag.String("url", "", "page to fetch")
	file := flag.String("file", "", "local HTML file to audit instead of -url")
	location := flag.String("location", "", "URL the -file page is served from")
	strict := flag.Bool("strict", false, "exit non-zero when an element has no label")
	timeout := flag.Duration("timeout", 10*time.Second, "fetch timeout")
	flag.Parse()

	var (
		doc *domtree.Document
		err error
	)
	switch {
	case *pageURL != "":
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		doc, err = audit.Fetch(ctx, nil, *pageURL)
		cancel()
	case *file != "":
		doc, err = openFile(*file, *location)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load page")
	}

	report := audit.Run(doc, clicktrack.WithLogger(log.Logger))
	if err := audit.Write(os.Stdout, report); err != nil {
		log.Fatal().Err(err).Msg("Failed to write report")
	}

	if unlabeled := report.Unlabeled(); len(unlabeled) > 0 {
		for _, f := range unlabeled {
			log.Warn().Str("element", f.Element).Msg("Clickable element has no label")
		}
		if *strict {
			os.Exit(1)
		}
	}
}

func openFile(path, location string) (*domtree.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var loc *url.URL
	if location != "" {
		if loc, err = url.Parse(location); err != nil {
			return nil, err
		}
	}
	return domtree.NewDocument(f, loc)
}
