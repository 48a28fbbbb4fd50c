// Command quote resolves delivery quotes for addresses typed on stdin. Each
// line replaces the previous address; only the newest one is priced once
// typing pauses for the debounce delay.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/joho/godotenv"

	"github.com/justcook/justcook-backend/internal/delivery"
	"github.com/justcook/justcook-backend/pkg/config"
	"github.com/justcook/justcook-backend/pkg/logger"
	"github.com/justcook/justcook-backend/pkg/maps"
)

func main() {
	verbose := flag.Bool("v", false, "dump the full quote structure")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "quote", Format: "console", Output: os.Stderr})
	_ = godotenv.Load()

	cfg, err := config.LoadQuote()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	mapsClient, err := maps.NewClient(cfg.GoogleMaps.APIKey,
		maps.WithBaseURL(cfg.GoogleMaps.BaseURL),
		maps.WithCountryHint(cfg.Delivery.CountryHint),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to build maps client", err)
		os.Exit(1)
	}
	bands, err := delivery.ParseBands(cfg.Delivery.Bands)
	if err != nil {
		logg.Error(context.Background(), "invalid delivery bands", err)
		os.Exit(1)
	}
	resolver, err := delivery.NewResolver(mapsClient, bands, cfg.Delivery, nil, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build resolver", err)
		os.Exit(1)
	}

	var out sync.Mutex
	refresher := delivery.NewRefresher(resolver, cfg.Delivery.DebounceDelay, func(address string, q delivery.Quote) {
		out.Lock()
		defer out.Unlock()
		fmt.Println(describe(address, q))
		if *verbose {
			spew.Fdump(os.Stdout, q)
		}
	})
	defer refresher.Close()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		refresher.Update(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		logg.Error(context.Background(), "reading stdin", err)
	}
	refresher.Flush()
}

func describe(address string, q delivery.Quote) string {
	switch q.Kind {
	case delivery.QuotePriced:
		return fmt.Sprintf("%s: %.1f miles, band %s, fee £%d.%02d", address, q.DistanceMiles, q.Band, q.Fee/100, q.Fee%100)
	case delivery.QuoteManual:
		return fmt.Sprintf("%s: %.1f miles, band %s, call for a quote", address, q.DistanceMiles, q.Band)
	default:
		return fmt.Sprintf("%s: unavailable (%s)", address, q.Reason)
	}
}
