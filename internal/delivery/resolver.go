package delivery

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/justcook/justcook-backend/pkg/config"
	pkgerrors "github.com/justcook/justcook-backend/pkg/errors"
	"github.com/justcook/justcook-backend/pkg/logger"
	"github.com/justcook/justcook-backend/pkg/maps"
)

// DistanceLookup resolves driving distance between two addresses.
type DistanceLookup interface {
	Distance(ctx context.Context, origin, destination string) (*maps.DistanceResult, error)
}

// QuoteRecorder counts resolutions by kind.
type QuoteRecorder interface {
	IncQuote(kind string)
}

// QuoteResolver is the behaviour consumers of the resolver depend on.
type QuoteResolver interface {
	Resolve(ctx context.Context, address string) Quote
}

type Resolver struct {
	lookup    DistanceLookup
	bands     BandTable
	origin    string
	minLength int
	timeout   time.Duration
	recorder  QuoteRecorder
	logg      *logger.Logger
}

// NewResolver wires the distance lookup to the configured band table.
func NewResolver(lookup DistanceLookup, bands BandTable, cfg config.DeliveryConfig, recorder QuoteRecorder, logg *logger.Logger) (*Resolver, error) {
	if lookup == nil {
		return nil, errors.New("distance lookup is required")
	}
	if err := bands.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Origin) == "" {
		return nil, errors.New("delivery origin is required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	minLength := cfg.MinAddressLength
	if minLength < 1 {
		minLength = 6
	}
	timeout := cfg.QuoteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Resolver{
		lookup:    lookup,
		bands:     bands,
		origin:    cfg.Origin,
		minLength: minLength,
		timeout:   timeout,
		recorder:  recorder,
		logg:      logg,
	}, nil
}

// Resolve maps an address to a quote. Failures become unavailable quotes.
func (r *Resolver) Resolve(ctx context.Context, address string) Quote {
	quote := r.resolve(ctx, strings.TrimSpace(address))
	if r.recorder != nil {
		label := string(quote.Kind)
		if quote.Reason != "" {
			label += ":" + string(quote.Reason)
		}
		r.recorder.IncQuote(label)
	}
	return quote
}

func (r *Resolver) resolve(ctx context.Context, address string) Quote {
	if len([]rune(address)) < r.minLength {
		return Unavailable(ReasonIncompleteAddress)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.lookup.Distance(lookupCtx, r.origin, address)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return Unavailable(ReasonAddressNotFound)
		}
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "delivery.quote.lookup_failed")
		return Unavailable(ReasonUpstreamUnavailable)
	}

	miles := result.DistanceMiles
	if math.IsNaN(miles) || math.IsInf(miles, 0) || miles <= 0 {
		r.logg.Warn(r.logg.WithField(ctx, "distance_miles", miles), "delivery.quote.bad_distance")
		return Unavailable(ReasonUpstreamUnavailable)
	}

	band, ok := r.bands.Classify(miles)
	if !ok {
		return Unavailable(ReasonUpstreamUnavailable)
	}
	if band.ManualQuote {
		return ManualQuote(miles, band)
	}
	return Priced(miles, band)
}
