package delivery

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Band is a contiguous distance range mapped to a fixed fee in pence.
// MaxMiles is the inclusive upper bound; the final band is unbounded.
type Band struct {
	Label       string
	MinMiles    float64
	MaxMiles    float64
	Fee         int64
	ManualQuote bool
}

// BandTable partitions [0, ∞) into ordered bands.
type BandTable struct {
	bands []Band
}

// DefaultBands mirrors the published delivery price list.
func DefaultBands() BandTable {
	table, err := NewBandTable([]float64{3, 6, 10}, []int64{299, 499, 799})
	if err != nil {
		panic(err)
	}
	return table
}

// ParseBands builds a table from "miles:fee" pairs, e.g. "3:299,6:499,10:799".
// Distances beyond the last bound fall into a manual-quote band.
func ParseBands(raw string) (BandTable, error) {
	var (
		bounds []float64
		fees   []int64
	)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		milesRaw, feeRaw, ok := strings.Cut(entry, ":")
		if !ok {
			return BandTable{}, fmt.Errorf("band %q must be miles:fee", entry)
		}
		miles, err := strconv.ParseFloat(strings.TrimSpace(milesRaw), 64)
		if err != nil {
			return BandTable{}, fmt.Errorf("band %q: invalid miles: %w", entry, err)
		}
		fee, err := strconv.ParseInt(strings.TrimSpace(feeRaw), 10, 64)
		if err != nil {
			return BandTable{}, fmt.Errorf("band %q: invalid fee: %w", entry, err)
		}
		bounds = append(bounds, miles)
		fees = append(fees, fee)
	}
	return NewBandTable(bounds, fees)
}

// NewBandTable builds a validated table from upper bounds and their fees.
func NewBandTable(bounds []float64, fees []int64) (BandTable, error) {
	if len(bounds) == 0 {
		return BandTable{}, fmt.Errorf("at least one band is required")
	}
	if len(bounds) != len(fees) {
		return BandTable{}, fmt.Errorf("bands and fees differ in length")
	}

	bands := make([]Band, 0, len(bounds)+1)
	lower := 0.0
	for i, upper := range bounds {
		bands = append(bands, Band{
			Label:    fmt.Sprintf("%s–%s miles", formatMiles(lower), formatMiles(upper)),
			MinMiles: lower,
			MaxMiles: upper,
			Fee:      fees[i],
		})
		lower = upper
	}
	bands = append(bands, Band{
		Label:       fmt.Sprintf("%s+ miles", formatMiles(lower)),
		MinMiles:    lower,
		MaxMiles:    math.Inf(1),
		ManualQuote: true,
	})

	table := BandTable{bands: bands}
	if err := table.Validate(); err != nil {
		return BandTable{}, err
	}
	return table, nil
}

// Validate checks that bounds are positive, strictly increasing and finite
// (except the last) and that fees are non-negative.
func (t BandTable) Validate() error {
	if len(t.bands) < 2 {
		return fmt.Errorf("band table needs a priced band and a manual-quote band")
	}
	prev := 0.0
	for i, band := range t.bands {
		last := i == len(t.bands)-1
		if band.MinMiles != prev {
			return fmt.Errorf("band %q does not start where the previous band ends", band.Label)
		}
		if band.Fee < 0 {
			return fmt.Errorf("band %q has a negative fee", band.Label)
		}
		if last {
			if !math.IsInf(band.MaxMiles, 1) || !band.ManualQuote {
				return fmt.Errorf("final band must be an unbounded manual-quote band")
			}
			continue
		}
		if math.IsNaN(band.MaxMiles) || math.IsInf(band.MaxMiles, 0) || band.MaxMiles <= prev {
			return fmt.Errorf("band bound %v must be finite and greater than %v", band.MaxMiles, prev)
		}
		prev = band.MaxMiles
	}
	return nil
}

// Classify returns the single band containing d. It reports false for
// negative or non-finite distances.
func (t BandTable) Classify(d float64) (Band, bool) {
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return Band{}, false
	}
	for _, band := range t.bands {
		if d <= band.MaxMiles {
			return band, true
		}
	}
	return Band{}, false
}

// Bands returns a copy of the ordered bands.
func (t BandTable) Bands() []Band {
	out := make([]Band, len(t.bands))
	copy(out, t.bands)
	return out
}

func formatMiles(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
