package delivery

// QuoteKind tags which variant a Quote holds.
type QuoteKind string

const (
	QuotePriced      QuoteKind = "priced"
	QuoteManual      QuoteKind = "manual_quote"
	QuoteUnavailable QuoteKind = "unavailable"
)

// UnavailableReason explains why no quote could be produced.
type UnavailableReason string

const (
	ReasonIncompleteAddress   UnavailableReason = "incomplete_address"
	ReasonAddressNotFound     UnavailableReason = "address_not_found"
	ReasonUpstreamUnavailable UnavailableReason = "upstream_unavailable"
)

// Quote is the outcome of resolving an address. Only priced quotes carry a
// fee; a missing quote never defaults to one.
type Quote struct {
	Kind          QuoteKind         `json:"kind"`
	DistanceMiles float64           `json:"distanceMiles,omitempty"`
	Band          string            `json:"band,omitempty"`
	Fee           int64             `json:"feeMinorUnits"`
	Reason        UnavailableReason `json:"reason,omitempty"`
}

func Priced(distance float64, band Band) Quote {
	return Quote{Kind: QuotePriced, DistanceMiles: distance, Band: band.Label, Fee: band.Fee}
}

func ManualQuote(distance float64, band Band) Quote {
	return Quote{Kind: QuoteManual, DistanceMiles: distance, Band: band.Label}
}

func Unavailable(reason UnavailableReason) Quote {
	return Quote{Kind: QuoteUnavailable, Reason: reason}
}

func (q Quote) IsPriced() bool { return q.Kind == QuotePriced }

func (q Quote) RequiresManualQuote() bool { return q.Kind == QuoteManual }

// BaseFee is the fee a priced quote carries and zero otherwise.
func (q Quote) BaseFee() int64 {
	if q.Kind != QuotePriced {
		return 0
	}
	return q.Fee
}
