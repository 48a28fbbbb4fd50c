package checkout

import (
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/justcook/justcook-backend/internal/pricing"
	pkgerrors "github.com/justcook/justcook-backend/pkg/errors"
)

const (
	// MetadataVersion is bumped whenever the key layout changes.
	MetadataVersion = 1

	// Stripe accepts at most 50 keys with values up to 500 characters.
	maxMetadataKeys     = 50
	maxMetadataValueLen = 500
	itemsChunkBytes     = 500
)

const (
	keyVersion          = "v"
	keyCustomerID       = "customer_id"
	keyCustomerName     = "customer_name"
	keyPhone            = "phone"
	keyDeliveryAddress  = "delivery_address"
	keyDistanceMiles    = "distance_miles"
	keyDeliveryBand     = "delivery_band"
	keyBaseDeliveryFee  = "base_delivery_fee"
	keyDeliveryFee      = "delivery_fee"
	keyDeliveryDiscount = "delivery_discount"
	keyItemsSubtotal    = "items_subtotal"
	keyTotal            = "total"
	keyIsStudent        = "is_student"
	keyUseCredit        = "use_credit"
	keyReferralCode     = "referral_code"
	keyReferrerID       = "referrer_id"
	keyItemsChunks      = "items_chunks"
	keyItemsPrefix      = "items_"
)

// SessionMetadata carries every pricing input from session creation to the
// payment webhook, which trusts it instead of recomputing.
type SessionMetadata struct {
	Version          int
	CustomerID       uuid.UUID
	CustomerName     string
	Phone            string
	DeliveryAddress  string
	DistanceMiles    float64
	DeliveryBand     string
	BaseDeliveryFee  int64
	DeliveryFee      int64
	DeliveryDiscount pricing.Discount
	ItemsSubtotal    int64
	Total            int64
	IsStudent        bool
	UseCredit        bool
	ReferralCode     string
	ReferrerID       *uuid.UUID
	Lines            []pricing.CartLine
}

// Encode flattens the metadata into provider key/value pairs. Cart lines are
// JSON split into items_0..N chunks on rune boundaries.
func (m SessionMetadata) Encode() (map[string]string, error) {
	out := map[string]string{
		keyVersion:          strconv.Itoa(MetadataVersion),
		keyCustomerID:       m.CustomerID.String(),
		keyCustomerName:     m.CustomerName,
		keyPhone:            m.Phone,
		keyDeliveryAddress:  m.DeliveryAddress,
		keyDistanceMiles:    strconv.FormatFloat(m.DistanceMiles, 'f', 2, 64),
		keyDeliveryBand:     m.DeliveryBand,
		keyBaseDeliveryFee:  strconv.FormatInt(m.BaseDeliveryFee, 10),
		keyDeliveryFee:      strconv.FormatInt(m.DeliveryFee, 10),
		keyDeliveryDiscount: string(m.DeliveryDiscount),
		keyItemsSubtotal:    strconv.FormatInt(m.ItemsSubtotal, 10),
		keyTotal:            strconv.FormatInt(m.Total, 10),
		keyIsStudent:        strconv.FormatBool(m.IsStudent),
		keyUseCredit:        strconv.FormatBool(m.UseCredit),
	}
	if m.ReferralCode != "" {
		out[keyReferralCode] = m.ReferralCode
	}
	if m.ReferrerID != nil {
		out[keyReferrerID] = m.ReferrerID.String()
	}

	for key, value := range out {
		if utf8.RuneCountInString(value) > maxMetadataValueLen {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s is too long", key)).
				WithDetails(map[string]any{"field": key, "max": maxMetadataValueLen})
		}
	}

	items, err := json.Marshal(m.Lines)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode cart lines")
	}
	chunks := chunkRunes(string(items), itemsChunkBytes)
	if len(out)+1+len(chunks) > maxMetadataKeys {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is too large to check out in one payment").
			WithDetails(map[string]any{"chunks": len(chunks)})
	}
	out[keyItemsChunks] = strconv.Itoa(len(chunks))
	for i, chunk := range chunks {
		out[keyItemsPrefix+strconv.Itoa(i)] = chunk
	}
	return out, nil
}

// DecodeMetadata reverses Encode and validates the result.
func DecodeMetadata(raw map[string]string) (*SessionMetadata, error) {
	version, err := strconv.Atoi(raw[keyVersion])
	if err != nil || version != MetadataVersion {
		return nil, fmt.Errorf("unsupported metadata version %q", raw[keyVersion])
	}

	m := &SessionMetadata{
		Version:          version,
		CustomerName:     raw[keyCustomerName],
		Phone:            raw[keyPhone],
		DeliveryAddress:  raw[keyDeliveryAddress],
		DeliveryBand:     raw[keyDeliveryBand],
		DeliveryDiscount: pricing.Discount(raw[keyDeliveryDiscount]),
		ReferralCode:     raw[keyReferralCode],
	}

	if m.CustomerID, err = uuid.Parse(raw[keyCustomerID]); err != nil {
		return nil, fmt.Errorf("customer_id: %w", err)
	}
	if m.DistanceMiles, err = strconv.ParseFloat(raw[keyDistanceMiles], 64); err != nil {
		return nil, fmt.Errorf("distance_miles: %w", err)
	}
	ints := []struct {
		key string
		dst *int64
	}{
		{keyBaseDeliveryFee, &m.BaseDeliveryFee},
		{keyDeliveryFee, &m.DeliveryFee},
		{keyItemsSubtotal, &m.ItemsSubtotal},
		{keyTotal, &m.Total},
	}
	for _, f := range ints {
		v, err := strconv.ParseInt(raw[f.key], 10, 64)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("%s: invalid amount %q", f.key, raw[f.key])
		}
		*f.dst = v
	}
	if m.IsStudent, err = strconv.ParseBool(raw[keyIsStudent]); err != nil {
		return nil, fmt.Errorf("is_student: %w", err)
	}
	if m.UseCredit, err = strconv.ParseBool(raw[keyUseCredit]); err != nil {
		return nil, fmt.Errorf("use_credit: %w", err)
	}
	if ref := raw[keyReferrerID]; ref != "" {
		id, err := uuid.Parse(ref)
		if err != nil {
			return nil, fmt.Errorf("referrer_id: %w", err)
		}
		m.ReferrerID = &id
	}

	n, err := strconv.Atoi(raw[keyItemsChunks])
	if err != nil || n < 1 || n > maxMetadataKeys {
		return nil, fmt.Errorf("items_chunks: invalid count %q", raw[keyItemsChunks])
	}
	var items []byte
	for i := 0; i < n; i++ {
		chunk, ok := raw[keyItemsPrefix+strconv.Itoa(i)]
		if !ok {
			return nil, fmt.Errorf("missing items chunk %d", i)
		}
		items = append(items, chunk...)
	}
	if err := json.Unmarshal(items, &m.Lines); err != nil {
		return nil, fmt.Errorf("decode cart lines: %w", err)
	}
	if len(m.Lines) == 0 {
		return nil, fmt.Errorf("metadata carries no cart lines")
	}
	if lineErrs := pricing.ValidateLines(m.Lines); len(lineErrs) > 0 {
		return nil, fmt.Errorf("invalid cart line %d: %s", lineErrs[0].Index, lineErrs[0].Reason)
	}
	if m.ItemsSubtotal+m.DeliveryFee != m.Total {
		return nil, fmt.Errorf("total %d does not match subtotal %d plus fee %d", m.Total, m.ItemsSubtotal, m.DeliveryFee)
	}
	return m, nil
}

// chunkRunes splits s into pieces of at most maxBytes without cutting a rune.
func chunkRunes(s string, maxBytes int) []string {
	if s == "" {
		return []string{""}
	}
	var chunks []string
	for len(s) > 0 {
		if len(s) <= maxBytes {
			chunks = append(chunks, s)
			break
		}
		cut := maxBytes
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		chunks = append(chunks, s[:cut])
		s = s[cut:]
	}
	return chunks
}
