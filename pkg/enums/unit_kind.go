package enums

import "slices"

// UnitKind says how a cart line quantity is measured: whole items, or weight
// sold in quarter-kilo steps.
type UnitKind string

const (
	UnitKindEach   UnitKind = "each"
	UnitKindWeight UnitKind = "weight"
)

var validUnitKinds = []UnitKind{UnitKindEach, UnitKindWeight}

func (u UnitKind) String() string { return string(u) }

func (u UnitKind) IsValid() bool { return slices.Contains(validUnitKinds, u) }

func ParseUnitKind(value string) (UnitKind, error) {
	return parse("unit kind", value, validUnitKinds)
}
