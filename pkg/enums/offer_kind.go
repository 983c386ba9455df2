package enums

import "fmt"

// OfferKind discriminates the supplier offer tables an order item can point at.
type OfferKind string

const (
	OfferKindBase    OfferKind = "base"
	OfferKindVariant OfferKind = "variant"
)

// IsValid reports whether the value is a known OfferKind.
func (k OfferKind) IsValid() bool {
	return k == OfferKindBase || k == OfferKindVariant
}

// ParseOfferKind converts raw input into an OfferKind.
func ParseOfferKind(value string) (OfferKind, error) {
	switch OfferKind(value) {
	case OfferKindBase, OfferKindVariant:
		return OfferKind(value), nil
	}
	return "", fmt.Errorf("invalid offer kind %q", value)
}
