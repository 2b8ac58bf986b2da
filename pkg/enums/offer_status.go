package enums

import "fmt"

// OfferStatus tracks the listing lifecycle of an offer.
type OfferStatus string

const (
	OfferStatusActive    OfferStatus = "active"
	OfferStatusInactive  OfferStatus = "inactive"
	OfferStatusSold      OfferStatus = "sold"
	OfferStatusModerated OfferStatus = "moderated"
	OfferStatusArchived  OfferStatus = "archived"
	OfferStatusDeleted   OfferStatus = "deleted"
)

var validOfferStatuses = []OfferStatus{
	OfferStatusActive,
	OfferStatusInactive,
	OfferStatusSold,
	OfferStatusModerated,
	OfferStatusArchived,
	OfferStatusDeleted,
}

// String implements fmt.Stringer.
func (s OfferStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OfferStatus.
func (s OfferStatus) IsValid() bool {
	for _, candidate := range validOfferStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further seller transitions are defined.
func (s OfferStatus) IsTerminal() bool {
	switch s {
	case OfferStatusSold, OfferStatusArchived, OfferStatusDeleted:
		return true
	default:
		return false
	}
}

// ParseOfferStatus converts raw input into an OfferStatus.
func ParseOfferStatus(value string) (OfferStatus, error) {
	for _, candidate := range validOfferStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid offer status %q", value)
}
