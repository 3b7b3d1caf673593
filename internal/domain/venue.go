package domain

// VenueType groups venues by asset class; watchlists are keyed by it.
type VenueType string

const (
	VenueTypeEquities VenueType = "equities"
	VenueTypeForex    VenueType = "forex"
	VenueTypeCrypto   VenueType = "crypto"
)

// VenueInfo is a read-only view of a registered venue.
type VenueInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      VenueType `json:"type"`
	Enabled   bool      `json:"enabled"`
	Connected bool      `json:"connected"`
	Active    bool      `json:"active"`
	Live      bool      `json:"live"`
}
