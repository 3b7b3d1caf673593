package domain

import "time"

// AccountSnapshot is a point-in-time copy of venue account figures. It is
// never mutated after the adapter builds it.
type AccountSnapshot struct {
	Venue       string
	Currency    string
	Equity      float64
	Cash        float64
	BuyingPower float64
	Margin      float64
	FreeMargin  float64
	MarginLevel float64
	Leverage    float64
	CapturedAt  time.Time
}
