package models

import "time"

// fallbackPrices is the built-in national price list used when neither the
// pricing endpoint nor a previous batch is available.
var fallbackPrices = []struct {
	id, name, grade string
	price           float64
}{
	{"copper-1", "Copper", "#1 Bare Bright Copper", 3.50},
	{"copper-2", "Copper", "#2 Copper", 3.20},
	{"aluminum-extrusion", "Aluminum", "Aluminum Extrusion", 0.65},
	{"aluminum-cans", "Aluminum", "Aluminum Cans (UBC)", 0.45},
	{"brass-yellow", "Brass", "Yellow Brass", 2.10},
	{"brass-red", "Brass", "Red Brass", 2.50},
	{"steel-heavy", "Steel", "Heavy Melting Steel (HMS)", 0.12},
	{"steel-light", "Steel", "Light Iron", 0.08},
	{"stainless-304", "Stainless Steel", "304 Stainless", 0.55},
	{"stainless-316", "Stainless Steel", "316 Stainless", 0.75},
}

// FallbackPrices returns a fresh copy of the default batch stamped with now
func FallbackPrices(now time.Time) []PriceRecord {
	out := make([]PriceRecord, 0, len(fallbackPrices))
	for _, p := range fallbackPrices {
		out = append(out, PriceRecord{
			MetalID:       p.id,
			MetalName:     p.name,
			Grade:         p.grade,
			NationalPrice: p.price,
			Timestamp:     now,
			Source:        SourceFallback,
		})
	}
	return out
}
