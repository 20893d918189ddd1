package domain

import "time"

// Option is one selectable value of a product feature.
type Option struct {
	Value string `json:"value"`
	Text  string `json:"text"`
}

// FeatureGroup is a named configuration axis, e.g. Color, with its options.
type FeatureGroup struct {
	Feature string   `json:"feature"`
	Options []Option `json:"options"`
}

// Variant is a purchasable product configuration. Candidates produced by the
// generator have a zero ID until they are saved.
type Variant struct {
	ID        int64     `json:"id,omitempty"`
	ProductID int64     `json:"product_id"`
	Hash      string    `json:"hash"`
	Title     string    `json:"title"`
	Subtract  bool      `json:"subtract"`
	State     int       `json:"state"`
	Options   []string  `json:"options"`
	Primary   bool      `json:"primary"`
	CreatedAt time.Time `json:"created_at"`
}
