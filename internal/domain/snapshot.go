package domain

import "time"

// Item is a single selected line item.
type Item struct {
	VariantID  string            `json:"variantId"`
	Quantity   int               `json:"quantity"`
	Properties map[string]string `json:"properties,omitempty"`
}

// SavedCartSnapshot is the latest saved selection of a shopper in a shop.
// There is at most one per (ShopDomain, CustomerID).
type SavedCartSnapshot struct {
	ID         string    `json:"id"`
	ShopDomain string    `json:"shopDomain"`
	CustomerID string    `json:"customerId"`
	Items      []Item    `json:"items"`
	Version    int64     `json:"version"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Key identifies a snapshot.
type Key struct {
	ShopDomain string
	CustomerID string
}

func (s *SavedCartSnapshot) Key() Key {
	return Key{ShopDomain: s.ShopDomain, CustomerID: s.CustomerID}
}

func (k Key) String() string { return k.ShopDomain + "|" + k.CustomerID }

// NormalizedSaveRequest is what every save/retrieve route reduces its input to.
// Clear is set when the caller explicitly sent an empty item list.
type NormalizedSaveRequest struct {
	ShopDomain string
	CustomerID string
	Items      []Item
	Clear      bool
}

func (r NormalizedSaveRequest) Key() Key {
	return Key{ShopDomain: r.ShopDomain, CustomerID: r.CustomerID}
}
