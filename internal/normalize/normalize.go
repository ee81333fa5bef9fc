// Package normalize turns the request shapes used by the storefront,
// the checkout extension and the admin API into one domain.NormalizedSaveRequest.
//
// Resolution order:
//
//	shop:     session (signed proxy shop) > body "shop" > query "shop" > default
//	customer: session (signed proxy customer or trusted header) > body > query
//
// A body shop that disagrees with the signed shop is rejected.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/TemirB/save-cart-for-later/internal/domain"
)

const HeaderCustomerID = "X-Shopify-Customer-Id"

// Session is identity the transport has already authenticated.
type Session struct {
	ShopDomain string
	CustomerID string
}

// SessionFromProxy extracts the identity carried by a verified proxy query.
func SessionFromProxy(q url.Values) Session {
	return Session{
		ShopDomain: strings.ToLower(strings.TrimSpace(q.Get("shop"))),
		CustomerID: strings.TrimSpace(q.Get("logged_in_customer_id")),
	}
}

// SessionFromHeader extracts the identity forwarded by an authenticated API caller.
func SessionFromHeader(h http.Header) Session {
	return Session{CustomerID: strings.TrimSpace(h.Get(HeaderCustomerID))}
}

// Raw is an inbound request before normalization.
type Raw struct {
	Query   url.Values
	Body    []byte
	Session Session
}

type Options struct {
	DefaultShop  string
	Placeholders []string
	// RequireSession disables the payload fallback for the customer id.
	RequireSession bool
}

type Normalizer struct {
	defaultShop    string
	placeholders   map[string]struct{}
	requireSession bool
}

func New(opts Options) *Normalizer {
	ph := make(map[string]struct{}, len(opts.Placeholders))
	for _, p := range opts.Placeholders {
		ph[strings.ToLower(strings.TrimSpace(p))] = struct{}{}
	}
	return &Normalizer{
		defaultShop:    strings.ToLower(strings.TrimSpace(opts.DefaultShop)),
		placeholders:   ph,
		requireSession: opts.RequireSession,
	}
}

// Save normalizes a save request, including its items.
func (n *Normalizer) Save(raw Raw) (domain.NormalizedSaveRequest, error) {
	b, err := decodeBody(raw.Body)
	if err != nil {
		return domain.NormalizedSaveRequest{}, err
	}
	req, err := n.identity(raw, b)
	if err != nil {
		return domain.NormalizedSaveRequest{}, err
	}
	items, err := b.items()
	if err != nil {
		return domain.NormalizedSaveRequest{}, err
	}
	req.Items = items
	req.Clear = len(items) == 0
	return req, nil
}

// Retrieve normalizes a lookup request: shop and customer only.
func (n *Normalizer) Retrieve(raw Raw) (domain.NormalizedSaveRequest, error) {
	b, err := decodeBody(raw.Body)
	if err != nil {
		return domain.NormalizedSaveRequest{}, err
	}
	return n.identity(raw, b)
}

func (n *Normalizer) identity(raw Raw, b *body) (domain.NormalizedSaveRequest, error) {
	shop, err := n.shop(raw, b)
	if err != nil {
		return domain.NormalizedSaveRequest{}, err
	}
	customer, err := n.customer(raw, b)
	if err != nil {
		return domain.NormalizedSaveRequest{}, err
	}
	return domain.NormalizedSaveRequest{ShopDomain: shop, CustomerID: customer}, nil
}

func (n *Normalizer) shop(raw Raw, b *body) (string, error) {
	bodyShop := strings.ToLower(strings.TrimSpace(b.Shop))

	if signed := raw.Session.ShopDomain; signed != "" {
		if bodyShop != "" && bodyShop != signed {
			return "", fmt.Errorf("%w: shop %q does not match signed shop", domain.ErrMalformedRequest, bodyShop)
		}
		return signed, validShop(signed)
	}

	for _, s := range []string{
		bodyShop,
		strings.ToLower(strings.TrimSpace(raw.Query.Get("shop"))),
		n.defaultShop,
	} {
		if s != "" {
			return s, validShop(s)
		}
	}
	return "", fmt.Errorf("%w: shop is required", domain.ErrMalformedRequest)
}

func validShop(shop string) error {
	if !storable(shop) || !strings.Contains(shop, ".") || strings.ContainsAny(shop, "/?#@ \t\r\n") {
		return fmt.Errorf("%w: invalid shop domain %q", domain.ErrMalformedRequest, shop)
	}
	return nil
}

func (n *Normalizer) customer(raw Raw, b *body) (string, error) {
	candidates := []string{raw.Session.CustomerID}
	if !n.requireSession {
		candidates = append(candidates,
			string(b.CustomerID),
			string(b.CustomerIDSnake),
			raw.Query.Get("customerId"),
			raw.Query.Get("customer_id"),
		)
	}

	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if !storable(c) {
			return "", fmt.Errorf("%w: customer id is not printable", domain.ErrMissingCustomer)
		}
		if _, ok := n.placeholders[strings.ToLower(c)]; ok {
			return "", fmt.Errorf("%w: placeholder identity %q is not accepted", domain.ErrMissingCustomer, c)
		}
		return c, nil
	}
	return "", fmt.Errorf("%w: customer id is required", domain.ErrMissingCustomer)
}

type body struct {
	Shop            string          `json:"shop"`
	CustomerID      flexID          `json:"customerId"`
	CustomerIDSnake flexID          `json:"customer_id"`
	Items           json.RawMessage `json:"items"`
	CartItems       json.RawMessage `json:"cartItems"`
	LineItems       json.RawMessage `json:"lineItems"`
	VariantIDs      json.RawMessage `json:"variantIds"`
}

func decodeBody(raw []byte) (*body, error) {
	var b body
	if len(bytes.TrimSpace(raw)) == 0 {
		return &b, nil
	}
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("%w: body is not a valid JSON object", domain.ErrMalformedRequest)
	}
	return &b, nil
}

func (b *body) items() ([]domain.Item, error) {
	for _, list := range []json.RawMessage{b.Items, b.CartItems, b.LineItems} {
		if present(list) {
			return parseItems(list)
		}
	}
	if present(b.VariantIDs) {
		return parseVariantIDs(b.VariantIDs)
	}
	return nil, fmt.Errorf("%w: items are required", domain.ErrEmptyItems)
}

func present(m json.RawMessage) bool {
	t := bytes.TrimSpace(m)
	return len(t) > 0 && !bytes.Equal(t, []byte("null"))
}
