package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/TemirB/save-cart-for-later/internal/domain"
)

// flexID accepts both "123" and 123; storefront ids arrive either way.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	if _, err := strconv.ParseInt(string(data), 10, 64); err != nil {
		return fmt.Errorf("id must be a string or an integer")
	}
	*f = flexID(data)
	return nil
}

type rawItem struct {
	VariantID      flexID            `json:"variantId"`
	VariantIDSnake flexID            `json:"variant_id"`
	ID             flexID            `json:"id"`
	Quantity       json.RawMessage   `json:"quantity"`
	Properties     map[string]string `json:"properties"`
}

func (r rawItem) variantID() string {
	for _, v := range []flexID{r.VariantID, r.VariantIDSnake, r.ID} {
		if s := strings.TrimSpace(string(v)); s != "" {
			return s
		}
	}
	return ""
}

func parseItems(list json.RawMessage) ([]domain.Item, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(list, &elems); err != nil {
		return nil, fmt.Errorf("%w: items must be an array", domain.ErrInvalidItems)
	}

	items := make([]domain.Item, 0, len(elems))
	for i, e := range elems {
		var ri rawItem
		if err := json.Unmarshal(e, &ri); err != nil {
			return nil, fmt.Errorf("%w: item %d is malformed", domain.ErrInvalidItems, i)
		}
		id := ri.variantID()
		if id == "" {
			return nil, fmt.Errorf("%w: item %d has no variantId", domain.ErrInvalidItems, i)
		}
		if !storable(id) {
			return nil, fmt.Errorf("%w: item %d has an unprintable variantId", domain.ErrInvalidItems, i)
		}
		qty, err := parseQuantity(ri.Quantity)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", domain.ErrInvalidItems, i, err)
		}
		items = append(items, domain.Item{
			VariantID:  id,
			Quantity:   qty,
			Properties: nonEmpty(ri.Properties),
		})
		for k, v := range ri.Properties {
			if !storable(k) || !storable(v) {
				return nil, fmt.Errorf("%w: item %d has an unprintable property", domain.ErrInvalidItems, i)
			}
		}
	}
	return items, nil
}

func parseQuantity(raw json.RawMessage) (int, error) {
	if !present(raw) {
		return 0, fmt.Errorf("quantity is required")
	}
	q, err := strconv.ParseInt(string(bytes.TrimSpace(raw)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("quantity must be an integer")
	}
	if q < 1 {
		return 0, fmt.Errorf("quantity must be at least 1")
	}
	return int(q), nil
}

// parseVariantIDs handles the bare id list sent by older extension builds; each id counts once.
func parseVariantIDs(list json.RawMessage) ([]domain.Item, error) {
	var ids []flexID
	if err := json.Unmarshal(list, &ids); err != nil {
		return nil, fmt.Errorf("%w: variantIds must be an array of ids", domain.ErrInvalidItems)
	}
	items := make([]domain.Item, 0, len(ids))
	for i, id := range ids {
		s := strings.TrimSpace(string(id))
		if s == "" {
			return nil, fmt.Errorf("%w: variant id %d is empty", domain.ErrInvalidItems, i)
		}
		if !storable(s) {
			return nil, fmt.Errorf("%w: variant id %d is unprintable", domain.ErrInvalidItems, i)
		}
		items = append(items, domain.Item{VariantID: s, Quantity: 1})
	}
	return items, nil
}

// storable reports whether s can be kept in a Postgres text or jsonb column:
// valid UTF-8 without NUL.
func storable(s string) bool {
	return utf8.ValidString(s) && !strings.ContainsRune(s, 0)
}

func nonEmpty(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	return m
}
