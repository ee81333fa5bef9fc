// Package proxyauth verifies requests forwarded by the storefront app proxy.
//
// The storefront signs every proxied request with the app's shared secret:
// all query parameters except "signature" are sorted by key, rendered as
// key=value with multiple values joined by ",", concatenated without a
// separator and hashed with HMAC-SHA256. The hex digest travels in the
// "signature" parameter.
package proxyauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/TemirB/save-cart-for-later/internal/domain"
)

const (
	ParamSignature = "signature"
	ParamShop      = "shop"
	ParamTimestamp = "timestamp"
	ParamCustomer  = "logged_in_customer_id"
)

type Verifier struct {
	secret  []byte
	maxSkew time.Duration
	now     func() time.Time
}

// New returns a Verifier. A zero maxSkew disables the timestamp window.
func New(secret string, maxSkew time.Duration) *Verifier {
	return &Verifier{
		secret:  []byte(secret),
		maxSkew: maxSkew,
		now:     time.Now,
	}
}

// Verify returns nil when params carry a valid signature for the configured secret.
func (v *Verifier) Verify(params url.Values) error {
	if len(v.secret) == 0 {
		return fmt.Errorf("%w: proxy secret not configured", domain.ErrMissingCredentials)
	}
	provided := strings.TrimSpace(params.Get(ParamSignature))
	if provided == "" {
		return fmt.Errorf("%w: signature is required", domain.ErrMissingCredentials)
	}
	if strings.TrimSpace(params.Get(ParamShop)) == "" {
		return fmt.Errorf("%w: shop is required", domain.ErrMissingCredentials)
	}

	expected := sign(params, v.secret)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(provided))) {
		return domain.ErrInvalidSignature
	}

	if v.maxSkew > 0 {
		if err := v.checkTimestamp(params.Get(ParamTimestamp)); err != nil {
			return err
		}
	}
	return nil
}

func (v *Verifier) checkTimestamp(raw string) error {
	if raw == "" {
		return nil
	}
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", domain.ErrInvalidSignature)
	}
	skew := v.now().Sub(time.Unix(sec, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.maxSkew {
		return fmt.Errorf("%w: timestamp outside allowed window", domain.ErrInvalidSignature)
	}
	return nil
}

// Sign computes the signature for params, ignoring any "signature" already present.
func Sign(params url.Values, secret string) string {
	return sign(params, []byte(secret))
}

func sign(params url.Values, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(message(params)))
	return hex.EncodeToString(mac.Sum(nil))
}

func message(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == ParamSignature {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.Join(params[k], ","))
	}
	return b.String()
}
