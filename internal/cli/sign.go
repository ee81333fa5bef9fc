package cli

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/TemirB/save-cart-for-later/internal/proxyauth"
)

// NewSignCommand creates the sign command. It prints a signed proxy query
// string, which is handy for calling the proxy routes with curl.
func NewSignCommand(_ *RootOptions) *cobra.Command {
	var (
		secret    string
		timestamp int64
	)

	cmd := &cobra.Command{
		Use:   "sign key=value...",
		Short: "Print a signed app proxy query string",
		Example: `  cartctl sign shop=s1.myshopify.com logged_in_customer_id=c1 path_prefix=/apps/save-cart
  curl -X POST "localhost:8081/apps/save-cart/save?$(cartctl sign shop=s1.myshopify.com logged_in_customer_id=c1)" -d '{"items":[{"variantId":"v1","quantity":1}]}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("--secret or SHOPIFY_API_SECRET is required")
			}
			params, err := parsePairs(args)
			if err != nil {
				return err
			}
			if params.Get(proxyauth.ParamTimestamp) == "" {
				ts := timestamp
				if ts == 0 {
					ts = time.Now().Unix()
				}
				params.Set(proxyauth.ParamTimestamp, strconv.FormatInt(ts, 10))
			}
			params.Set(proxyauth.ParamSignature, proxyauth.Sign(params, secret))
			_, err = fmt.Fprintln(cmd.OutOrStdout(), params.Encode())
			return err
		},
	}
	cmd.Flags().StringVar(&secret, "secret", envOr("SHOPIFY_API_SECRET", ""), "app shared secret")
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "unix timestamp to sign (default now)")

	return cmd
}

func parsePairs(args []string) (url.Values, error) {
	params := url.Values{}
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("argument %q is not key=value", a)
		}
		params.Add(k, v)
	}
	return params, nil
}
