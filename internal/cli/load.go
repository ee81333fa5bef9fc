package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TemirB/save-cart-for-later/internal/domain"
	"github.com/TemirB/save-cart-for-later/internal/proxyauth"
)

// Loader fires signed save requests at a running service.
type Loader struct {
	client    *http.Client
	target    *url.URL
	secret    string
	shop      string
	customers int
	logger    *zap.Logger

	sent   atomic.Int64
	ok     atomic.Int64
	failed atomic.Int64
}

type LoadStats struct {
	Sent     int64         `json:"sent"`
	OK       int64         `json:"ok"`
	Failed   int64         `json:"failed"`
	Duration time.Duration `json:"duration"`
}

func NewLoader(target, secret, shop string, customers int, logger *zap.Logger) (*Loader, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse target: %w", err)
	}
	if customers < 1 {
		customers = 1
	}
	return &Loader{
		client:    &http.Client{Timeout: 10 * time.Second},
		target:    u,
		secret:    secret,
		shop:      shop,
		customers: customers,
		logger:    logger,
	}, nil
}

// Run sends rate requests per second until duration passes or ctx is done,
// then waits for in-flight requests.
func (l *Loader) Run(ctx context.Context, rate int, duration time.Duration) LoadStats {
	if rate < 1 {
		rate = 1
	}
	start := time.Now()
	l.logger.Info("Starting load", zap.Int("rate", rate), zap.Duration("duration", duration))

	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()
	timer := time.NewTimer(duration)
	defer timer.Stop()

	var wg sync.WaitGroup
loop:
	for {
		select {
		case <-ticker.C:
			wg.Add(1)
			go func() {
				defer wg.Done()
				l.sent.Add(1)
				if err := l.send(ctx); err != nil {
					l.failed.Add(1)
					l.logger.Debug("Save request failed", zap.Error(err))
					return
				}
				l.ok.Add(1)
			}()
		case <-timer.C:
			break loop
		case <-ctx.Done():
			break loop
		}
	}
	wg.Wait()

	st := LoadStats{
		Sent:     l.sent.Load(),
		OK:       l.ok.Load(),
		Failed:   l.failed.Load(),
		Duration: time.Since(start),
	}
	l.logger.Info("Load finished",
		zap.Int64("sent", st.Sent),
		zap.Int64("ok", st.OK),
		zap.Int64("failed", st.Failed),
	)
	return st
}

func (l *Loader) send(ctx context.Context) error {
	params := url.Values{}
	params.Set(proxyauth.ParamShop, l.shop)
	params.Set(proxyauth.ParamCustomer, "load-"+strconv.Itoa(rand.Intn(l.customers)))
	params.Set(proxyauth.ParamTimestamp, strconv.FormatInt(time.Now().Unix(), 10))
	params.Set(proxyauth.ParamSignature, proxyauth.Sign(params, l.secret))

	u := *l.target
	u.RawQuery = params.Encode()

	body, err := json.Marshal(map[string][]domain.Item{"items": fakeItems()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func fakeItems() []domain.Item {
	n := 1 + rand.Intn(5)
	items := make([]domain.Item, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, domain.Item{
			VariantID: strconv.Itoa(40000000000 + rand.Intn(1000000)),
			Quantity:  1 + rand.Intn(3),
		})
	}
	return items
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		target    string
		secret    string
		shop      string
		customers int
		rate      int
		duration  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Send signed save requests at a fixed rate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("--secret or SHOPIFY_API_SECRET is required")
			}
			logger, err := rootOpts.logger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			l, err := NewLoader(target, secret, shop, customers, logger)
			if err != nil {
				return err
			}
			st := l.Run(cmd.Context(), rate, duration)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		},
	}
	cmd.Flags().StringVar(&target, "url", "http://localhost:8081/apps/save-cart/save", "save endpoint")
	cmd.Flags().StringVar(&secret, "secret", envOr("SHOPIFY_API_SECRET", ""), "app shared secret")
	cmd.Flags().StringVar(&shop, "shop", envOr("DEFAULT_SHOP", "load-test.myshopify.com"), "shop domain to sign for")
	cmd.Flags().IntVar(&customers, "customers", 100, "number of distinct customers")
	cmd.Flags().IntVar(&rate, "rate", 10, "requests per second")
	cmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "how long to run")

	return cmd
}
