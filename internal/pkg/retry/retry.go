package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/TemirB/save-cart-for-later/internal/config"
)

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying; Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn up to policy.Attempts times with jittered exponential backoff
// capped at policy.Max. At least one attempt is always made.
func Do(ctx context.Context, policy config.Retry, fn func(ctx context.Context) error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	d := policy.Base
	var err error

	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if i == attempts-1 {
			break
		}

		delay := d
		if policy.JitterFactor > 0 {
			jitter := 1 + policy.JitterFactor*(2*r.Float64()-1)
			delay = time.Duration(float64(delay) * jitter)
		}
		if policy.Max > 0 && delay > policy.Max {
			delay = policy.Max
		}

		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}

		d *= 2
		if policy.Max > 0 && d > policy.Max {
			d = policy.Max
		}
	}
	return err
}
