// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jllopis/trendsurf/pkg/errors"
)

// WithTimeout runs fn under a derived context that expires after d.
// If fn fails because that deadline passed, the error is reported as
// errors.CodeTimeout. A zero duration runs fn with ctx unchanged.
func WithTimeout(ctx context.Context, d time.Duration, operation string, fn func(ctx context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}

	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	err := fn(tctx)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && stderrors.Is(tctx.Err(), context.DeadlineExceeded) && !errors.HasCode(err, errors.CodeTimeout) {
		return errors.New(errors.CodeTimeout, operation+" exceeded timeout", err).
			WithContext("timeout", d.String()).
			WithRecoverable(true)
	}
	return err
}
