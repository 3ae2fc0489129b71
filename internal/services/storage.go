package services

import (
	"context"
	"fmt"

	"github.com/textforce/backend/internal/repositories"
	"github.com/textforce/backend/internal/retry"
	"go.uber.org/zap"
)

// storage runs store calls under bounded backoff. Transient failures that
// outlast the retries surface as ErrStorageUnavailable; everything else
// passes through untouched.
type storage struct {
	backoff *retry.Backoff
	log     *zap.Logger
}

func newStorage(backoff *retry.Backoff, log *zap.Logger) storage {
	if backoff == nil {
		backoff = retry.NewBackoff(retry.DefaultConfig())
	}
	return storage{backoff: backoff, log: log}
}

func (s storage) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := s.backoff.Retry(ctx, fn, repositories.IsRetryable)
	if err == nil {
		return nil
	}
	if repositories.IsRetryable(err) {
		s.log.Warn("storage retries exhausted", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%s: %w (%v)", op, ErrStorageUnavailable, err)
	}
	return err
}
