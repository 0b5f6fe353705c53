package chain

import (
	"errors"

	"github.com/vietddude/basis/internal/core/domain"
	"github.com/vietddude/basis/internal/infra/rpc"
)

// WrapError converts an upstream failure into the typed taxonomy: throttle
// messages become RateLimitError, everything else NetworkError. Already
// typed errors pass through unchanged.
func WrapError(c domain.Chain, err error) error {
	if err == nil {
		return nil
	}
	var ce *domain.ChainError
	if errors.As(err, &ce) {
		return err
	}
	if rpc.IsThrottleMessage(err.Error()) {
		return domain.NewRateLimitError(c, err)
	}
	return domain.NewNetworkError(c, err)
}
