package venue

import (
	"fmt"
	"net/http"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// CheckStatus classifies an HTTP response from a venue API. Client errors
// are marked Permanent so Retry surfaces them at once; rate limiting and
// server errors stay retryable. A nil return means success.
func CheckStatus(op string, code int, body string) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return Permanent(fmt.Errorf("%s: %w: status %d: %s", op, domain.ErrConnection, code, body))
	case code == http.StatusNotFound:
		return Permanent(fmt.Errorf("%s: %w: %s", op, domain.ErrNotFound, body))
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return Permanent(fmt.Errorf("%s: %w: status %d: %s", op, domain.ErrOrderRejected, code, body))
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", op, domain.ErrRateLimited)
	case code >= 500:
		return fmt.Errorf("%s: %w: status %d", op, domain.ErrConnection, code)
	}
	return Permanent(fmt.Errorf("%s: unexpected status %d: %s", op, code, body))
}
