package llm

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultRetryAfter is the wait suggested to callers when the provider does
// not say how long its quota window is.
const DefaultRetryAfter = 60 * time.Second

var (
	ErrQuotaExceeded     = errors.New("llm quota exceeded")
	ErrProviderError     = errors.New("llm provider error")
	ErrMalformedResponse = errors.New("llm response malformed")
)

// QuotaError reports a rate limit or exhausted quota. It matches
// ErrQuotaExceeded with errors.Is.
type QuotaError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%v (retry after %s): %v", ErrQuotaExceeded, e.RetryAfter, e.Err)
}

func (e *QuotaError) Is(target error) bool { return target == ErrQuotaExceeded }

func (e *QuotaError) Unwrap() error { return e.Err }

// classify maps a transport or API error into the package's error kinds.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests || mentionsQuota(apiErr.Message) {
			return &QuotaError{RetryAfter: DefaultRetryAfter, Err: err}
		}
		return fmt.Errorf("%w: %v", ErrProviderError, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return &QuotaError{RetryAfter: DefaultRetryAfter, Err: err}
	}

	if mentionsQuota(err.Error()) {
		return &QuotaError{RetryAfter: DefaultRetryAfter, Err: err}
	}
	return fmt.Errorf("%w: %v", ErrProviderError, err)
}

// quotaWords matches provider wording for rate limits. Bare status numbers are
// left to the typed HTTP status checks above since they also occur in ports,
// byte counts and ids.
var quotaWords = regexp.MustCompile(`(?i)\b(quota|rate[ _-]?limit(ed)?|resource[ _]exhausted|too many requests)\b`)

func mentionsQuota(msg string) bool {
	return quotaWords.MatchString(msg)
}
