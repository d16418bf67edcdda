package task

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/flanksource/commons/logger"

	"github.com/webcomponents/catalog/pkg/fetch"
)

// QueueHeader marks a request as coming from the dispatcher. Its presence is
// sufficient admission for mutation endpoints.
const QueueHeader = "X-Catalog-Queue"

// Options controls how the guard treats a handler.
type Options struct {
	// Mutation endpoints require queue provenance or a one-use token.
	Mutation bool
}

// HandlerFunc is a pipeline handler. The returned error is classified by the
// guard; handlers are expected to have committed their state even when they
// return a controlled abort.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Guard wraps handlers with admission control and abort classification.
type Guard struct {
	Tokens *TokenStore
}

// NewGuard creates a guard with a fresh token store.
func NewGuard() *Guard {
	return &Guard{Tokens: NewTokenStore()}
}

// admit checks queue provenance or consumes a one-use token.
func (g *Guard) admit(r *http.Request) bool {
	if r.Header.Get(QueueHeader) != "" {
		return true
	}
	return g.Tokens.Consume(r.URL.Query().Get("token"))
}

// Protect wraps a handler. Inadmissible mutation requests get a 403 along
// with a freshly minted token so a manual caller can repeat the request.
// Handler errors map to statuses: permanent aborts answer 200 so the queue
// drops the task, retries answer 500, quota exhaustion answers 502.
func (g *Guard) Protect(opts Options, next HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if opts.Mutation && !g.admit(r) {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprintf(w, "invalid token: use %s instead", g.Tokens.Mint())
			return
		}

		err := next(w, r)
		if err == nil {
			return
		}

		var permanent *PermanentError
		var retry *RetryError
		var quota *fetch.QuotaError
		switch {
		case errors.As(err, &permanent):
			logger.Warnf("%s: %s", r.URL.Path, permanent.Message)
			w.WriteHeader(http.StatusOK)
		case errors.As(err, &retry):
			logger.Errorf("%s: %s", r.URL.Path, retry.Message)
			w.WriteHeader(http.StatusInternalServerError)
		case errors.As(err, &quota):
			logger.Errorf("%s: %v", r.URL.Path, quota)
			w.WriteHeader(http.StatusBadGateway)
		default:
			logger.Errorf("%s: %v", r.URL.Path, err)
			w.WriteHeader(http.StatusInternalServerError)
		}
	}
}
