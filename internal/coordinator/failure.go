// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

package coordinator

import (
	"errors"
	"fmt"

	"github.com/lexgate-dev/lexgate/internal/classify"
	"github.com/lexgate-dev/lexgate/internal/provider"
	lexerr "github.com/lexgate-dev/lexgate/pkg/errors"
)

// FinalFailure is returned when a run spends its whole attempt budget (or
// runs out of credentials) without a success. Category reflects the last
// attempt's classification so callers can distinguish "busy, retry shortly"
// exhaustion from "service unavailable" exhaustion without re-deriving it.
type FinalFailure struct {
	Provider provider.Name
	Attempts int
	Category classify.Category

	err error
}

func newFinalFailure(prov provider.Name, attempts int, category classify.Category, lastErr error) *FinalFailure {
	return &FinalFailure{
		Provider: prov,
		Attempts: attempts,
		Category: category,
		err: lexerr.Wrap(lastErr, lexerr.CodeRetryExhausted,
			fmt.Sprintf("all %d attempts against %s failed", attempts, prov),
			lexerr.FieldProvider(string(prov)),
			lexerr.Field("category", string(category)),
			lexerr.FieldAttempt(attempts)),
	}
}

func (e *FinalFailure) Error() string { return e.err.Error() }

// Unwrap exposes the coded wrapper, which in turn wraps the last attempt's
// error.
func (e *FinalFailure) Unwrap() error { return e.err }

// Retryable reports whether the exhaustion was load-shaped (queue, rate,
// quota, server) rather than terminal (auth, unclassified pools gone bad).
func (e *FinalFailure) Retryable() bool {
	switch e.Category {
	case classify.CategoryQueueExceeded, classify.CategoryRateLimited,
		classify.CategoryQuotaExhausted, classify.CategoryServerError:
		return true
	default:
		return false
	}
}

// AsFinalFailure extracts a FinalFailure from anywhere in err's chain.
func AsFinalFailure(err error) (*FinalFailure, bool) {
	var ff *FinalFailure
	ok := errors.As(err, &ff)
	return ff, ok
}
