// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

package classify

import (
	"context"
	"errors"
	"fmt"

	"github.com/lexgate-dev/lexgate/internal/provider"
)

// Upstream is the provider-agnostic shape of an upstream failure. Vendor
// SDK errors are translated into this shape by per-adapter Normalizers so
// the decision table never sees vendor types. HTTP-level adapters may
// return an Upstream directly as their error.
type Upstream struct {
	Provider provider.Name
	Status   int    // HTTP status, 0 when unknown
	Code     string // vendor error code, "" when unknown
	Message  string
}

func (u Upstream) Error() string {
	switch {
	case u.Status != 0 && u.Code != "":
		return fmt.Sprintf("%s upstream error (status %d, code %s): %s", u.Provider, u.Status, u.Code, u.Message)
	case u.Status != 0:
		return fmt.Sprintf("%s upstream error (status %d): %s", u.Provider, u.Status, u.Message)
	default:
		return fmt.Sprintf("%s upstream error: %s", u.Provider, u.Message)
	}
}

// Normalizer translates one vendor's SDK error into the normalized shape.
// It reports false when the error is not one it recognizes.
type Normalizer func(err error) (Upstream, bool)

// normalize runs the translation chain: an Upstream anywhere in the error
// tree wins, then registered vendor normalizers, then built-in handling of
// attempt timeouts, and finally a bare-message fallback for the heuristics.
func (c *Classifier) normalize(err error) Upstream {
	var u Upstream
	if errors.As(err, &u) {
		return u
	}

	for _, n := range c.normalizers {
		if nu, ok := n(err); ok {
			return nu
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Upstream{Code: "timeout", Message: err.Error()}
	}

	return Upstream{Message: err.Error()}
}
