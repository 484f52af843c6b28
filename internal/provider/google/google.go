// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

// Package google binds pool credentials to Gemini API clients and translates
// the SDK's errors for the classifier.
package google

import (
	"context"
	"errors"

	"google.golang.org/genai"

	"github.com/lexgate-dev/lexgate/internal/classify"
	"github.com/lexgate-dev/lexgate/internal/keypool"
	"github.com/lexgate-dev/lexgate/internal/provider"
	lexerr "github.com/lexgate-dev/lexgate/pkg/errors"
)

// Config holds the per-provider knobs shared by every credential.
type Config struct {
	BaseURL string // optional, useful for testing against a mock server
}

// Bind returns the pool bind function: one Gemini client per credential.
// Construction happens once at startup, so the background context here only
// covers the SDK's config plumbing — no request leaves the process.
func Bind(cfg Config) keypool.BindFunc {
	return func(secret string) (any, error) {
		cc := &genai.ClientConfig{
			APIKey:  secret,
			Backend: genai.BackendGeminiAPI,
		}
		if cfg.BaseURL != "" {
			cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
		}

		client, err := genai.NewClient(context.Background(), cc)
		if err != nil {
			return nil, lexerr.Wrapf(err, lexerr.CodeProviderNotConfigured, "creating gemini client")
		}
		return client, nil
	}
}

// Client unwraps the bound SDK client from a pool credential.
func Client(cred *keypool.Credential) (*genai.Client, error) {
	client, ok := cred.Client().(*genai.Client)
	if !ok {
		return nil, lexerr.New(lexerr.CodeKeypoolClientMismatch,
			"credential is not bound to a gemini client",
			lexerr.FieldProvider(string(provider.Google)),
			lexerr.FieldCredential(cred.ID()),
		)
	}
	return client, nil
}

// Normalize translates Gemini API errors into the classifier's shape. The
// API reports quota exhaustion as 429 RESOURCE_EXHAUSTED with quota wording
// in the message, which the decision table's 429 branch picks apart.
func Normalize(err error) (classify.Upstream, bool) {
	var apierr genai.APIError
	if !errors.As(err, &apierr) {
		return classify.Upstream{}, false
	}

	return classify.Upstream{
		Provider: provider.Google,
		Status:   apierr.Code,
		Code:     apierr.Status,
		Message:  apierr.Message,
	}, true
}
