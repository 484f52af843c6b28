// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

// Package anthropic binds pool credentials to Anthropic SDK clients and
// translates the SDK's errors for the classifier.
package anthropic

import (
	"errors"
	"regexp"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/lexgate-dev/lexgate/internal/classify"
	"github.com/lexgate-dev/lexgate/internal/keypool"
	"github.com/lexgate-dev/lexgate/internal/provider"
	lexerr "github.com/lexgate-dev/lexgate/pkg/errors"
)

// Config holds the per-provider knobs shared by every credential.
type Config struct {
	BaseURL string // optional, useful for testing against a mock server
}

// Bind returns the pool bind function: one SDK client per credential. The
// SDK's internal retries are disabled — the coordinator owns retry policy,
// and a silently retrying client would hide rate-limit signals from it.
func Bind(cfg Config) keypool.BindFunc {
	return func(secret string) (any, error) {
		opts := []option.RequestOption{
			option.WithAPIKey(secret),
			option.WithMaxRetries(0),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		}
		return anthropicsdk.NewClient(opts...), nil
	}
}

// Client unwraps the bound SDK client from a pool credential.
func Client(cred *keypool.Credential) (anthropicsdk.Client, error) {
	client, ok := cred.Client().(anthropicsdk.Client)
	if !ok {
		return anthropicsdk.Client{}, lexerr.New(lexerr.CodeKeypoolClientMismatch,
			"credential is not bound to an anthropic client",
			lexerr.FieldProvider(string(provider.Anthropic)),
			lexerr.FieldCredential(cred.ID()),
		)
	}
	return client, nil
}

// Normalize translates Anthropic SDK errors into the classifier's shape.
func Normalize(err error) (classify.Upstream, bool) {
	var apierr *anthropicsdk.Error
	if !errors.As(err, &apierr) {
		return classify.Upstream{}, false
	}

	msg := apierr.Error()
	return classify.Upstream{
		Provider: provider.Anthropic,
		Status:   apierr.StatusCode,
		Code:     errorType(msg),
		Message:  msg,
	}, true
}

// errorTypePattern matches the "type" fields of the JSON error body the SDK
// folds into its message, e.g. {"type":"error","error":{"type":"overloaded_error",...}}.
var errorTypePattern = regexp.MustCompile(`"type"\s*:\s*"([a-z_]+)"`)

// errorType digs the vendor error type (overloaded_error, rate_limit_error,
// authentication_error, ...) out of msg, skipping the envelope's own
// type "error".
func errorType(msg string) string {
	for _, m := range errorTypePattern.FindAllStringSubmatch(msg, -1) {
		if m[1] != "error" {
			return m[1]
		}
	}
	return ""
}
