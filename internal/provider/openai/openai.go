// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

// Package openai binds pool credentials to OpenAI SDK clients and translates
// the SDK's errors for the classifier.
package openai

import (
	"errors"

	"github.com/lexgate-dev/lexgate/internal/classify"
	"github.com/lexgate-dev/lexgate/internal/keypool"
	"github.com/lexgate-dev/lexgate/internal/provider"
	lexerr "github.com/lexgate-dev/lexgate/pkg/errors"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Config holds the per-provider knobs shared by every credential.
type Config struct {
	BaseURL string // optional, useful for testing against a mock server
}

// Bind returns the pool bind function: one SDK client per credential, with
// SDK-internal retries disabled so the coordinator owns retry policy.
func Bind(cfg Config) keypool.BindFunc {
	return func(secret string) (any, error) {
		opts := []option.RequestOption{
			option.WithAPIKey(secret),
			option.WithMaxRetries(0),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		}
		return openaisdk.NewClient(opts...), nil
	}
}

// Client unwraps the bound SDK client from a pool credential.
func Client(cred *keypool.Credential) (openaisdk.Client, error) {
	client, ok := cred.Client().(openaisdk.Client)
	if !ok {
		return openaisdk.Client{}, lexerr.New(lexerr.CodeKeypoolClientMismatch,
			"credential is not bound to an openai client",
			lexerr.FieldProvider(string(provider.OpenAI)),
			lexerr.FieldCredential(cred.ID()),
		)
	}
	return client, nil
}

// Normalize translates OpenAI SDK errors into the classifier's shape. The
// SDK parses the error body, so the vendor code (insufficient_quota,
// rate_limit_exceeded, ...) comes through typed — the signal that separates
// a drained key from a throttled one behind OpenAI's shared 429.
func Normalize(err error) (classify.Upstream, bool) {
	var apierr *openaisdk.Error
	if !errors.As(err, &apierr) {
		return classify.Upstream{}, false
	}

	code := apierr.Code
	if code == "" {
		code = apierr.Type
	}
	msg := apierr.Message
	if msg == "" {
		msg = apierr.Error()
	}

	return classify.Upstream{
		Provider: provider.OpenAI,
		Status:   apierr.StatusCode,
		Code:     code,
		Message:  msg,
	}, true
}
