// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

package google_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/genai"

	"github.com/lexgate-dev/lexgate/internal/classify"
	"github.com/lexgate-dev/lexgate/internal/keypool"
	"github.com/lexgate-dev/lexgate/internal/provider"
	"github.com/lexgate-dev/lexgate/internal/provider/google"
	lexerr "github.com/lexgate-dev/lexgate/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func boundClient(t *testing.T, baseURL string) *genai.Client {
	t.Helper()

	pool, err := keypool.New(provider.Google, []string{"sk-goog-test"},
		google.Bind(google.Config{BaseURL: baseURL}))
	require.NoError(t, err)

	cred, _, err := pool.Next()
	require.NoError(t, err)

	client, err := google.Client(cred)
	require.NoError(t, err)
	return client
}

func callGenerate(t *testing.T, client *genai.Client) error {
	t.Helper()
	_, err := client.Models.GenerateContent(context.Background(),
		"gemini-2.0-flash", genai.Text("ping"), nil)
	return err
}

func TestClientMismatch(t *testing.T) {
	pool, err := keypool.New(provider.Google, []string{"sk-goog-test"},
		func(secret string) (any, error) { return secret, nil })
	require.NoError(t, err)

	cred, _, err := pool.Next()
	require.NoError(t, err)

	_, err = google.Client(cred)
	require.Error(t, err)
	assert.True(t, lexerr.HasCode(err, lexerr.CodeKeypoolClientMismatch))
}

func TestNormalizeQuotaExhausted(t *testing.T) {
	// Gemini reports a drained quota as 429 RESOURCE_EXHAUSTED; the quota
	// wording in the message separates it from plain throttling.
	srv := stubServer(t, http.StatusTooManyRequests,
		`{"error":{"code":429,"message":"You exceeded your current quota, please check your plan and billing details.","status":"RESOURCE_EXHAUSTED"}}`)

	err := callGenerate(t, boundClient(t, srv.URL))
	require.Error(t, err)

	u, ok := google.Normalize(err)
	require.True(t, ok)
	assert.Equal(t, provider.Google, u.Provider)
	assert.Equal(t, http.StatusTooManyRequests, u.Status)
	assert.Equal(t, "RESOURCE_EXHAUSTED", u.Code)

	cls := classify.New(classify.DefaultPolicy(), google.Normalize).Classify(err)
	assert.Equal(t, classify.CategoryQuotaExhausted, cls.Category)
}

func TestNormalizeRateLimit(t *testing.T) {
	srv := stubServer(t, http.StatusTooManyRequests,
		`{"error":{"code":429,"message":"Resource has been exhausted (e.g. check rate limits).","status":"RESOURCE_EXHAUSTED"}}`)

	err := callGenerate(t, boundClient(t, srv.URL))
	require.Error(t, err)

	cls := classify.New(classify.DefaultPolicy(), google.Normalize).Classify(err)
	assert.Equal(t, classify.CategoryRateLimited, cls.Category)
}

func TestNormalizeAuthFailure(t *testing.T) {
	srv := stubServer(t, http.StatusBadRequest,
		`{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`)

	err := callGenerate(t, boundClient(t, srv.URL))
	require.Error(t, err)

	// Gemini rejects bad keys with 400 INVALID_ARGUMENT, so the verdict
	// rides on the message heuristics rather than the status code.
	cls := classify.New(classify.DefaultPolicy(), google.Normalize).Classify(err)
	assert.Equal(t, classify.CategoryAuthError, cls.Category)
	assert.True(t, cls.Permanent)
}

func TestNormalizeServerError(t *testing.T) {
	srv := stubServer(t, http.StatusServiceUnavailable,
		`{"error":{"code":503,"message":"The model is overloaded. Please try again later.","status":"UNAVAILABLE"}}`)

	err := callGenerate(t, boundClient(t, srv.URL))
	require.Error(t, err)

	u, ok := google.Normalize(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, u.Status)

	cls := classify.New(classify.DefaultPolicy(), google.Normalize).Classify(err)
	assert.Equal(t, classify.CategoryServerError, cls.Category)
}

func TestNormalizeIgnoresForeignErrors(t *testing.T) {
	_, ok := google.Normalize(errors.New("dial tcp: connection refused"))
	assert.False(t, ok)
}
