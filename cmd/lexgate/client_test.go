// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	lexerr "github.com/lexgate-dev/lexgate/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpsClientFor(t *testing.T, handler http.HandlerFunc) *opsClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := newOpsClient(srv.URL[len("http://"):])
	c.http = srv.Client()
	return c
}

func TestGetJSON_DecodesBody(t *testing.T) {
	c := newOpsClientFor(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/pools", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"count": 3}`))
	})

	var body struct {
		Count int `json:"count"`
	}
	err := c.getJSON("/v1/pools", &body)
	require.NoError(t, err)
	assert.Equal(t, 3, body.Count)
}

func TestGetJSON_ServerError(t *testing.T) {
	c := newOpsClientFor(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "something broke", http.StatusInternalServerError)
	})

	var body struct{}
	err := c.getJSON("/health", &body)
	require.Error(t, err)
	assert.True(t, lexerr.HasCode(err, lexerr.CodeCLIRequestFailure))
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "something broke")
}

func TestGetJSON_InvalidJSON(t *testing.T) {
	c := newOpsClientFor(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})

	var body struct{}
	err := c.getJSON("/health", &body)
	require.Error(t, err)
	assert.True(t, lexerr.HasCode(err, lexerr.CodeCLIResponseInvalid))
}

func TestGetJSON_ConnectionRefused(t *testing.T) {
	c := newOpsClient("127.0.0.1:1")

	var body struct{}
	err := c.getJSON("/health", &body)
	require.Error(t, err)
	assert.True(t, lexerr.HasCode(err, lexerr.CodeCLIServerNotRunning))
}
