// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

package main

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	lexerr "github.com/lexgate-dev/lexgate/pkg/errors"
)

// defaultHTTPClient is the package-level HTTP client used by ops commands.
// Overridden in tests via httptest.
var defaultHTTPClient = &http.Client{
	Timeout: 5 * time.Second,
}

// opsClient provides HTTP access to a running lexgate ops API.
type opsClient struct {
	baseURL string
	http    *http.Client
}

// newOpsClient creates a client targeting the given host:port address.
func newOpsClient(addr string) *opsClient {
	return &opsClient{
		baseURL: "http://" + addr,
		http:    defaultHTTPClient,
	}
}

// getJSON performs a GET request and decodes the JSON response into dest.
// A refused connection reports CodeCLIServerNotRunning so callers can print
// a friendly hint instead of a dial trace.
func (c *opsClient) getJSON(path string, dest any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		if isDialError(err) {
			return lexerr.Wrapf(err, lexerr.CodeCLIServerNotRunning, "gateway is not running")
		}
		return lexerr.Wrapf(err, lexerr.CodeCLIRequestFailure, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return lexerr.Errorf(lexerr.CodeCLIRequestFailure,
			"gateway returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return lexerr.Wrapf(err, lexerr.CodeCLIResponseInvalid, "invalid response")
	}
	return nil
}

// isDialError returns true if err is a net dial error (connection refused, etc.).
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
