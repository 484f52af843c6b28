// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

// Package websearch binds pool credentials to a minimal web-search HTTP
// client. The vendor is whatever search API base_url points at; lexgate only
// models a query and a result page, authenticated with an X-API-Key header.
package websearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lexgate-dev/lexgate/internal/classify"
	"github.com/lexgate-dev/lexgate/internal/keypool"
	"github.com/lexgate-dev/lexgate/internal/provider"
	lexerr "github.com/lexgate-dev/lexgate/pkg/errors"
)

// Config holds the per-provider knobs shared by every credential.
type Config struct {
	BaseURL string // required: the search API endpoint root
}

// defaultLimit is the result count requested when the caller passes none.
const defaultLimit = 10

// Client is a web-search client bound to one credential.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// NewClient builds a client for the search API rooted at baseURL.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// Bind returns the pool bind function: one search client per credential.
func Bind(cfg Config) keypool.BindFunc {
	return func(secret string) (any, error) {
		if cfg.BaseURL == "" {
			return nil, lexerr.New(lexerr.CodeProviderNotConfigured,
				"websearch requires providers.websearch.base_url",
				lexerr.FieldProvider(string(provider.WebSearch)),
			)
		}
		return NewClient(cfg.BaseURL, secret), nil
	}
}

// Bound unwraps the search client from a pool credential.
func Bound(cred *keypool.Credential) (*Client, error) {
	client, ok := cred.Client().(*Client)
	if !ok {
		return nil, lexerr.New(lexerr.CodeKeypoolClientMismatch,
			"credential is not bound to a websearch client",
			lexerr.FieldProvider(string(provider.WebSearch)),
			lexerr.FieldCredential(cred.ID()),
		)
	}
	return client, nil
}

// Search runs one query and returns up to limit results. Failures with an
// HTTP status come back as classify.Upstream, so the classifier needs no
// vendor normalizer for this provider.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit < 1 {
		limit = defaultLimit
	}

	params := url.Values{
		"q":     {query},
		"count": {strconv.Itoa(limit)},
	}
	endpoint := c.baseURL + "/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, lexerr.Wrapf(err, lexerr.CodeProviderUpstreamFailure, "building search request")
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, lexerr.Wrapf(err, lexerr.CodeProviderUpstreamFailure, "searching")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, upstreamError(resp)
	}

	var page struct {
		Results []Result `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, lexerr.Wrapf(err, lexerr.CodeProviderResponseInvalid, "decoding search response")
	}

	return page.Results, nil
}

// upstreamError lifts a non-200 response into the classifier's shape,
// best-effort parsing the {"code","message"} error body.
func upstreamError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var detail struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &detail)

	msg := detail.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}

	return classify.Upstream{
		Provider: provider.WebSearch,
		Status:   resp.StatusCode,
		Code:     detail.Code,
		Message:  msg,
	}
}
