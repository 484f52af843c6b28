// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/lexgate-dev/lexgate/internal/audit"
	"github.com/lexgate-dev/lexgate/internal/keypool"
	"github.com/lexgate-dev/lexgate/internal/provider"
	"github.com/lexgate-dev/lexgate/internal/ratelimit"
)

func (s *Server) registerRoutes() {
	// Pool endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "list-pools",
		Method:      http.MethodGet,
		Path:        "/v1/pools",
		Summary:     "List credential pools",
		Tags:        []string{"pools"},
	}, s.handleListPools)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-pool",
		Method:      http.MethodGet,
		Path:        "/v1/pools/{provider}",
		Summary:     "Get one pool with per-credential state",
		Tags:        []string{"pools"},
	}, s.handleGetPool)

	// Limiter endpoint
	huma.Register(s.api, huma.Operation{
		OperationID: "get-limits",
		Method:      http.MethodGet,
		Path:        "/v1/limits",
		Summary:     "Rate limit rules and live windows",
		Tags:        []string{"limits"},
	}, s.handleGetLimits)

	// Audit endpoint
	huma.Register(s.api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/v1/events",
		Summary:     "Recent audit events, newest first",
		Tags:        []string{"audit"},
	}, s.handleListEvents)
}

// --- Request/Response types for huma ---

type listPoolsOutput struct {
	Body struct {
		Pools []keypool.PoolStatus `json:"pools"`
	}
}

type getPoolInput struct {
	Provider string `path:"provider" doc:"Provider name (anthropic, openai, google, websearch)"`
}
type getPoolOutput struct {
	Body keypool.PoolStatus
}

type getLimitsOutput struct {
	Body struct {
		Rules   map[string]ratelimit.Rule `json:"rules"`
		Windows []ratelimit.WindowStatus  `json:"windows"`
	}
}

type listEventsInput struct {
	Limit int `query:"limit" minimum:"1" maximum:"1000" default:"50" doc:"Maximum events to return"`
}
type listEventsOutput struct {
	Body struct {
		Events []audit.Event `json:"events"`
	}
}

// --- Handlers ---

func (s *Server) handleListPools(_ context.Context, _ *struct{}) (*listPoolsOutput, error) {
	out := &listPoolsOutput{}
	out.Body.Pools = s.services.registry.Status()
	return out, nil
}

func (s *Server) handleGetPool(_ context.Context, input *getPoolInput) (*getPoolOutput, error) {
	name := provider.Name(input.Provider)
	if !name.Valid() {
		return nil, huma.Error404NotFound(fmt.Sprintf("unknown provider %q", input.Provider))
	}

	pool, err := s.services.registry.Pool(name)
	if err != nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("no pool configured for provider %q", input.Provider))
	}

	return &getPoolOutput{Body: keypool.PoolStatus{
		Stats:       pool.Stats(),
		Credentials: pool.Snapshot(),
	}}, nil
}

func (s *Server) handleGetLimits(_ context.Context, _ *struct{}) (*getLimitsOutput, error) {
	out := &getLimitsOutput{}
	out.Body.Rules = map[string]ratelimit.Rule{}
	out.Body.Windows = []ratelimit.WindowStatus{}

	if l := s.services.limiter; l != nil {
		out.Body.Rules = l.Rules()
		out.Body.Windows = l.Snapshot()
	}
	return out, nil
}

func (s *Server) handleListEvents(_ context.Context, input *listEventsInput) (*listEventsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}

	out := &listEventsOutput{}
	out.Body.Events = []audit.Event{}
	if events := s.services.trail.Recent(limit); events != nil {
		out.Body.Events = events
	}
	return out, nil
}
