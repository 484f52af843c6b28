// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

// Command openapi-gen writes the ops API's OpenAPI document to disk so the
// checked-in spec can be diffed in CI against what the code actually serves.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lexgate-dev/lexgate/internal/keypool"
	"github.com/lexgate-dev/lexgate/internal/server"
	lexerr "github.com/lexgate-dev/lexgate/pkg/errors"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec creates a server with all routes registered and extracts the
// OpenAPI document that huma generates from the Go type annotations. An
// empty registry is enough: handlers are never invoked during generation.
func generateSpec() ([]byte, error) {
	svc, err := server.NewServices(keypool.NewRegistry(), nil, nil)
	if err != nil {
		return nil, lexerr.Wrapf(err, lexerr.CodeCLISetupFailure, "building services")
	}

	srv, err := server.New(server.Config{
		ListenAddr: "127.0.0.1:0",
		Version:    "dev",
	}, svc)
	if err != nil {
		return nil, lexerr.Wrapf(err, lexerr.CodeCLISetupFailure, "creating server")
	}

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}
