// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/lexgate-dev/lexgate/internal/provider"
	"github.com/lexgate-dev/lexgate/internal/secrets"
	lexerr "github.com/lexgate-dev/lexgate/pkg/errors"
	"gopkg.in/yaml.v3"
)

// KeyRef pairs one configured credential reference with where it came from.
type KeyRef struct {
	Ref    string
	Source string // "config", "keys_file", or "env"
}

// keyManifest is the schema of an external keys_file:
//
//	keys:
//	  - sk-ant-...
//	  - ${ANTHROPIC_KEY_FALLBACK}
//	  - keyring://lexgate/anthropic-prod
type keyManifest struct {
	Keys []string `yaml:"keys"`
}

func loadKeyManifest(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, lexerr.Errorf(lexerr.CodeConfigLoadReadFailure, "reading keys file %s: %w", path, err)
	}

	var m keyManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, lexerr.Errorf(lexerr.CodeConfigKeysFileInvalid, "parsing keys file %s: %w", path, err)
	}

	return m.Keys, nil
}

// numberedEnvPrefix returns the LEXGATE_<PROVIDER>_KEY prefix whose numbered
// suffixes (_1, _2, ...) supply extra credentials for p.
func numberedEnvPrefix(p provider.Name) string {
	return fmt.Sprintf("LEXGATE_%s_KEY", strings.ToUpper(string(p)))
}

// KeyRefsFor lists the configured credential references for one provider in
// resolution order — explicit keys, keys_file manifest entries, numbered
// environment variables — without resolving any of them.
func (c *Config) KeyRefsFor(p provider.Name) ([]KeyRef, error) {
	pc := c.Providers[string(p)]

	var refs []KeyRef
	for _, k := range pc.Keys {
		refs = append(refs, KeyRef{Ref: k, Source: "config"})
	}

	if pc.KeysFile != "" {
		manifest, err := loadKeyManifest(pc.KeysFile)
		if err != nil {
			return nil, err
		}
		for _, k := range manifest {
			refs = append(refs, KeyRef{Ref: k, Source: "keys_file"})
		}
	}

	for _, k := range secrets.FromNumberedEnv(numberedEnvPrefix(p)) {
		refs = append(refs, KeyRef{Ref: k, Source: "env"})
	}

	return refs, nil
}

// CredentialsFor resolves the complete credential list for one provider.
// Every reference passes through secrets resolution, and exact duplicates
// collapse so a key listed both in config and in the environment backs only
// one pool slot.
//
// An enabled provider that resolves to zero credentials is a configuration
// error: a silently empty pool would turn every run into an immediate
// exhaustion.
func (c *Config) CredentialsFor(p provider.Name, store secrets.Store) ([]string, error) {
	refs, err := c.KeyRefsFor(p)
	if err != nil {
		return nil, err
	}

	values := make([]string, len(refs))
	for i, r := range refs {
		values[i] = r.Ref
	}

	resolved, err := secrets.ResolveAll(store, values)
	if err != nil {
		return nil, lexerr.Wrapf(err, lexerr.CodeConfigValidateInvalidValue,
			"resolving credentials for provider %s", p)
	}

	out := dedupe(resolved)
	if len(out) == 0 {
		return nil, lexerr.Errorf(lexerr.CodeConfigPoolNoCredentials,
			"provider %s has no credentials: set providers.%s.keys, a keys_file, or %s_1",
			p, p, numberedEnvPrefix(p))
	}

	return out, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
