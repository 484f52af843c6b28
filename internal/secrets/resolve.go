// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

package secrets

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	lexerr "github.com/lexgate-dev/lexgate/pkg/errors"
)

const keyringScheme = "keyring://"

// envRefPattern matches values that are exactly one ${VAR} reference.
// Partial interpolation inside a secret is deliberately not supported.
var envRefPattern = regexp.MustCompile(`^\$\{([A-Za-z_][A-Za-z0-9_]*)\}$`)

// IsKeyringRef reports whether value uses the keyring:// reference scheme.
func IsKeyringRef(value string) bool {
	return strings.HasPrefix(value, keyringScheme)
}

// ParseKeyringRef splits a keyring://service/key reference.
func ParseKeyringRef(ref string) (service, key string, err error) {
	if !IsKeyringRef(ref) {
		return "", "", lexerr.Errorf(lexerr.CodeSecretsRefInvalid, "not a keyring reference: %q", ref)
	}

	path := strings.TrimPrefix(ref, keyringScheme)
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", lexerr.Errorf(lexerr.CodeSecretsRefInvalid,
			"invalid keyring reference %q: expected keyring://service/key", ref)
	}
	return parts[0], parts[1], nil
}

// Resolve turns one configured credential value into the secret itself.
// keyring://service/key fetches from store, ${VAR} reads the named
// environment variable, and anything else is returned verbatim.
func Resolve(store Store, value string) (string, error) {
	switch {
	case IsKeyringRef(value):
		service, key, err := ParseKeyringRef(value)
		if err != nil {
			return "", err
		}
		secret, err := store.Retrieve(service, key)
		if err != nil {
			return "", lexerr.Wrapf(err, lexerr.CodeSecretsResolveFailure, "resolving %q", value)
		}
		return secret, nil

	case envRefPattern.MatchString(value):
		name := envRefPattern.FindStringSubmatch(value)[1]
		secret, ok := os.LookupEnv(name)
		if !ok {
			return "", lexerr.Errorf(lexerr.CodeSecretsNotFound,
				"environment variable %s referenced by %q is not set", name, value)
		}
		return secret, nil

	default:
		return value, nil
	}
}

// ResolveAll resolves each value in order. Resolution is all-or-nothing: a
// credential list with one broken reference fails rather than silently
// starting with a smaller pool.
func ResolveAll(store Store, values []string) ([]string, error) {
	out := make([]string, 0, len(values))
	for i, value := range values {
		secret, err := Resolve(store, value)
		if err != nil {
			return nil, lexerr.Wrapf(err, lexerr.CodeSecretsResolveFailure,
				"resolving credential %d of %d", i+1, len(values))
		}
		out = append(out, secret)
	}
	return out, nil
}

// FromNumberedEnv collects PREFIX_1, PREFIX_2, ... in order, stopping at the
// first unset variable. A set-but-empty slot is skipped without ending the
// scan, so a key can be pulled from rotation by blanking it.
func FromNumberedEnv(prefix string) []string {
	var out []string
	for n := 1; ; n++ {
		v, ok := os.LookupEnv(fmt.Sprintf("%s_%d", prefix, n))
		if !ok {
			break
		}
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
