// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

package secrets_test

import (
	"testing"

	"github.com/lexgate-dev/lexgate/internal/secrets"
	lexerr "github.com/lexgate-dev/lexgate/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Resolve
// ---------------------------------------------------------------------------

func TestResolveLiteralPassthrough(t *testing.T) {
	// Plain values are used as-is; the store is never consulted.
	val, err := secrets.Resolve(nil, "sk-ant-plaintext-key")
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-plaintext-key", val)
}

func TestResolveDoesNotInterpolateInsideValues(t *testing.T) {
	t.Setenv("LEXGATE_TEST_INLINE", "should-not-appear")

	// Only whole-value ${VAR} references resolve. A ${VAR} embedded in a
	// larger string is treated as a literal secret.
	val, err := secrets.Resolve(nil, "prefix-${LEXGATE_TEST_INLINE}-suffix")
	require.NoError(t, err)
	assert.Equal(t, "prefix-${LEXGATE_TEST_INLINE}-suffix", val)
}

func TestResolveEnvRef(t *testing.T) {
	t.Setenv("LEXGATE_TEST_RESOLVE", "sk-from-env")

	val, err := secrets.Resolve(nil, "${LEXGATE_TEST_RESOLVE}")
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", val)
}

func TestResolveEnvRefSetButEmpty(t *testing.T) {
	t.Setenv("LEXGATE_TEST_BLANK", "")

	val, err := secrets.Resolve(nil, "${LEXGATE_TEST_BLANK}")
	require.NoError(t, err)
	assert.Empty(t, val)
}

func TestResolveEnvRefUnset(t *testing.T) {
	_, err := secrets.Resolve(nil, "${LEXGATE_TEST_DEFINITELY_UNSET}")
	require.Error(t, err)
	assert.True(t, lexerr.HasCode(err, lexerr.CodeSecretsNotFound))
	assert.Contains(t, err.Error(), "LEXGATE_TEST_DEFINITELY_UNSET")
}

func TestResolveKeyringRef(t *testing.T) {
	ks := secrets.NewKeyringStore()
	require.NoError(t, ks.Store("lexgate-test-resolve", "anthropic-1", "sk-from-keyring"))

	val, err := secrets.Resolve(ks, "keyring://lexgate-test-resolve/anthropic-1")
	require.NoError(t, err)
	assert.Equal(t, "sk-from-keyring", val)
}

func TestResolveKeyringRefMissing(t *testing.T) {
	ks := secrets.NewKeyringStore()

	_, err := secrets.Resolve(ks, "keyring://lexgate-test-missing/nope")
	require.Error(t, err)
	// The resolve wrapper keeps the underlying not-found reason visible.
	assert.True(t, lexerr.IsNotFound(err))
	assert.Contains(t, err.Error(), "keyring://lexgate-test-missing/nope")
}

func TestResolveMalformedKeyringRef(t *testing.T) {
	ks := secrets.NewKeyringStore()

	_, err := secrets.Resolve(ks, "keyring://service-without-key")
	require.Error(t, err)
	assert.True(t, lexerr.HasCode(err, lexerr.CodeSecretsRefInvalid))
}

// ---------------------------------------------------------------------------
// ParseKeyringRef
// ---------------------------------------------------------------------------

func TestParseKeyringRef(t *testing.T) {
	tests := []struct {
		name        string
		ref         string
		wantService string
		wantKey     string
		wantErr     bool
	}{
		{"valid", "keyring://lexgate/anthropic-1", "lexgate", "anthropic-1", false},
		{"key may contain slashes", "keyring://lexgate/team/prod", "lexgate", "team/prod", false},
		{"missing key", "keyring://lexgate", "", "", true},
		{"trailing slash only", "keyring://lexgate/", "", "", true},
		{"missing service", "keyring:///anthropic-1", "", "", true},
		{"empty path", "keyring://", "", "", true},
		{"not a keyring ref", "${LEXGATE_KEY}", "", "", true},
		{"plain value", "sk-ant-literal", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, key, err := secrets.ParseKeyringRef(tt.ref)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, lexerr.HasCode(err, lexerr.CodeSecretsRefInvalid))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantService, service)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestIsKeyringRef(t *testing.T) {
	assert.True(t, secrets.IsKeyringRef("keyring://svc/key"))
	assert.False(t, secrets.IsKeyringRef("${VAR}"))
	assert.False(t, secrets.IsKeyringRef("sk-ant-literal"))
}

// ---------------------------------------------------------------------------
// ResolveAll
// ---------------------------------------------------------------------------

func TestResolveAllPreservesOrder(t *testing.T) {
	t.Setenv("LEXGATE_TEST_SECOND", "sk-env")

	ks := secrets.NewKeyringStore()
	require.NoError(t, ks.Store("lexgate-test-all", "third", "sk-ring"))

	out, err := secrets.ResolveAll(ks, []string{
		"sk-literal",
		"${LEXGATE_TEST_SECOND}",
		"keyring://lexgate-test-all/third",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"sk-literal", "sk-env", "sk-ring"}, out)
}

func TestResolveAllFailsFast(t *testing.T) {
	ks := secrets.NewKeyringStore()

	out, err := secrets.ResolveAll(ks, []string{
		"sk-literal",
		"${LEXGATE_TEST_DEFINITELY_UNSET}",
		"sk-never-reached",
	})
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, lexerr.IsNotFound(err))
	assert.Contains(t, err.Error(), "credential 2 of 3")
}

func TestResolveAllEmptyInput(t *testing.T) {
	out, err := secrets.ResolveAll(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

// ---------------------------------------------------------------------------
// FromNumberedEnv
// ---------------------------------------------------------------------------

func TestFromNumberedEnv(t *testing.T) {
	t.Setenv("LEXGATE_TEST_NUMBERED_1", "alpha")
	t.Setenv("LEXGATE_TEST_NUMBERED_2", "") // blanked: skipped, scan continues
	t.Setenv("LEXGATE_TEST_NUMBERED_3", "gamma")
	t.Setenv("LEXGATE_TEST_NUMBERED_5", "unreachable") // gap at _4 stops the scan

	got := secrets.FromNumberedEnv("LEXGATE_TEST_NUMBERED")
	assert.Equal(t, []string{"alpha", "gamma"}, got)
}

func TestFromNumberedEnvNoneSet(t *testing.T) {
	assert.Empty(t, secrets.FromNumberedEnv("LEXGATE_TEST_ABSENT_PREFIX"))
}
