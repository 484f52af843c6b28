// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

package keypool

import (
	"testing"
	"time"

	"github.com/lexgate-dev/lexgate/internal/provider"
	lexerr "github.com/lexgate-dev/lexgate/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	anthropic, err := New(provider.Anthropic, []string{"sk-a"}, nil)
	require.NoError(t, err)
	openai, err := New(provider.OpenAI, []string{"sk-o"}, nil)
	require.NoError(t, err)

	require.NoError(t, r.Register(anthropic))
	require.NoError(t, r.Register(openai))

	got, err := r.Pool(provider.Anthropic)
	require.NoError(t, err)
	assert.Same(t, anthropic, got)
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	p, err := New(provider.Google, []string{"key"}, nil)
	require.NoError(t, err)

	require.NoError(t, r.Register(p))
	assert.Error(t, r.Register(p))
}

func TestRegistryUnknownProvider(t *testing.T) {
	r := NewRegistry()
	_, err := r.Pool(provider.WebSearch)
	require.Error(t, err)
	assert.True(t, lexerr.HasCode(err, lexerr.CodeKeypoolProviderNotFound))
}

func TestRegistryNamesSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []provider.Name{provider.WebSearch, provider.Anthropic, provider.OpenAI} {
		p, err := New(name, []string{"key-" + string(name)}, nil)
		require.NoError(t, err)
		require.NoError(t, r.Register(p))
	}

	assert.Equal(t, []provider.Name{provider.Anthropic, provider.OpenAI, provider.WebSearch}, r.Names())
}

func TestRegistryStatus(t *testing.T) {
	r := NewRegistry()

	p, err := New(provider.Anthropic, []string{"sk-a", "sk-b"}, nil)
	require.NoError(t, err)
	require.NoError(t, r.Register(p))

	c, err := p.SelectNext()
	require.NoError(t, err)
	p.Disable(c, time.Hour)

	statuses := r.Status()
	require.Len(t, statuses, 1)

	st := statuses[0]
	assert.Equal(t, provider.Anthropic, st.Provider)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.Usable)
	assert.Equal(t, 1, st.Cooling)
	require.Len(t, st.Credentials, 2)
	assert.True(t, st.Credentials[0].Disabled)
	assert.False(t, st.Credentials[1].Disabled)
}
