// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

// Package provider names the upstream vendors whose API credentials lexgate
// pools, and hosts one adapter subpackage per vendor. Adapters know how to
// bind a credential to a vendor SDK client and how to translate vendor
// errors into the classifier's normalized shape.
package provider

// Name identifies an upstream vendor.
type Name string

const (
	Anthropic Name = "anthropic"
	OpenAI    Name = "openai"
	Google    Name = "google"
	WebSearch Name = "websearch"
)

// All returns every vendor lexgate can bind, in display order.
func All() []Name {
	return []Name{Anthropic, OpenAI, Google, WebSearch}
}

// Valid reports whether n names a known vendor.
func (n Name) Valid() bool {
	switch n {
	case Anthropic, OpenAI, Google, WebSearch:
		return true
	}
	return false
}

func (n Name) String() string {
	return string(n)
}
