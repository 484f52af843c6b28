// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

// Package secrets resolves configured credential values into the secrets
// themselves and fronts the OS keyring for storing them. Resolution happens
// once at startup; resolved secrets live only in pool memory afterwards.
package secrets

// Store is secure secret storage. Implementations may use OS keyrings,
// encrypted files, or other backends.
type Store interface {
	// Store saves a secret value under the given service and key.
	Store(service, key, value string) error

	// Retrieve fetches the secret for the given service and key. A missing
	// key reports CodeSecretsNotFound.
	Retrieve(service, key string) (string, error)

	// Delete removes the secret for the given service and key. A missing
	// key reports CodeSecretsNotFound.
	Delete(service, key string) error

	// List returns all key names stored under the given service.
	List(service string) ([]string, error)
}
