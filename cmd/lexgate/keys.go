// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/lexgate-dev/lexgate/internal/keypool"
	"github.com/lexgate-dev/lexgate/internal/provider"
	"github.com/lexgate-dev/lexgate/internal/secrets"
	lexerr "github.com/lexgate-dev/lexgate/pkg/errors"
	"github.com/spf13/cobra"
)

// serviceName is the keyring service name under which LexGate stores secrets.
const serviceName = "lexgate"

// secretStoreFactory creates a secrets.Store. It is a package-level variable
// so tests can substitute a mock implementation.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyringStore()
}

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Inspect and manage credentials",
		Long: "Check that configured credential references resolve, and manage secrets\n" +
			"stored under the LexGate service in the operating system keyring.",
	}

	cmd.AddCommand(
		newKeysCheckCmd(),
		newKeysListCmd(),
		newKeysDeleteCmd(),
	)

	return cmd
}

func newKeysCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify every configured credential reference resolves",
		Long: "Resolve each configured credential reference (literal, ${ENV}, keyring://)\n" +
			"and print its masked identifier. Runs entirely offline: no provider is contacted.",
		RunE: runKeysCheck,
	}
}

func newKeysListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List secret names stored in the OS keyring",
		RunE:  runKeysList,
	}
}

func newKeysDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a keyring secret by name",
		Args:  cobra.ExactArgs(1),
		RunE:  runKeysDelete,
	}
}

func runKeysCheck(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	store := secretStoreFactory()

	providers := cfg.EnabledProviders()
	if len(providers) == 0 {
		_, _ = fmt.Fprintln(out, "No providers enabled.")
		return nil
	}

	failures := 0
	for _, p := range providers {
		refs, err := cfg.KeyRefsFor(p)
		if err != nil {
			_, _ = fmt.Fprintf(out, "%s: %s\n", p, err)
			failures++
			continue
		}
		if len(refs) == 0 {
			_, _ = fmt.Fprintf(out, "%s: no credentials configured\n", p)
			failures++
			continue
		}

		_, _ = fmt.Fprintf(out, "%s: %d reference(s)\n", p, len(refs))

		seen := make(map[string]string)
		for _, ref := range refs {
			value, err := secrets.Resolve(store, ref.Ref)
			if err != nil {
				_, _ = fmt.Fprintf(out, "  [%s] %-32s FAIL: %s\n", ref.Source, displayRef(ref.Ref), err)
				failures++
				continue
			}

			id, err := maskCredential(p, value)
			if err != nil {
				_, _ = fmt.Fprintf(out, "  [%s] %-32s FAIL: %s\n", ref.Source, displayRef(ref.Ref), err)
				failures++
				continue
			}

			line := fmt.Sprintf("  [%s] %-32s ok (%s)", ref.Source, displayRef(ref.Ref), id)
			if prior, dup := seen[id]; dup {
				line += fmt.Sprintf(" duplicate of %s", prior)
			} else {
				seen[id] = displayRef(ref.Ref)
			}
			_, _ = fmt.Fprintln(out, line)
		}
	}

	if failures > 0 {
		return lexerr.Errorf(lexerr.CodeCLIInputInvalid, "%d credential reference(s) failed to resolve", failures)
	}

	_, _ = fmt.Fprintln(out, "All credential references resolve.")
	return nil
}

// displayRef returns a form of the reference safe to print. Indirect
// references name where the secret lives, not the secret itself; literals
// must never reach output.
func displayRef(ref string) string {
	if secrets.IsKeyringRef(ref) || strings.HasPrefix(ref, "${") {
		return ref
	}
	return "(literal)"
}

// maskCredential derives the same masked identifier the pool would report
// for this secret, by building a throwaway single-credential pool.
func maskCredential(p provider.Name, value string) (string, error) {
	pool, err := keypool.New(p, []string{value}, nil)
	if err != nil {
		return "", err
	}
	return pool.Snapshot()[0].ID, nil
}

func runKeysList(cmd *cobra.Command, _ []string) error {
	store := secretStoreFactory()
	keys, err := store.List(serviceName)
	if err != nil {
		return lexerr.Errorf(lexerr.CodeSecretsKeyringFailure, "listing secrets: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(keys) == 0 {
		_, _ = fmt.Fprintln(out, "No secrets stored.")
		return nil
	}

	for _, k := range keys {
		_, _ = fmt.Fprintln(out, k)
	}
	return nil
}

func runKeysDelete(cmd *cobra.Command, args []string) error {
	name := args[0]
	store := secretStoreFactory()

	if err := store.Delete(serviceName, name); err != nil {
		if lexerr.HasCode(err, lexerr.CodeSecretsNotFound) {
			return lexerr.Errorf(lexerr.CodeSecretsNotFound, "secret %q not found", name)
		}
		return lexerr.Errorf(lexerr.CodeSecretsKeyringFailure, "deleting secret %q: %w", name, err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted secret: %s\n", name)
	return nil
}
