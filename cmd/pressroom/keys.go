// ABOUTME: The keys command group: list configured keys, replace a provider's stored keys, and probe keys.
// ABOUTME: Key values are always printed redacted.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/2389-research/pressroom/article"
	"github.com/2389-research/pressroom/keypool"
)

func newKeysCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Inspect and manage API keys",
	}
	cmd.AddCommand(newKeysListCommand(a), newKeysSetCommand(a), newKeysProbeCommand(a))
	return cmd
}

type keyListing struct {
	keypool.Health
	Keys []keypool.CredentialStatus `json:"keys"`
}

func newKeysListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the keys each provider would use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			reg, err := newRegistry(cmd.Context(), a.cfg, st, a.log)
			if err != nil {
				return err
			}
			out := make(map[keypool.Provider]keyListing)
			for _, p := range keypool.Providers() {
				pool := reg.MustPool(p)
				out[p] = keyListing{Health: pool.Health(), Keys: pool.Credentials()}
			}
			return a.printJSON(out)
		},
	}
}

func newKeysSetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <provider> [key...]",
		Short: "Replace the stored keys for a provider",
		Long: `Replace the stored keys for a provider. Providers are "generation" (alias
"gemini") and "search" (alias "newsapi"). Passing no keys clears the stored
list, after which keys from the environment apply again.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := keypool.ParseProvider(args[0])
			if err != nil {
				return err
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.SetKeys(cmd.Context(), p, args[1:]); err != nil {
				return err
			}
			stored, err := st.Keys(cmd.Context(), p)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(a.out, "stored %d %s key(s)\n", len(stored), p)
			return err
		},
	}
}

type probeLine struct {
	Key   string `json:"key"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func newKeysProbeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <provider>",
		Short: "Send one minimal request with every key of a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := keypool.ParseProvider(args[0])
			if err != nil {
				return err
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			svc, err := newService(cmd.Context(), a.cfg, st, a.log)
			if err != nil {
				return err
			}
			n := svc.Keys().MustPool(p).Health().Total
			if n == 0 {
				return fmt.Errorf("%s: %w", p, keypool.ErrNoCredentials)
			}

			lines := make([]probeLine, 0, n)
			failed := 0
			for range n {
				cred, err := svc.Probe(cmd.Context(), p)
				if cred == nil {
					return err
				}
				line := probeLine{Key: cred.Redacted(), OK: err == nil}
				if err != nil {
					line.Error = article.FriendlyError(err)
					failed++
				}
				lines = append(lines, line)
			}
			if err := a.printJSON(lines); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d %s key(s) failed", failed, n, p)
			}
			return nil
		},
	}
}
