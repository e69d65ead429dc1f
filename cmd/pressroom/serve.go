// ABOUTME: The serve command: runs the HTTP API until interrupted.
// ABOUTME: Keys are reloaded on a ticker so settings edits from other processes are picked up.
package main

import (
	"github.com/spf13/cobra"

	"github.com/2389-research/pressroom/web"
)

func newServeCommand(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and status page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if addr != "" {
				a.cfg.Server.Addr = addr
			}

			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			svc, err := newService(ctx, a.cfg, st, a.log)
			if err != nil {
				return err
			}
			go svc.Keys().Watch(ctx, a.cfg.Pipeline.ReloadInterval)

			srv, err := web.NewServer(web.Config{
				HTTP:      a.cfg.Server,
				Service:   svc,
				Store:     st,
				Logger:    a.log,
				ImageDir:  a.cfg.Images.Dir,
				ImagePath: a.cfg.Images.PublicPath,
			})
			if err != nil {
				return err
			}
			for p, h := range svc.Keys().Snapshot() {
				a.log.Info("keys loaded", "provider", string(p), "total", h.Total)
			}
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}
