package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/AmyangXYZ/rtseries/pkg/config"
	"github.com/AmyangXYZ/rtseries/pkg/engine"
	"github.com/spf13/cobra"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the topic server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(func(cfg *config.Config) {
			if cmd.Flags().Changed("listen") {
				cfg.Server.ListenAddr = listenAddr
			}
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, engine.NewEngine(cfg))
	},
}

// serve runs e until ctx is done or the listener fails.
func serve(ctx context.Context, e *engine.RTSeriesEngine) error {
	errCh := make(chan error, 1)
	go func() { errCh <- e.Start() }()

	select {
	case err := <-errCh:
		e.Stop()
		return err
	case <-ctx.Done():
		e.Stop()
		return <-errCh
	}
}

func init() {
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", config.DefaultConfig.Server.ListenAddr, "address to listen on")
	rootCmd.AddCommand(serveCmd)
}
