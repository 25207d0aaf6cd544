// Command rushbsrv runs the RUSHB file-transfer server: it binds a UDP
// socket on an OS-chosen port (unless overridden), prints that port to
// stdout, and serves GET requests until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ventosilenzioso/rushbsrv/internal/config"
	"github.com/ventosilenzioso/rushbsrv/internal/rushb"
	"github.com/ventosilenzioso/rushbsrv/internal/rushblog"
)

const version = "1.0.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "rushbsrv",
		Short:        "RUSHB reliable file-transfer server",
		SilenceUsage: true,
		RunE:         run,
	}

	defaults := config.Defaults()
	cmd.Flags().String("listen", defaults.ListenAddr, "address to bind (host:port, empty port picks one)")
	cmd.Flags().String("root", defaults.RootDir, "directory served to GET requests")
	cmd.Flags().Duration("retransmit-timeout", defaults.RetransmitTimeout, "stop-and-wait retransmit deadline")
	cmd.Flags().String("log-level", defaults.LogLevel, "log level (debug, info, warn, error)")
	cmd.Flags().String("log-file", defaults.LogFile, "rotated log file path (empty: stderr only)")
	cmd.Flags().String("config", "", "optional config file path")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := rushblog.New(rushblog.Options{Level: cfg.LogLevel, FilePath: cfg.LogFile})
	rushblog.Banner(log, "rushbsrv", version)
	log.WithField("root", cfg.RootDir).Info("serving files from root directory")

	rushb.SetRetransmitTimeout(cfg.RetransmitTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listener := rushb.NewListener(cfg.RootDir, log)
	return listener.ListenAndServe(ctx, cfg.ListenAddr)
}
