package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dusk-indust/tsgdraft/internal/config"
	"github.com/dusk-indust/tsgdraft/internal/mcptools"
	"github.com/dusk-indust/tsgdraft/internal/server"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the streaming HTTP API",
		Long: `Serve exposes generate, answer, cancel, session, and validate endpoints.
Generation endpoints stream progress as server-sent events and keep answered
threads in memory so follow-ups need only the thread id.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.setup(func(c *config.Config) {
				if addr != "" {
					c.ListenAddr = addr
				}
			})
			if err != nil {
				return err
			}
			defer a.log.Sync() //nolint:errcheck

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			srv := server.New(a.pipeline,
				server.WithKeepalive(a.cfg.Keepalive),
				server.WithProgressBuffer(a.cfg.ProgressBuffer),
				server.WithLogger(a.log),
			)
			return srv.ListenAndServe(ctx, a.cfg.ListenAddr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :5000)")
	return cmd
}

func newServeMCPCmd(root *rootOptions) *cobra.Command {
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "serve-mcp",
		Short: "Run as an MCP server exposing draft_tsg and validate_tsg",
		Long: `Serve-mcp speaks the Model Context Protocol on stdio so an MCP client can
draft and validate TSGs. With --http the tools are served over streamable HTTP
instead. Logs go to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.setup()
			if err != nil {
				return err
			}
			defer a.log.Sync() //nolint:errcheck

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			mcpServer := mcptools.NewMCPServer(mcptools.NewDraftService(a.pipeline, a.log))
			if httpAddr != "" {
				a.log.Info("serving MCP over HTTP", zap.String("addr", httpAddr))
				return mcptools.RunHTTP(ctx, mcpServer, httpAddr)
			}
			return mcptools.RunStdio(ctx, mcpServer)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", "", "serve over streamable HTTP on this address instead of stdio")
	return cmd
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
