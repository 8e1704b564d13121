package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/docsync/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat API server",
		Long: `Serve the chat API used by the browser client:

  GET  /api/projects                    project names
  GET  /api/projects/{name}/questions   example questions
  POST /api/chat                        {"query", "projectName"} -> answer
  GET  /api/chat/ws                     the same exchange over a websocket
  GET  /healthz

The listen address defaults to [server] listen in the config.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().String("listen", "", "listen address (host:port)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := shutdownContext(cmd.Context(), cc.Logger, "open requests")

	addr, _ := cmd.Flags().GetString("listen")
	if addr == "" {
		addr = cc.Cfg.Server.Listen
	}

	sess, err := NewSession(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	svc, err := sess.Assistant()
	if err != nil {
		return err
	}

	return server.New(svc, addr, cc.Logger).Run(ctx)
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the ask_project tool over MCP on stdin/stdout",
		Long: `Run a Model Context Protocol server on stdin/stdout exposing one tool,
ask_project(query, projectName?). Without projectName the project comes
from the nearest document-sync.json, searched from PROJECT_PATH when set,
otherwise from the working directory.

Logs go to stderr; stdout carries only protocol messages.`,
		Args: cobra.NoArgs,
		RunE: runMCP,
	}
}

func runMCP(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := shutdownContext(cmd.Context(), cc.Logger, "the current tool call")

	sess, err := NewSession(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	svc, err := sess.Assistant()
	if err != nil {
		return err
	}

	resolve := func(explicit string) (string, error) {
		if explicit == "" {
			explicit = cc.Flags.Project
		}

		return resolveProjectName(explicit)
	}

	s := server.NewMCPServer(svc, resolve, version, cc.Logger)

	cc.Logger.Info("mcp server ready on stdio")

	return server.ServeStdio(ctx, s, os.Stdin, os.Stdout)
}
