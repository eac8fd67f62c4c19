package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/devtab-sh/secure-dev-manager/internal/config"
	"github.com/devtab-sh/secure-dev-manager/internal/dispatch"
	"github.com/devtab-sh/secure-dev-manager/internal/httpapi"
	"github.com/devtab-sh/secure-dev-manager/internal/logger"
)

func newServeCmd(configPath *string) *cobra.Command {
	var debugHTTP bool
	var debugHTTPAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatch loop over newline-delimited JSON on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			debugLog := logger.New(logger.Config{
				Path:       cfg.Log.Path,
				MaxSizeMB:  cfg.Log.MaxSizeMB,
				MaxBackups: cfg.Log.MaxBackups,
				MaxAgeDays: cfg.Log.MaxAgeDays,
				Compress:   cfg.Log.Compress,
			})

			d := dispatch.New(cfg, debugLog)
			defer d.Close()

			ctx := cmd.Context()

			if debugHTTP {
				srv := httpapi.NewServer(debugHTTPAddr, d)
				go func() {
					if err := srv.Run(ctx); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "debug http server stopped: %v\n", err)
					}
				}()
				fmt.Fprintf(cmd.OutOrStdout(), "debug http listening on %s\n", srv.Addr())
			}

			return runStdioLoop(ctx, d, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&debugHTTP, "debug-http", false, "start the diagnostic HTTP server (dispatch ring buffer + Prometheus metrics)")
	cmd.Flags().StringVar(&debugHTTPAddr, "debug-http-addr", "", "listen address for --debug-http (defaults to 127.0.0.1:7787)")

	return cmd
}

// runStdioLoop reads one JSON request object per line from r and writes one
// JSON response envelope per line to w, until r is exhausted or ctx is
// cancelled. This is a minimal stand-in for the real RPC transport, which is
// an out-of-scope external collaborator.
func runStdioLoop(ctx context.Context, d *dispatch.Dispatcher, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		env := handleRequestLine(ctx, d, line)
		if err := enc.Encode(env); err != nil {
			return fmt.Errorf("encode response: %w", err)
		}
	}
	return scanner.Err()
}
