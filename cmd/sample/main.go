// Command sample serves an API described by YAML schema files and Go
// handlers.
//
// Run:
//
//	go run ./cmd/sample serve
//	go run ./cmd/sample routes
//	go run ./cmd/sample spec --format yaml -o openapi.yaml
//
// Then explore:
//
//	GET    http://localhost:8080/openapi.json
//	GET    http://localhost:8080/metrics
//	GET    http://localhost:8080/health
//	GET    http://localhost:8080/users?role=admin
//	POST   http://localhost:8080/users
//	GET    http://localhost:8080/users/{id}
//	PUT    http://localhost:8080/users/{id}
//	DELETE http://localhost:8080/users/{id}
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/bjaus/microapi/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "sample",
		Short:         "Sample microapi server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = newLogger(cfg.Log, cmd.ErrOrStderr())
			slog.SetDefault(a.logger)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (yaml, json or toml)")

	root.AddCommand(a.serveCmd(), a.routesCmd(), a.specCmd())
	return root
}

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := newRouter(a.cfg, a.logger, prometheus.DefaultRegisterer)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a.logger.Info("starting server", "addr", a.cfg.Server.Addr)
			if err := r.ListenAndServe(ctx, a.cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			a.logger.Info("server stopped")
			return nil
		},
	}
}

func (a *app) routesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "List the compiled routes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := newRouter(a.cfg, a.logger, prometheus.NewRegistry())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			method := color.New(color.Bold, color.FgCyan)
			gray := color.New(color.FgHiBlack)
			for _, spec := range r.Routes() {
				method.Fprintf(out, "%-7s", spec.HTTPMethod())
				fmt.Fprintf(out, " %-20s", spec.Path)
				if spec.Schema != nil && spec.Schema.Summary != "" {
					gray.Fprintf(out, " %s", spec.Schema.Summary)
				}
				if spec.Guarded {
					gray.Fprint(out, " [use]")
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func (a *app) specCmd() *cobra.Command {
	var (
		format  string
		outFile string
	)

	cmd := &cobra.Command{
		Use:   "spec",
		Short: "Print the OpenAPI document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := newRouter(a.cfg, a.logger, prometheus.NewRegistry())
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if outFile != "" {
				f, err := os.Create(outFile) //nolint:gosec // user-provided CLI flag
				if err != nil {
					return err
				}
				defer func() {
					if err := f.Close(); err != nil {
						a.logger.Error("failed to close output file", "err", err)
					}
				}()
				w = f
			}

			switch format {
			case "json":
				return r.WriteSpec(w)
			case "yaml":
				return r.WriteSpecYAML(w)
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or yaml")
	cmd.Flags().StringVarP(&outFile, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
