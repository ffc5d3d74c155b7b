package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/samsaffron/markview/internal/export"
	"github.com/samsaffron/markview/internal/logger"
	"github.com/samsaffron/markview/internal/markdown"
	"github.com/samsaffron/markview/internal/render"
	"github.com/samsaffron/markview/internal/server"
	"github.com/samsaffron/markview/internal/signal"
	"github.com/spf13/cobra"
)

var (
	serveHost        string
	servePort        int
	serveUI          bool
	serveCORSOrigins []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the rendering HTTP service",
	Long: `Run an HTTP service that renders markdown and exports documents.

Endpoints:
  POST /api/render
  GET  /api/render/{id}/blocks/{blockID}
  GET  /api/styles.css
  POST /api/convert
  GET  /healthz, /health

Use --ui to also serve a browser preview at /.
Flags override the serve section of the config file.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Bind host (default from config, 127.0.0.1)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Bind port (default from config, 8081)")
	serveCmd.Flags().BoolVar(&serveUI, "ui", false, "Serve the browser preview")
	serveCmd.Flags().StringArrayVar(&serveCORSOrigins, "cors-origin", nil, "Allowed CORS origin (repeatable, or '*' for all)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	host := cfg.Serve.Host
	if cmd.Flags().Changed("host") {
		host = serveHost
	}
	port := cfg.Serve.Port
	if cmd.Flags().Changed("port") {
		port = servePort
	}
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid --port %d (must be 1-65535)", port)
	}
	origins := cfg.Serve.CORSOrigins
	if cmd.Flags().Changed("cors-origin") {
		origins = append([]string(nil), serveCORSOrigins...)
	}

	ctx, stop := signal.NotifyContext()
	defer stop()

	r := markdown.New(cfg.MarkdownOptions())
	exporter := export.NewExporter(r, export.NewGotenbergClient(cfg.Export.GotenbergURL, cfg.ExportTimeout()))
	s := server.New(server.Config{
		Host:        host,
		Port:        port,
		UI:          serveUI,
		CORSOrigins: origins,
		ConvertRate: cfg.Serve.ConvertRate,
	}, r, render.NewStore(cfg.Serve.CacheSize), exporter)

	if err := s.Start(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "markview serve listening on http://%s\n", s.Addr())
	fmt.Fprintf(cmd.ErrOrStderr(), "ui: %v\n", serveUI)
	logger.Logger.Info("server started", "addr", s.Addr(), "gotenberg", cfg.Export.GotenbergURL)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Stop(shutdownCtx)
}
