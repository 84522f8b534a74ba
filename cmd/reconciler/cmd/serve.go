package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"baborette-reconciliation-service/cmd/reconciler/config"
	"baborette-reconciliation-service/internal/api"
	"baborette-reconciliation-service/internal/matcher"
	"baborette-reconciliation-service/internal/parsers"
	"baborette-reconciliation-service/internal/reconciler"
	"baborette-reconciliation-service/internal/store"
	"baborette-reconciliation-service/pkg/logger"
)

var (
	serveAddr      string
	serveDSN       string
	serveUploadDir string
)

// serveCmd runs the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reconciliation HTTP API",
	Long: `Serve exposes the reconciliation workflow over HTTP: mapa upload,
reconciliation listing and detail, item resolution and review management.

Example:
  reconciler serve --addr :8080 --dsn "user:pass@tcp(db:3306)/crm?parseTime=true"`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		handler := NewCLIErrorHandler()
		if err := runServe(); err != nil {
			os.Exit(handler.HandleError(err))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().StringVar(&serveDSN, "dsn", "", "MySQL DSN (or BABORETTE_DATABASE_DSN)")
	serveCmd.Flags().StringVar(&serveUploadDir, "upload-dir", "", "directory for stored mapa uploads")
}

func runServe() error {
	log := logger.GetGlobalLogger().WithComponent("serve")

	connStr, err := config.DatabaseDSN(serveDSN)
	if err != nil {
		return err
	}

	st, err := store.Open(connStr)
	if err != nil {
		return err
	}

	parser, err := parsers.NewMapaParser(config.CreateParserConfig())
	if err != nil {
		return err
	}

	engine, err := matcher.NewEngine(nil, st, st)
	if err != nil {
		return err
	}

	svc, err := reconciler.NewService(st, parser, engine)
	if err != nil {
		return err
	}

	h, err := api.NewHandler(svc, config.UploadDir(serveUploadDir))
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              serveAddr,
		Handler:           api.NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", serveAddr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
