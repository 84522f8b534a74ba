package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"baborette-reconciliation-service/cmd/reconciler/config"
	"baborette-reconciliation-service/internal/matcher"
	"baborette-reconciliation-service/internal/parsers"
	"baborette-reconciliation-service/internal/reconciler"
	"baborette-reconciliation-service/internal/reporter"
	"baborette-reconciliation-service/internal/store"
)

var (
	mapaFile        string
	mes             int
	ano             int
	dryRun          bool
	outputFormat    string
	includeCorretos bool
	dsn             string
	valueTolerance  float64
	multiSalePolicy string
	nameFallback    bool
)

// reconcileCmd runs the full pipeline once over a single mapa file.
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile one mapa de vendas against the CRM",
	Long: `Reconcile parses a mapa de vendas document, matches every client line
against the CRM registries for the given month and prints the result.

Unless --dry-run is given, the reconciliation is persisted and becomes
available for review through the API.

Examples:
  reconciler reconcile --mapa-file mapa-marco.pdf --mes 3 --ano 2025
  reconciler reconcile --mapa-file mapa.txt --mes 3 --ano 2025 --dry-run
  reconciler reconcile --mapa-file mapa.pdf --mes 3 --ano 2025 --output-format csv > diffs.csv`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		handler := NewCLIErrorHandler()
		if err := runReconcile(cmd.Context()); err != nil {
			os.Exit(handler.HandleError(err))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVar(&mapaFile, "mapa-file", "", "mapa de vendas file, PDF or pre-extracted text (required)")
	reconcileCmd.Flags().IntVar(&mes, "mes", 0, "reconciliation month, 1-12 (required)")
	reconcileCmd.Flags().IntVar(&ano, "ano", 0, "reconciliation year (required)")
	reconcileCmd.Flags().BoolVar(&dryRun, "dry-run", false, "run the pipeline without persisting")
	reconcileCmd.Flags().StringVar(&outputFormat, "output-format", "console", "output format: console, json, csv")
	reconcileCmd.Flags().BoolVar(&includeCorretos, "include-corretos", false, "also list corresponding items")
	reconcileCmd.Flags().StringVar(&dsn, "dsn", "", "MySQL DSN (or BABORETTE_DATABASE_DSN)")
	reconcileCmd.Flags().Float64Var(&valueTolerance, "value-tolerance", 0.01, "value comparison tolerance")
	reconcileCmd.Flags().StringVar(&multiSalePolicy, "multi-sale-policy", "sum", "aggregation for multiple sales: sum, latest")
	reconcileCmd.Flags().BoolVar(&nameFallback, "name-fallback", true, "resolve clients by normalized name when the code fails")

	reconcileCmd.MarkFlagRequired("mapa-file")
	reconcileCmd.MarkFlagRequired("mes")
	reconcileCmd.MarkFlagRequired("ano")
}

func runReconcile(ctx context.Context) error {
	connStr, err := config.DatabaseDSN(dsn)
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

	engine, err := matcher.NewEngine(config.CreateMatchConfig(valueTolerance, multiSalePolicy, nameFallback), st, st)
	if err != nil {
		return err
	}

	svc, err := reconciler.NewService(st, parser, engine)
	if err != nil {
		return err
	}

	result, err := svc.ProcessMapa(ctx, reconciler.ProcessRequest{
		FilePath: mapaFile,
		Mes:      mes,
		Ano:      ano,
		DryRun:   dryRun,
	})
	if err != nil {
		return err
	}

	rep, err := reporter.NewReporter(config.CreateReportConfig(outputFormat, includeCorretos))
	if err != nil {
		return err
	}
	return rep.Write(os.Stdout, result.Reconciliacao)
}
