// Package reporter renders a reconciliation for terminal consumption.
//
// The CLI workflow (one-shot runs and dry runs in particular) needs the
// result readable without a round trip to the API. Three formats are
// supported: console for humans, JSON for scripts, CSV for the accounting
// spreadsheet the review meeting still runs on.
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"baborette-reconciliation-service/internal/models"
)

// OutputFormat selects how the report is rendered.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// IncludeCorretos lists corresponding items as well; by default only
	// discrepancies are printed, which is what the reviewer reads first.
	IncludeCorretos bool `json:"include_corretos"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:          FormatConsole,
		IncludeCorretos: false,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	return nil
}

// Reporter renders reconciliations in the configured format.
type Reporter struct {
	config *ReportConfig
}

// NewReporter creates a reporter; a nil config uses the defaults.
func NewReporter(config *ReportConfig) (*Reporter, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Reporter{config: config}, nil
}

// Write renders the reconciliation to w.
func (r *Reporter) Write(w io.Writer, rec *models.ReconciliacaoMensal) error {
	switch r.config.Format {
	case FormatJSON:
		return r.writeJSON(w, rec)
	case FormatCSV:
		return r.writeCSV(w, rec)
	default:
		return r.writeConsole(w, rec)
	}
}

func (r *Reporter) writeJSON(w io.Writer, rec *models.ReconciliacaoMensal) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

func (r *Reporter) writeConsole(w io.Writer, rec *models.ReconciliacaoMensal) error {
	var b strings.Builder

	b.WriteString(strings.Repeat("=", 64) + "\n")
	fmt.Fprintf(&b, "RECONCILIAÇÃO %02d/%d", rec.Mes, rec.Ano)
	if rec.Vendedor != "" {
		fmt.Fprintf(&b, "  vendedor: %s", rec.Vendedor)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "arquivo: %s\n", rec.NomeArquivo)
	fmt.Fprintf(&b, "estado:  %s\n", rec.Estado)
	b.WriteString(strings.Repeat("-", 64) + "\n")

	fmt.Fprintf(&b, "itens: %d  corretos: %d  com problema: %d\n",
		rec.TotalItens, rec.ItensCorretos, rec.ItensComProblema)
	fmt.Fprintf(&b, "total PDF:     %12s\n", rec.TotalLiquidoPdf.StringFixed(2))
	fmt.Fprintf(&b, "total sistema: %12s\n", rec.TotalSistema.StringFixed(2))
	fmt.Fprintf(&b, "diferença:     %12s\n", rec.Diferenca.StringFixed(2))

	printed := 0
	for i := range rec.Itens {
		item := &rec.Itens[i]
		if item.Corresponde && !r.config.IncludeCorretos {
			continue
		}
		if printed == 0 {
			b.WriteString(strings.Repeat("-", 64) + "\n")
		}
		printed++

		tipo := "OK"
		if item.TipoDiscrepancia != nil {
			tipo = item.TipoDiscrepancia.String()
		}
		sistema := "-"
		if item.ValorSistema != nil {
			sistema = item.ValorSistema.StringFixed(2)
		}
		resolvido := ""
		if item.Resolvido {
			resolvido = "  [resolvido]"
		}
		fmt.Fprintf(&b, "%-8s %-30.30s %10s %10s  %s%s\n",
			item.CodigoClientePdf, item.NomeClientePdf,
			item.ValorLiquidoPdf.StringFixed(2), sistema, tipo, resolvido)
	}

	b.WriteString(strings.Repeat("=", 64) + "\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Reporter) writeCSV(w io.Writer, rec *models.ReconciliacaoMensal) error {
	cw := csv.NewWriter(w)

	header := []string{"codigo", "nome", "valor_pdf", "valor_sistema", "diferenca", "corresponde", "tipo", "resolvido", "nota"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for i := range rec.Itens {
		item := &rec.Itens[i]
		if item.Corresponde && !r.config.IncludeCorretos {
			continue
		}

		sistema, diferenca, tipo := "", "", ""
		if item.ValorSistema != nil {
			sistema = item.ValorSistema.StringFixed(2)
		}
		if item.DiferencaValor != nil {
			diferenca = item.DiferencaValor.StringFixed(2)
		}
		if item.TipoDiscrepancia != nil {
			tipo = item.TipoDiscrepancia.String()
		}

		row := []string{
			item.CodigoClientePdf,
			item.NomeClientePdf,
			item.ValorLiquidoPdf.StringFixed(2),
			sistema,
			diferenca,
			fmt.Sprintf("%t", item.Corresponde),
			tipo,
			fmt.Sprintf("%t", item.Resolvido),
			item.NotaResolucao,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
