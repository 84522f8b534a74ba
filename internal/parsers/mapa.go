// Package parsers turns the mapa de vendas document into a ParsedMapaPdf.
//
// The mapa is an externally generated monthly sales report: a header with
// the period and salesperson, one row per client (code, name, gross value,
// discount, net value, Brazilian number notation) and a footer with the
// declared totals. Extraction of the PDF text layer lives in pdf.go; this
// file implements the line grammar over the extracted lines.
//
// Malformed rows are skipped and counted, never fatal: a single bad line
// in a 200-client mapa must not abort the whole reconciliation run.
package parsers

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"baborette-reconciliation-service/internal/models"
	"baborette-reconciliation-service/pkg/errors"
	"baborette-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// LineError records one skipped line during parsing.
type LineError struct {
	Line    int
	Content string
	Message string
	Err     error
}

func (e *LineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("line %d (%q): %s: %v", e.Line, e.Content, e.Message, e.Err)
	}
	return fmt.Sprintf("line %d (%q): %s", e.Line, e.Content, e.Message)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// ParseStats reports what the parser did with the document.
type ParseStats struct {
	TotalLines   int          `json:"totalLines"`
	ClientLines  int          `json:"clientLines"`
	SkippedLines int          `json:"skippedLines"`
	Errors       []*LineError `json:"-"`
}

// MapaParserConfig configures the line grammar.
type MapaParserConfig struct {
	// CodigoPattern recognizes a client code token at the start of a row.
	CodigoPattern string `json:"codigo_pattern"`
	// RequireHeader rejects documents without a detectable period header.
	RequireHeader bool `json:"require_header"`
}

// DefaultMapaParserConfig returns the configuration matching the mapa
// layout the sales back office produces.
func DefaultMapaParserConfig() *MapaParserConfig {
	return &MapaParserConfig{
		CodigoPattern: `^[A-Z]{0,2}\d{3,6}$`,
		RequireHeader: false,
	}
}

// Validate checks the parser configuration.
func (c *MapaParserConfig) Validate() error {
	if strings.TrimSpace(c.CodigoPattern) == "" {
		return fmt.Errorf("codigo pattern cannot be empty")
	}
	if _, err := regexp.Compile(c.CodigoPattern); err != nil {
		return fmt.Errorf("invalid codigo pattern: %w", err)
	}
	return nil
}

// MapaParser parses extracted mapa text lines into a ParsedMapaPdf.
type MapaParser struct {
	config   *MapaParserConfig
	codigoRe *regexp.Regexp
	log      logger.Logger
}

var (
	periodoRe        = regexp.MustCompile(`(?i)per[íi]odo:?\s*(\d{2}/\d{2}/\d{4})\s*(?:a|à|-)\s*(\d{2}/\d{2}/\d{4})`)
	vendedorRe       = regexp.MustCompile(`(?i)^vendedor:?\s*(.+)$`)
	totalBrutoRe     = regexp.MustCompile(`(?i)^total\s+bruto:?\s*R?\$?\s*([\d.,]+)$`)
	totalDescontosRe = regexp.MustCompile(`(?i)^total\s+descontos?:?\s*R?\$?\s*([\d.,]+)$`)
	totalLiquidoRe   = regexp.MustCompile(`(?i)^total\s+l[íi]quido:?\s*R?\$?\s*([\d.,]+)$`)
)

// NewMapaParser creates a parser with the given configuration.
func NewMapaParser(config *MapaParserConfig) (*MapaParser, error) {
	if config == nil {
		config = DefaultMapaParserConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "mapa_parser", err)
	}

	return &MapaParser{
		config:   config,
		codigoRe: regexp.MustCompile(config.CodigoPattern),
		log:      logger.GetGlobalLogger().WithComponent("mapa_parser"),
	}, nil
}

// Parse runs the line grammar over already-extracted text lines.
// The returned error is non-nil only for whole-document failures; per-line
// problems are recorded in the stats and the line is skipped.
func (p *MapaParser) Parse(lines []string) (*models.ParsedMapaPdf, *ParseStats, error) {
	parsed := &models.ParsedMapaPdf{
		TotalBruto:     decimal.Zero,
		TotalDescontos: decimal.Zero,
		TotalLiquido:   decimal.Zero,
	}
	stats := &ParseStats{}

	headerSeen := false

	for n, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		stats.TotalLines++
		lineNo := n + 1

		if m := periodoRe.FindStringSubmatch(line); m != nil {
			headerSeen = true
			if inicio, err := models.ParseDateBR(m[1]); err == nil {
				parsed.DataInicio = &inicio
			} else {
				stats.addError(lineNo, line, "invalid period start date", err)
			}
			if fim, err := models.ParseDateBR(m[2]); err == nil {
				parsed.DataFim = &fim
			} else {
				stats.addError(lineNo, line, "invalid period end date", err)
			}
			continue
		}

		if m := vendedorRe.FindStringSubmatch(line); m != nil {
			parsed.Vendedor = strings.TrimSpace(m[1])
			continue
		}

		if total, ok, err := matchTotal(totalBrutoRe, line); ok {
			if err != nil {
				stats.addError(lineNo, line, "invalid total bruto", err)
			} else {
				parsed.TotalBruto = total
			}
			continue
		}
		if total, ok, err := matchTotal(totalDescontosRe, line); ok {
			if err != nil {
				stats.addError(lineNo, line, "invalid total descontos", err)
			} else {
				parsed.TotalDescontos = total
			}
			continue
		}
		if total, ok, err := matchTotal(totalLiquidoRe, line); ok {
			if err != nil {
				stats.addError(lineNo, line, "invalid total liquido", err)
			} else {
				parsed.TotalLiquido = total
			}
			continue
		}

		clientLine, ok := p.parseClienteLine(line)
		if !ok {
			continue // header garnish, column captions, page footers
		}
		if clientLine == nil {
			stats.addError(lineNo, line, "malformed client row", nil)
			continue
		}

		parsed.Clientes = append(parsed.Clientes, *clientLine)
		stats.ClientLines++
	}

	if p.config.RequireHeader && !headerSeen {
		return nil, stats, errors.ParseError(errors.CodeInvalidFormat, "mapa", nil)
	}

	if len(parsed.Clientes) == 0 {
		return nil, stats, errors.ParseError(errors.CodeEmptyDocument, "mapa", nil)
	}

	p.log.WithFields(logger.Fields{
		"client_lines":  stats.ClientLines,
		"skipped_lines": stats.SkippedLines,
		"vendedor":      parsed.Vendedor,
	}).Info("mapa parsed")

	return parsed, stats, nil
}

// ParseReader is a convenience over Parse for plain-text input (tests and
// the CLI accept pre-extracted text as well as PDFs).
func (p *MapaParser) ParseReader(r io.Reader) (*models.ParsedMapaPdf, *ParseStats, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, errors.Wrap(err, errors.CategoryParse, errors.CodeInvalidFormat, "failed to read mapa text")
	}
	return p.Parse(lines)
}

// parseClienteLine recognizes one client row.
//
// Returns (nil, false) for lines that are clearly not client rows (no code
// token), and (nil, true) for lines that start like a client row but whose
// value columns are broken — those count as skipped.
func (p *MapaParser) parseClienteLine(line string) (*models.PdfClienteLine, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 || !p.codigoRe.MatchString(fields[0]) {
		return nil, false
	}

	// <codigo> <nome...> <bruto> <desconto> <liquido>
	if len(fields) < 5 {
		return nil, true
	}

	valorBruto, errB := models.ParseDecimalBR(fields[len(fields)-3])
	desconto, errD := models.ParseDecimalBR(fields[len(fields)-2])
	valorLiquido, errL := models.ParseDecimalBR(fields[len(fields)-1])
	if errB != nil || errD != nil || errL != nil {
		return nil, true
	}

	nome := strings.Join(fields[1:len(fields)-3], " ")
	if strings.TrimSpace(nome) == "" {
		return nil, true
	}

	return &models.PdfClienteLine{
		Codigo:       fields[0],
		Nome:         nome,
		ValorBruto:   valorBruto,
		Desconto:     desconto,
		ValorLiquido: valorLiquido,
	}, true
}

func matchTotal(re *regexp.Regexp, line string) (decimal.Decimal, bool, error) {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return decimal.Zero, false, nil
	}
	d, err := models.ParseDecimalBR(m[1])
	return d, true, err
}

func (s *ParseStats) addError(line int, content, message string, err error) {
	s.SkippedLines++
	s.Errors = append(s.Errors, &LineError{
		Line:    line,
		Content: content,
		Message: message,
		Err:     err,
	})
}
