package reconciler

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"baborette-reconciliation-service/internal/matcher"
	"baborette-reconciliation-service/internal/models"
	"baborette-reconciliation-service/internal/parsers"
	"baborette-reconciliation-service/pkg/errors"
	"baborette-reconciliation-service/pkg/logger"
)

// Service runs the reconciliation pipeline and fronts the store for the API
// and CLI.
type Service struct {
	store  ReconciliacaoStore
	parser *parsers.MapaParser
	engine *matcher.Engine
	log    logger.Logger
}

// NewService wires the pipeline components together.
func NewService(store ReconciliacaoStore, parser *parsers.MapaParser, engine *matcher.Engine) (*Service, error) {
	if store == nil || parser == nil || engine == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "reconciler service dependencies", nil)
	}
	return &Service{
		store:  store,
		parser: parser,
		engine: engine,
		log:    logger.GetGlobalLogger().WithComponent("reconciler"),
	}, nil
}

// ProcessRequest describes one mapa to reconcile.
type ProcessRequest struct {
	// FilePath points at the stored upload. A .pdf goes through text
	// extraction; anything else is read as pre-extracted text, which is what
	// the CLI dry-run workflow feeds in.
	FilePath    string
	NomeArquivo string
	Mes         int
	Ano         int
	// DryRun runs the full pipeline but skips persistence.
	DryRun bool
}

// ProcessResult carries the reconciliation plus parser diagnostics.
type ProcessResult struct {
	Reconciliacao *models.ReconciliacaoMensal
	Stats         *parsers.ParseStats
}

// ProcessMapa runs extract, parse, match and aggregate over one uploaded
// mapa and persists the result. Nothing is written until the whole pipeline
// succeeded; a parse or matching failure leaves no partial reconciliation
// behind.
func (s *Service) ProcessMapa(ctx context.Context, req ProcessRequest) (*ProcessResult, error) {
	if err := models.ValidatePeriodo(req.Mes, req.Ano); err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidPeriod, "periodo", err.Error())
	}
	if strings.TrimSpace(req.FilePath) == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "filePath", req.FilePath)
	}

	nomeArquivo := req.NomeArquivo
	if nomeArquivo == "" {
		nomeArquivo = filepath.Base(req.FilePath)
	}

	log := s.log.WithFields(logger.Fields{
		"arquivo": nomeArquivo,
		"mes":     req.Mes,
		"ano":     req.Ano,
	})
	log.Info("processing mapa de vendas")

	parsed, stats, err := s.parseFile(req.FilePath)
	if err != nil {
		return nil, err
	}
	if stats.SkippedLines > 0 {
		log.WithFields(logger.Fields{
			"skipped_lines": stats.SkippedLines,
		}).Warn("mapa contained unparseable rows")
	}

	items, err := s.engine.Match(ctx, parsed, req.Mes, req.Ano)
	if err != nil {
		return nil, err
	}

	rec := &models.ReconciliacaoMensal{
		Mes:               req.Mes,
		Ano:               req.Ano,
		NomeArquivo:       nomeArquivo,
		CaminhoArquivo:    req.FilePath,
		DataInicio:        parsed.DataInicio,
		DataFim:           parsed.DataFim,
		Vendedor:          parsed.Vendedor,
		TotalBrutoPdf:     parsed.TotalBruto,
		TotalDescontosPdf: parsed.TotalDescontos,
		TotalLiquidoPdf:   parsed.TotalLiquido,
	}
	for i, item := range items {
		item.Ordem = i
		rec.Itens = append(rec.Itens, *item)
	}
	BuildResumo(rec)

	if !req.DryRun {
		if err := s.store.Create(ctx, rec); err != nil {
			return nil, errors.WrapIfNeeded(err, errors.CategoryPersistence,
				errors.CodeTransactionFailed, "failed to persist reconciliation")
		}
	}

	log.WithFields(logger.Fields{
		"id":            rec.ID,
		"total_itens":   rec.TotalItens,
		"com_problema":  rec.ItensComProblema,
		"total_sistema": rec.TotalSistema,
		"dry_run":       req.DryRun,
	}).Info("reconciliation created")

	return &ProcessResult{Reconciliacao: rec, Stats: stats}, nil
}

// parseFile turns the stored upload into a ParsedMapaPdf.
func (s *Service) parseFile(path string) (*models.ParsedMapaPdf, *parsers.ParseStats, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		lines, err := parsers.ExtractTextLines(path)
		if err != nil {
			return nil, nil, err
		}
		return s.parser.Parse(lines)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		return nil, nil, errors.FileError(errors.CodeFileUnreadable, path, err)
	}
	defer f.Close()
	return s.parser.ParseReader(f)
}

// Get loads one reconciliation with its items.
func (s *Service) Get(ctx context.Context, id string) (*models.ReconciliacaoMensal, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "id", id)
	}
	return s.store.GetByID(ctx, id)
}

// List returns reconciliation summaries matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*models.ReconciliacaoMensal, error) {
	if filter.Mes != nil {
		if *filter.Mes < 1 || *filter.Mes > 12 {
			return nil, errors.ValidationError(errors.CodeInvalidPeriod, "mes", *filter.Mes)
		}
	}
	if filter.Estado != nil && !filter.Estado.IsValid() {
		return nil, errors.ValidationError(errors.CodeInvalidPayload, "estado", string(*filter.Estado))
	}
	return s.store.List(ctx, filter)
}

// ResolveItem applies a partial resolution update to one item and returns
// the parent with refreshed derived state. The item must belong to the
// given reconciliation; an ID under a different parent reads as not found.
func (s *Service) ResolveItem(ctx context.Context, reconciliacaoID, itemID string, patch ItemPatch) (*models.ReconciliacaoMensal, error) {
	if strings.TrimSpace(reconciliacaoID) == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "reconciliacaoId", reconciliacaoID)
	}
	if strings.TrimSpace(itemID) == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "itemId", itemID)
	}
	if patch.IsEmpty() {
		return nil, errors.ValidationError(errors.CodeInvalidPayload, "body", "at least one of resolvido, notaResolucao is required")
	}

	rec, err := s.store.UpdateItem(ctx, reconciliacaoID, itemID, patch)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logger.Fields{
		"reconciliacao": reconciliacaoID,
		"item":          itemID,
		"estado":        rec.Estado,
	}).Info("item updated")
	return rec, nil
}

// StartReview moves a reconciliation into EM_REVISAO.
func (s *Service) StartReview(ctx context.Context, id string) (*models.ReconciliacaoMensal, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "id", id)
	}
	return s.store.StartReview(ctx, id)
}

// UpdateNotas replaces the free-form reviewer notes.
func (s *Service) UpdateNotas(ctx context.Context, id, notas string) (*models.ReconciliacaoMensal, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "id", id)
	}
	return s.store.UpdateNotas(ctx, id, notas)
}
