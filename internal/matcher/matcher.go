package matcher

import (
	"context"

	"baborette-reconciliation-service/internal/models"
	"baborette-reconciliation-service/pkg/errors"
	"baborette-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// ClienteRegistry is the read-only view of the CRM client base the engine
// needs. Lookups return (nil, nil) when no record exists; a non-nil error
// means the registry itself failed and the whole batch must abort.
type ClienteRegistry interface {
	FindByCodigo(ctx context.Context, codigo string) (*models.Cliente, error)
	FindByNomeNormalizado(ctx context.Context, nome string) (*models.Cliente, error)
	FindByID(ctx context.Context, id string) (*models.Cliente, error)
}

// VendaRegistry is the read-only view of internal sales, scoped to a
// reconciliation period.
type VendaRegistry interface {
	ListByClientePeriodo(ctx context.Context, clienteID string, mes, ano int) ([]*models.Venda, error)
	ListByPeriodo(ctx context.Context, mes, ano int) ([]*models.Venda, error)
}

// Engine matches parsed mapa lines against the registries and produces
// classified reconciliation items.
type Engine struct {
	config   *MatchConfig
	clientes ClienteRegistry
	vendas   VendaRegistry
	log      logger.Logger
}

// NewEngine creates a matching engine over the given registries.
func NewEngine(config *MatchConfig, clientes ClienteRegistry, vendas VendaRegistry) (*Engine, error) {
	if config == nil {
		config = DefaultMatchConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matcher", err)
	}
	if clientes == nil || vendas == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "matcher registries", nil)
	}

	return &Engine{
		config:   config,
		clientes: clientes,
		vendas:   vendas,
		log:      logger.GetGlobalLogger().WithComponent("matcher"),
	}, nil
}

// Match classifies every client line of the parsed mapa against the
// registries for the (mes, ano) period, then appends one synthetic
// VENDA_EXTRA item per internal client that has period sales but no mapa
// line. Document order is preserved; synthetic items come last.
//
// Registry failures abort the whole batch: a partially matched result would
// misreport absence discrepancies for lines that were never looked up.
func (e *Engine) Match(ctx context.Context, parsed *models.ParsedMapaPdf, mes, ano int) ([]*models.ItemReconciliacao, error) {
	if err := models.ValidatePeriodo(mes, ano); err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidPeriod, "periodo", err.Error())
	}

	items := make([]*models.ItemReconciliacao, 0, len(parsed.Clientes))
	matchedClientes := make(map[string]bool)

	for i := range parsed.Clientes {
		line := &parsed.Clientes[i]
		item, err := e.matchLine(ctx, line, mes, ano)
		if err != nil {
			return nil, err
		}
		if item.ClienteID != nil {
			matchedClientes[*item.ClienteID] = true
		}
		items = append(items, item)
	}

	extras, err := e.surplusItems(ctx, matchedClientes, mes, ano)
	if err != nil {
		return nil, err
	}
	items = append(items, extras...)

	correct := 0
	for _, it := range items {
		if it.Corresponde {
			correct++
		}
	}
	e.log.WithFields(logger.Fields{
		"mes":         mes,
		"ano":         ano,
		"lines":       len(parsed.Clientes),
		"extras":      len(extras),
		"corresponde": correct,
	}).Info("matching completed")

	return items, nil
}

// matchLine classifies one mapa line. Priority: client identity first, sale
// existence second, value comparison last.
func (e *Engine) matchLine(ctx context.Context, line *models.PdfClienteLine, mes, ano int) (*models.ItemReconciliacao, error) {
	item := &models.ItemReconciliacao{
		CodigoClientePdf: line.Codigo,
		NomeClientePdf:   line.Nome,
		ValorBrutoPdf:    line.ValorBruto,
		DescontoPdf:      line.Desconto,
		ValorLiquidoPdf:  line.ValorLiquido,
	}

	cliente, err := e.clientes.FindByCodigo(ctx, line.Codigo)
	if err != nil {
		return nil, errors.ReconciliationError(errors.CodeMatchingFailed, "client lookup", err).
			WithContext("codigo", line.Codigo)
	}

	if cliente == nil && e.config.EnableNameFallback {
		cliente, err = e.clientes.FindByNomeNormalizado(ctx, NormalizeNome(line.Nome))
		if err != nil {
			return nil, errors.ReconciliationError(errors.CodeMatchingFailed, "client name lookup", err).
				WithContext("nome", line.Nome)
		}
		if cliente != nil {
			e.log.WithFields(logger.Fields{
				"codigo_pdf": line.Codigo,
				"cliente_id": cliente.ID,
			}).Debug("client resolved via name fallback")
		}
	}

	if cliente == nil {
		tipo := models.DiscrepanciaClienteNaoExiste
		item.TipoDiscrepancia = &tipo
		return item, nil
	}
	item.ClienteID = &cliente.ID

	vendas, err := e.vendas.ListByClientePeriodo(ctx, cliente.ID, mes, ano)
	if err != nil {
		return nil, errors.ReconciliationError(errors.CodeMatchingFailed, "sale lookup", err).
			WithContext("cliente_id", cliente.ID)
	}

	if len(vendas) == 0 {
		tipo := models.DiscrepanciaVendaNaoExiste
		item.TipoDiscrepancia = &tipo
		return item, nil
	}

	valorSistema, venda := e.aggregateVendas(vendas)
	item.VendaID = &venda.ID
	item.ValorSistema = &valorSistema

	if models.CompareAmountsWithTolerance(valorSistema, line.ValorLiquido, e.config.ValueTolerance) {
		item.Corresponde = true
		return item, nil
	}

	tipo := models.DiscrepanciaValorDiferente
	diferenca := valorSistema.Sub(line.ValorLiquido)
	item.TipoDiscrepancia = &tipo
	item.DiferencaValor = &diferenca
	return item, nil
}

// surplusItems builds one VENDA_EXTRA item per client that has sales in the
// period but was never resolved from a mapa line. Sales of a matched client
// are already covered by that client's line (whatever its classification),
// so they never show up again here.
func (e *Engine) surplusItems(ctx context.Context, matchedClientes map[string]bool, mes, ano int) ([]*models.ItemReconciliacao, error) {
	vendas, err := e.vendas.ListByPeriodo(ctx, mes, ano)
	if err != nil {
		return nil, errors.ReconciliationError(errors.CodeMatchingFailed, "period sale scan", err)
	}

	// Group by client, preserving first-appearance order.
	var order []string
	grouped := make(map[string][]*models.Venda)
	for _, v := range vendas {
		if matchedClientes[v.ClienteID] {
			continue
		}
		if _, seen := grouped[v.ClienteID]; !seen {
			order = append(order, v.ClienteID)
		}
		grouped[v.ClienteID] = append(grouped[v.ClienteID], v)
	}

	var items []*models.ItemReconciliacao
	for _, clienteID := range order {
		cliente, err := e.clientes.FindByID(ctx, clienteID)
		if err != nil {
			return nil, errors.ReconciliationError(errors.CodeMatchingFailed, "surplus client lookup", err).
				WithContext("cliente_id", clienteID)
		}

		valorSistema, venda := e.aggregateVendas(grouped[clienteID])

		tipo := models.DiscrepanciaVendaExtra
		cid := clienteID
		vid := venda.ID
		item := &models.ItemReconciliacao{
			ValorBrutoPdf:    decimal.Zero,
			DescontoPdf:      decimal.Zero,
			ValorLiquidoPdf:  decimal.Zero,
			ClienteID:        &cid,
			VendaID:          &vid,
			ValorSistema:     &valorSistema,
			TipoDiscrepancia: &tipo,
		}
		// The sale row may reference a client the registry no longer has;
		// the item still surfaces, with only the ID to go on.
		if cliente != nil {
			item.CodigoClientePdf = cliente.Codigo
			item.NomeClientePdf = cliente.Nome
		}
		items = append(items, item)
	}

	return items, nil
}

// aggregateVendas reduces a client's period sales to a single comparison
// value and the sale that carries the item link.
func (e *Engine) aggregateVendas(vendas []*models.Venda) (decimal.Decimal, *models.Venda) {
	latest := vendas[0]
	for _, v := range vendas[1:] {
		if !v.DataVenda.Before(latest.DataVenda) {
			latest = v
		}
	}

	if e.config.MultiSalePolicy == MultiSaleLatest {
		return latest.ValorLiquido, latest
	}

	total := decimal.Zero
	for _, v := range vendas {
		total = total.Add(v.ValorLiquido)
	}
	return total, latest
}
