package matcher

import (
	"context"
	"fmt"
	"testing"
	"time"

	"baborette-reconciliation-service/internal/models"
	"baborette-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
)

// fakeRegistry backs both registry interfaces with in-memory slices.
type fakeRegistry struct {
	clientes []*models.Cliente
	vendas   []*models.Venda
	failWith error
}

func (f *fakeRegistry) FindByCodigo(_ context.Context, codigo string) (*models.Cliente, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	for _, c := range f.clientes {
		if c.Codigo == codigo {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeRegistry) FindByNomeNormalizado(_ context.Context, nome string) (*models.Cliente, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	for _, c := range f.clientes {
		if NormalizeNome(c.Nome) == nome {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeRegistry) FindByID(_ context.Context, id string) (*models.Cliente, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	for _, c := range f.clientes {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeRegistry) ListByClientePeriodo(_ context.Context, clienteID string, mes, ano int) ([]*models.Venda, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	start, end := models.PeriodoBounds(mes, ano)
	var out []*models.Venda
	for _, v := range f.vendas {
		if v.ClienteID == clienteID && !v.DataVenda.Before(start) && v.DataVenda.Before(end) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeRegistry) ListByPeriodo(_ context.Context, mes, ano int) ([]*models.Venda, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	start, end := models.PeriodoBounds(mes, ano)
	var out []*models.Venda
	for _, v := range f.vendas {
		if !v.DataVenda.Before(start) && v.DataVenda.Before(end) {
			out = append(out, v)
		}
	}
	return out, nil
}

func venda(id, clienteID string, day int, liquido float64) *models.Venda {
	d := decimal.NewFromFloat(liquido)
	return &models.Venda{
		ID:           id,
		ClienteID:    clienteID,
		DataVenda:    time.Date(2025, time.March, day, 0, 0, 0, 0, time.UTC),
		ValorBruto:   d,
		Desconto:     decimal.Zero,
		ValorLiquido: d,
	}
}

func line(codigo, nome string, liquido float64) models.PdfClienteLine {
	d := decimal.NewFromFloat(liquido)
	return models.PdfClienteLine{
		Codigo:       codigo,
		Nome:         nome,
		ValorBruto:   d,
		Desconto:     decimal.Zero,
		ValorLiquido: d,
	}
}

func mustEngine(t *testing.T, cfg *MatchConfig, reg *fakeRegistry) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, reg, reg)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return e
}

func TestEngine_Match_CorrespondeWithinTolerance(t *testing.T) {
	reg := &fakeRegistry{
		clientes: []*models.Cliente{{ID: "c-1", Codigo: "C0010", Nome: "Farmacia Sao Jose"}},
		vendas:   []*models.Venda{venda("v-1", "c-1", 5, 1200.004)},
	}
	e := mustEngine(t, nil, reg)

	parsed := &models.ParsedMapaPdf{Clientes: []models.PdfClienteLine{
		line("C0010", "FARMACIA SAO JOSE", 1200.00),
	}}

	items, err := e.Match(context.Background(), parsed, 3, 2025)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}

	item := items[0]
	if !item.Corresponde {
		t.Error("Expected sub-cent drift to correspond within 0.01")
	}
	if item.TipoDiscrepancia != nil {
		t.Errorf("Expected no discrepancy type, got %s", *item.TipoDiscrepancia)
	}
	if item.DiferencaValor != nil {
		t.Errorf("Expected nil diferenca for corresponding item, got %s", *item.DiferencaValor)
	}
	if item.ClienteID == nil || *item.ClienteID != "c-1" {
		t.Error("Expected client link on corresponding item")
	}
	if item.VendaID == nil || *item.VendaID != "v-1" {
		t.Error("Expected sale link on corresponding item")
	}
	if err := item.Validate(); err != nil {
		t.Errorf("Matcher produced inconsistent item: %v", err)
	}
}

func TestEngine_Match_ValorDiferente(t *testing.T) {
	reg := &fakeRegistry{
		clientes: []*models.Cliente{{ID: "c-1", Codigo: "C0010", Nome: "Farmacia Sao Jose"}},
		vendas:   []*models.Venda{venda("v-1", "c-1", 5, 1150.00)},
	}
	e := mustEngine(t, nil, reg)

	parsed := &models.ParsedMapaPdf{Clientes: []models.PdfClienteLine{
		line("C0010", "FARMACIA SAO JOSE", 1200.00),
	}}

	items, err := e.Match(context.Background(), parsed, 3, 2025)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}

	item := items[0]
	if item.Corresponde {
		t.Error("Expected value mismatch beyond tolerance")
	}
	if item.TipoDiscrepancia == nil || *item.TipoDiscrepancia != models.DiscrepanciaValorDiferente {
		t.Fatalf("Expected VALOR_DIFERENTE, got %v", item.TipoDiscrepancia)
	}
	// diferenca = sistema - pdf, negative when the mapa claims more.
	if item.DiferencaValor == nil || !item.DiferencaValor.Equal(decimal.NewFromFloat(-50.00)) {
		t.Errorf("Expected diferenca -50.00, got %v", item.DiferencaValor)
	}
	if err := item.Validate(); err != nil {
		t.Errorf("Matcher produced inconsistent item: %v", err)
	}
}

func TestEngine_Match_ClienteNaoExiste(t *testing.T) {
	reg := &fakeRegistry{
		clientes: []*models.Cliente{{ID: "c-1", Codigo: "C0010", Nome: "Farmacia Sao Jose"}},
	}
	e := mustEngine(t, nil, reg)

	parsed := &models.ParsedMapaPdf{Clientes: []models.PdfClienteLine{
		line("C0042", "MERCADO BOA VISTA", 2000.00),
	}}

	items, err := e.Match(context.Background(), parsed, 3, 2025)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}

	item := items[0]
	if item.ClienteID != nil {
		t.Error("Expected nil clienteId for unknown client")
	}
	if item.TipoDiscrepancia == nil || *item.TipoDiscrepancia != models.DiscrepanciaClienteNaoExiste {
		t.Fatalf("Expected CLIENTE_NAO_EXISTE, got %v", item.TipoDiscrepancia)
	}
	if item.CodigoClientePdf != "C0042" || item.NomeClientePdf != "MERCADO BOA VISTA" {
		t.Error("Expected document fields preserved on unknown client item")
	}
	if err := item.Validate(); err != nil {
		t.Errorf("Matcher produced inconsistent item: %v", err)
	}
}

func TestEngine_Match_VendaNaoExiste(t *testing.T) {
	reg := &fakeRegistry{
		clientes: []*models.Cliente{{ID: "c-1", Codigo: "C0010", Nome: "Farmacia Sao Jose"}},
		// Sale exists only outside the period.
		vendas: []*models.Venda{venda("v-old", "c-1", 5, 1200.00)},
	}
	e := mustEngine(t, nil, reg)

	parsed := &models.ParsedMapaPdf{Clientes: []models.PdfClienteLine{
		line("C0010", "FARMACIA SAO JOSE", 1200.00),
	}}

	items, err := e.Match(context.Background(), parsed, 4, 2025)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}

	item := items[0]
	if item.TipoDiscrepancia == nil || *item.TipoDiscrepancia != models.DiscrepanciaVendaNaoExiste {
		t.Fatalf("Expected VENDA_NAO_EXISTE, got %v", item.TipoDiscrepancia)
	}
	if item.ClienteID == nil {
		t.Error("Expected client link even without a sale")
	}
	if item.VendaID != nil || item.ValorSistema != nil {
		t.Error("Expected no sale link or system value without period sales")
	}
}

func TestEngine_Match_NameFallback(t *testing.T) {
	reg := &fakeRegistry{
		clientes: []*models.Cliente{{ID: "c-1", Codigo: "C0010", Nome: "Farmácia São José"}},
		vendas:   []*models.Venda{venda("v-1", "c-1", 5, 1200.00)},
	}
	e := mustEngine(t, nil, reg)

	// Transcribed code has a typo; the unaccented uppercase name still resolves.
	parsed := &models.ParsedMapaPdf{Clientes: []models.PdfClienteLine{
		line("C0100", "FARMACIA  SAO JOSE", 1200.00),
	}}

	items, err := e.Match(context.Background(), parsed, 3, 2025)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}

	item := items[0]
	if item.ClienteID == nil || *item.ClienteID != "c-1" {
		t.Fatal("Expected name fallback to resolve the client")
	}
	if !item.Corresponde {
		t.Error("Expected fallback-resolved client to correspond on value")
	}
}

func TestEngine_Match_StrictDisablesFallback(t *testing.T) {
	reg := &fakeRegistry{
		clientes: []*models.Cliente{{ID: "c-1", Codigo: "C0010", Nome: "Farmacia Sao Jose"}},
		vendas:   []*models.Venda{venda("v-1", "c-1", 5, 1200.00)},
	}
	e := mustEngine(t, StrictMatchConfig(), reg)

	parsed := &models.ParsedMapaPdf{Clientes: []models.PdfClienteLine{
		line("C0100", "FARMACIA SAO JOSE", 1200.00),
	}}

	items, err := e.Match(context.Background(), parsed, 3, 2025)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}

	if items[0].TipoDiscrepancia == nil || *items[0].TipoDiscrepancia != models.DiscrepanciaClienteNaoExiste {
		t.Error("Expected strict config to skip the name fallback")
	}
}

func TestEngine_Match_VendaExtra(t *testing.T) {
	reg := &fakeRegistry{
		clientes: []*models.Cliente{
			{ID: "c-1", Codigo: "C0010", Nome: "Farmacia Sao Jose"},
			{ID: "c-2", Codigo: "C0021", Nome: "Drogaria Central"},
		},
		vendas: []*models.Venda{
			venda("v-1", "c-1", 5, 1200.00),
			venda("v-2", "c-2", 10, 830.50),
		},
	}
	e := mustEngine(t, nil, reg)

	// The mapa only mentions C0010; c-2's sale must surface as surplus.
	parsed := &models.ParsedMapaPdf{Clientes: []models.PdfClienteLine{
		line("C0010", "FARMACIA SAO JOSE", 1200.00),
	}}

	items, err := e.Match(context.Background(), parsed, 3, 2025)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected line item plus surplus item, got %d", len(items))
	}

	extra := items[1]
	if extra.TipoDiscrepancia == nil || *extra.TipoDiscrepancia != models.DiscrepanciaVendaExtra {
		t.Fatalf("Expected VENDA_EXTRA, got %v", extra.TipoDiscrepancia)
	}
	if extra.ClienteID == nil || *extra.ClienteID != "c-2" {
		t.Error("Expected surplus item linked to the internal client")
	}
	if extra.VendaID == nil || *extra.VendaID != "v-2" {
		t.Error("Expected surplus item linked to the internal sale")
	}
	if extra.ValorSistema == nil || !extra.ValorSistema.Equal(decimal.NewFromFloat(830.50)) {
		t.Errorf("Expected system value 830.50, got %v", extra.ValorSistema)
	}
	if !extra.ValorLiquidoPdf.IsZero() {
		t.Error("Expected zero document value on surplus item")
	}
	if extra.CodigoClientePdf != "C0021" || extra.NomeClientePdf != "Drogaria Central" {
		t.Error("Expected registry code and name displayed on surplus item")
	}
	if extra.Corresponde {
		t.Error("Surplus items never correspond")
	}
}

func TestEngine_Match_MatchedClientSalesNotSurplus(t *testing.T) {
	reg := &fakeRegistry{
		clientes: []*models.Cliente{{ID: "c-1", Codigo: "C0010", Nome: "Farmacia Sao Jose"}},
		vendas: []*models.Venda{
			venda("v-1", "c-1", 5, 700.00),
			venda("v-2", "c-1", 20, 500.00),
		},
	}
	e := mustEngine(t, nil, reg)

	parsed := &models.ParsedMapaPdf{Clientes: []models.PdfClienteLine{
		line("C0010", "FARMACIA SAO JOSE", 1200.00),
	}}

	items, err := e.Match(context.Background(), parsed, 3, 2025)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Sales of a matched client must not reappear as surplus, got %d items", len(items))
	}
	if !items[0].Corresponde {
		t.Error("Expected summed sales 700+500 to match line 1200.00")
	}
}

func TestEngine_Match_MultiSalePolicies(t *testing.T) {
	reg := &fakeRegistry{
		clientes: []*models.Cliente{{ID: "c-1", Codigo: "C0010", Nome: "Farmacia Sao Jose"}},
		vendas: []*models.Venda{
			venda("v-early", "c-1", 3, 700.00),
			venda("v-late", "c-1", 25, 500.00),
		},
	}

	parsed := &models.ParsedMapaPdf{Clientes: []models.PdfClienteLine{
		line("C0010", "FARMACIA SAO JOSE", 500.00),
	}}

	// Sum policy: compares against 1200.00, mismatch; latest sale carries the link.
	sum := mustEngine(t, nil, reg)
	items, err := sum.Match(context.Background(), parsed, 3, 2025)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if items[0].Corresponde {
		t.Error("Sum policy should compare against the summed 1200.00")
	}
	if items[0].VendaID == nil || *items[0].VendaID != "v-late" {
		t.Errorf("Expected latest sale linked under sum policy, got %v", items[0].VendaID)
	}

	// Latest policy: compares against 500.00 only.
	cfg := DefaultMatchConfig()
	cfg.MultiSalePolicy = MultiSaleLatest
	latest := mustEngine(t, cfg, reg)
	items, err = latest.Match(context.Background(), parsed, 3, 2025)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if !items[0].Corresponde {
		t.Error("Latest policy should compare against the most recent sale only")
	}
}

func TestEngine_Match_RegistryFailureAbortsBatch(t *testing.T) {
	reg := &fakeRegistry{failWith: fmt.Errorf("connection refused")}
	e := mustEngine(t, nil, reg)

	parsed := &models.ParsedMapaPdf{Clientes: []models.PdfClienteLine{
		line("C0010", "FARMACIA SAO JOSE", 1200.00),
	}}

	items, err := e.Match(context.Background(), parsed, 3, 2025)
	if err == nil {
		t.Fatal("Expected registry failure to abort the batch")
	}
	if items != nil {
		t.Error("Expected no partial result on batch failure")
	}

	re, ok := errors.AsReconcilerError(err)
	if !ok || re.Code != errors.CodeMatchingFailed {
		t.Errorf("Expected matching_failed error, got %v", err)
	}
}

func TestEngine_Match_InvalidPeriod(t *testing.T) {
	e := mustEngine(t, nil, &fakeRegistry{})
	_, err := e.Match(context.Background(), &models.ParsedMapaPdf{}, 13, 2025)
	if err == nil {
		t.Fatal("Expected error for invalid period")
	}
}

func TestNormalizeNome(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Farmácia São José", "farmacia sao jose"},
		{"FARMACIA  SAO   JOSE", "farmacia sao jose"},
		{"  Drogaria Central LTDA ", "drogaria central ltda"},
	}
	for _, tt := range tests {
		if got := NormalizeNome(tt.in); got != tt.want {
			t.Errorf("NormalizeNome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMatchConfig_Validate(t *testing.T) {
	cfg := DefaultMatchConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}

	cfg.ValueTolerance = decimal.NewFromFloat(-0.01)
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for negative tolerance")
	}

	cfg = DefaultMatchConfig()
	cfg.MultiSalePolicy = "flag"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for unknown multi-sale policy")
	}
}
