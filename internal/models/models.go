// Package models defines the domain model of the monthly sales
// reconciliation: the parsed mapa de vendas, the persisted reconciliation
// and its items, and the read-only client/sale records consulted during
// matching.
//
// All money fields use shopspring decimals stored as fixed-point columns;
// comparisons between independently rounded sources go through
// CompareAmountsWithTolerance rather than exact equality.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// EstadoReconciliacao is the review state of a monthly reconciliation.
type EstadoReconciliacao string

const (
	// EstadoPendente is the initial state, set at creation before any review.
	EstadoPendente EstadoReconciliacao = "PENDENTE"
	// EstadoEmRevisao means a reviewer has opened the reconciliation.
	EstadoEmRevisao EstadoReconciliacao = "EM_REVISAO"
	// EstadoAprovada means every item either matches or was resolved.
	EstadoAprovada EstadoReconciliacao = "APROVADA"
	// EstadoComProblemas means at least one item is neither matching nor resolved.
	EstadoComProblemas EstadoReconciliacao = "COM_PROBLEMAS"
)

// String returns the string representation of the estado
func (e EstadoReconciliacao) String() string {
	return string(e)
}

// IsValid checks if the estado is one of the known states
func (e EstadoReconciliacao) IsValid() bool {
	switch e {
	case EstadoPendente, EstadoEmRevisao, EstadoAprovada, EstadoComProblemas:
		return true
	}
	return false
}

// TipoDiscrepancia classifies why an item does not correspond.
type TipoDiscrepancia string

const (
	// DiscrepanciaValorDiferente: client and sale matched but values differ
	// beyond tolerance.
	DiscrepanciaValorDiferente TipoDiscrepancia = "VALOR_DIFERENTE"
	// DiscrepanciaClienteNaoExiste: the PDF code (and name fallback) resolved
	// no internal client.
	DiscrepanciaClienteNaoExiste TipoDiscrepancia = "CLIENTE_NAO_EXISTE"
	// DiscrepanciaVendaNaoExiste: client matched but no sale was recorded for
	// the period.
	DiscrepanciaVendaNaoExiste TipoDiscrepancia = "VENDA_NAO_EXISTE"
	// DiscrepanciaVendaExtra: an internal sale exists for the period but no
	// PDF line references its client.
	DiscrepanciaVendaExtra TipoDiscrepancia = "VENDA_EXTRA"
)

// String returns the string representation of the tipo
func (t TipoDiscrepancia) String() string {
	return string(t)
}

// IsValid checks if the tipo is one of the known discrepancy types
func (t TipoDiscrepancia) IsValid() bool {
	switch t {
	case DiscrepanciaValorDiferente, DiscrepanciaClienteNaoExiste,
		DiscrepanciaVendaNaoExiste, DiscrepanciaVendaExtra:
		return true
	}
	return false
}

// Cliente is a CRM client record. Owned by the client subsystem and
// consulted read-only by the matcher; this service never writes it.
type Cliente struct {
	ID     string `gorm:"primaryKey;size:36" json:"id"`
	Codigo string `gorm:"uniqueIndex;size:20;not null" json:"codigo"`
	Nome   string `gorm:"size:255;not null" json:"nome"`
	Cidade string `gorm:"size:120" json:"cidade,omitempty"`
}

// TableName maps Cliente onto the CRM's existing table.
func (Cliente) TableName() string { return "clientes" }

// Venda is an internal sale record. Owned by the sales subsystem and
// consulted read-only by the matcher.
type Venda struct {
	ID           string          `gorm:"primaryKey;size:36" json:"id"`
	ClienteID    string          `gorm:"index;size:36;not null" json:"clienteId"`
	DataVenda    time.Time       `gorm:"index;not null" json:"dataVenda"`
	ValorBruto   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"valorBruto"`
	Desconto     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"desconto"`
	ValorLiquido decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"valorLiquido"`
}

// TableName maps Venda onto the CRM's existing table.
func (Venda) TableName() string { return "vendas" }

// PdfClienteLine is one client row extracted from the mapa de vendas.
type PdfClienteLine struct {
	Codigo       string          `json:"codigo"`
	Nome         string          `json:"nome"`
	ValorBruto   decimal.Decimal `json:"valorBruto"`
	Desconto     decimal.Decimal `json:"desconto"`
	ValorLiquido decimal.Decimal `json:"valorLiquido"`
}

// ParsedMapaPdf is the ephemeral result of parsing a mapa de vendas
// document. It is never persisted as-is; the matcher turns its lines into
// ItemReconciliacao records.
//
// valorLiquido == valorBruto - desconto is expected per line but not
// guaranteed: documents carry rounding and transcription errors, which is
// exactly what reconciliation detects.
type ParsedMapaPdf struct {
	DataInicio     *time.Time       `json:"dataInicio"`
	DataFim        *time.Time       `json:"dataFim"`
	Vendedor       string           `json:"vendedor"`
	TotalBruto     decimal.Decimal  `json:"totalBruto"`
	TotalDescontos decimal.Decimal  `json:"totalDescontos"`
	TotalLiquido   decimal.Decimal  `json:"totalLiquido"`
	Clientes       []PdfClienteLine `json:"clientes"`
}

// ReconciliacaoMensal is the persisted summary of reconciling one uploaded
// mapa de vendas against internal sales for a (mes, ano) period.
//
// totalItens, itensCorretos, itensComProblema, totalSistema and diferenca
// are derived state: they are recomputed from the item set whenever any
// item changes and must never be edited directly.
type ReconciliacaoMensal struct {
	ID  string `gorm:"primaryKey;size:36" json:"id"`
	Mes int    `gorm:"index:idx_reconciliacoes_periodo;not null" json:"mes"`
	Ano int    `gorm:"index:idx_reconciliacoes_periodo;not null" json:"ano"`

	NomeArquivo    string     `gorm:"size:255;not null" json:"nomeArquivo"`
	CaminhoArquivo string     `gorm:"size:500;not null" json:"caminhoArquivo"`
	DataUpload     time.Time  `gorm:"autoCreateTime" json:"dataUpload"`
	DataInicio     *time.Time `json:"dataInicio"`
	DataFim        *time.Time `json:"dataFim"`
	Vendedor       string     `gorm:"size:255" json:"vendedor,omitempty"`

	// Declared totals as printed on the document.
	TotalBrutoPdf     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"totalBrutoPdf"`
	TotalDescontosPdf decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"totalDescontosPdf"`
	TotalLiquidoPdf   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"totalLiquidoPdf"`

	// Derived from internal data; diferenca = totalSistema - totalLiquidoPdf.
	TotalSistema decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"totalSistema"`
	Diferenca    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"diferenca"`

	TotalItens       int `gorm:"not null" json:"totalItens"`
	ItensCorretos    int `gorm:"not null" json:"itensCorretos"`
	ItensComProblema int `gorm:"not null" json:"itensComProblema"`

	Estado      EstadoReconciliacao `gorm:"size:20;not null;default:'PENDENTE'" json:"estado"`
	Notas       string              `gorm:"type:text" json:"notas,omitempty"`
	DataRevisao *time.Time          `json:"dataRevisao"`

	// Versao is bumped on every rollup write; an audit trail for the
	// serialized recompute, not the locking mechanism itself.
	Versao    int       `gorm:"not null;default:0" json:"versao"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`

	Itens []ItemReconciliacao `gorm:"foreignKey:ReconciliacaoID;constraint:OnDelete:CASCADE" json:"itens,omitempty"`
}

// TableName for the reconciliation summary table.
func (ReconciliacaoMensal) TableName() string { return "reconciliacoes_mensais" }

// BeforeCreate assigns an ID when the caller did not.
func (r *ReconciliacaoMensal) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// ItemReconciliacao is one line-level comparison result: a client row from
// the mapa matched (or not) against internal records, or a synthetic
// surplus line for an internal sale the mapa never mentions.
//
// The *Pdf fields are copied from the document at creation and never
// mutated. corresponde is computed by the matcher and immutable afterwards;
// resolvido is the independent human override — resolving never rewrites
// corresponde, so the discrepancy audit trail survives resolution.
type ItemReconciliacao struct {
	ID              string `gorm:"primaryKey;size:36" json:"id"`
	ReconciliacaoID string `gorm:"index;size:36;not null" json:"reconciliacaoId"`

	// Ordem preserves document order across storage: mapa lines first, in
	// the order they appear in the PDF, synthetic surplus items after.
	Ordem int `gorm:"not null;default:0" json:"ordem"`

	CodigoClientePdf string          `gorm:"size:20;not null" json:"codigoClientePdf"`
	NomeClientePdf   string          `gorm:"size:255;not null" json:"nomeClientePdf"`
	ValorBrutoPdf    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"valorBrutoPdf"`
	DescontoPdf      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"descontoPdf"`
	ValorLiquidoPdf  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"valorLiquidoPdf"`

	ClienteID *string `gorm:"size:36;index" json:"clienteId"`
	VendaID   *string `gorm:"size:36;index" json:"vendaId"`

	ValorSistema *decimal.Decimal `gorm:"type:decimal(12,2)" json:"valorSistema"`

	Corresponde      bool              `gorm:"not null" json:"corresponde"`
	TipoDiscrepancia *TipoDiscrepancia `gorm:"size:30" json:"tipoDiscrepancia"`
	DiferencaValor   *decimal.Decimal  `gorm:"type:decimal(12,2)" json:"diferencaValor"`

	Resolvido     bool   `gorm:"not null;default:false" json:"resolvido"`
	NotaResolucao string `gorm:"type:text" json:"notaResolucao,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`

	Cliente *Cliente `gorm:"foreignKey:ClienteID" json:"cliente,omitempty"`
	Venda   *Venda   `gorm:"foreignKey:VendaID" json:"venda,omitempty"`
}

// TableName for the item table.
func (ItemReconciliacao) TableName() string { return "itens_reconciliacao" }

// BeforeCreate assigns an ID when the caller did not.
func (i *ItemReconciliacao) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	return nil
}

// Pendente reports whether the item still demands reviewer attention:
// it neither corresponds nor was resolved by a human.
func (i *ItemReconciliacao) Pendente() bool {
	return !i.Corresponde && !i.Resolvido
}

// Validate checks the internal consistency the matcher must produce.
func (i *ItemReconciliacao) Validate() error {
	if strings.TrimSpace(i.ReconciliacaoID) == "" {
		return fmt.Errorf("item must belong to a reconciliation")
	}

	if i.Corresponde && i.TipoDiscrepancia != nil {
		return fmt.Errorf("corresponding item cannot carry a discrepancy type")
	}

	if i.TipoDiscrepancia != nil && !i.TipoDiscrepancia.IsValid() {
		return fmt.Errorf("invalid discrepancy type: %s", *i.TipoDiscrepancia)
	}

	if i.TipoDiscrepancia != nil {
		switch *i.TipoDiscrepancia {
		case DiscrepanciaClienteNaoExiste:
			if i.ClienteID != nil {
				return fmt.Errorf("CLIENTE_NAO_EXISTE item cannot reference a client")
			}
		case DiscrepanciaValorDiferente:
			if i.ClienteID == nil || i.VendaID == nil {
				return fmt.Errorf("VALOR_DIFERENTE item must reference client and sale")
			}
		}
	}

	return nil
}

// String returns a short representation for logs.
func (i *ItemReconciliacao) String() string {
	tipo := "-"
	if i.TipoDiscrepancia != nil {
		tipo = i.TipoDiscrepancia.String()
	}
	return fmt.Sprintf("Item{codigo: %s, corresponde: %t, tipo: %s, resolvido: %t}",
		i.CodigoClientePdf, i.Corresponde, tipo, i.Resolvido)
}

// Utility functions shared by the parser, matcher and aggregator.

// ParseDecimalBR parses a money value in Brazilian notation ("1.234,56").
// Plain dot-decimal input ("1234.56") is accepted as well, since some mapa
// generators emit it.
func ParseDecimalBR(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimSpace(s)

	if strings.Contains(s, ",") {
		// Brazilian notation: dots are thousand separators.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}

// CompareAmountsWithTolerance compares two decimal amounts with a tolerance.
// The epsilon absorbs sub-cent drift between independently rounded sources.
func CompareAmountsWithTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

// ValidatePeriodo checks a (mes, ano) reconciliation period.
func ValidatePeriodo(mes, ano int) error {
	if mes < 1 || mes > 12 {
		return fmt.Errorf("mes must be between 1 and 12, got %d", mes)
	}
	if ano < 2000 || ano > 2100 {
		return fmt.Errorf("ano out of range: %d", ano)
	}
	return nil
}

// PeriodoBounds returns the half-open [start, end) interval covering the
// given month, for period-scoped sale lookups.
func PeriodoBounds(mes, ano int) (time.Time, time.Time) {
	start := time.Date(ano, time.Month(mes), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// ParseDateBR parses a dd/mm/yyyy date as printed on mapa headers.
func ParseDateBR(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse("02/01/2006", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date '%s': %w", s, err)
	}
	return t, nil
}
