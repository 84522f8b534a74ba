// Package reconciler orchestrates the reconciliation pipeline (extract,
// parse, match, persist) and owns the derived-state rules of the monthly
// summary.
//
// The summary's counters, totals and review state are pure functions of the
// item set. They are never edited directly: creation goes through
// BuildResumo, every item mutation goes through Recompute, and both produce
// the same counters for the same items.
package reconciler

import (
	"github.com/shopspring/decimal"

	"baborette-reconciliation-service/internal/models"
)

type rollup struct {
	totalItens       int
	itensCorretos    int
	itensComProblema int
	totalSistema     decimal.Decimal
}

// computeRollup reduces the item set to the derived counters.
//
// itensCorretos counts items that correspond or were resolved by a human;
// itensComProblema counts the rest, the ones still demanding attention. The
// two always sum to totalItens. Resolution moves an item between the
// buckets without touching corresponde, so the original comparison outcome
// stays readable on the item itself.
func computeRollup(itens []models.ItemReconciliacao) rollup {
	r := rollup{totalSistema: decimal.Zero}
	for i := range itens {
		item := &itens[i]
		r.totalItens++
		if item.Pendente() {
			r.itensComProblema++
		} else {
			r.itensCorretos++
		}
		if item.ValorSistema != nil {
			r.totalSistema = r.totalSistema.Add(*item.ValorSistema)
		}
	}
	return r
}

func (r *rollup) apply(rec *models.ReconciliacaoMensal) {
	rec.TotalItens = r.totalItens
	rec.ItensCorretos = r.itensCorretos
	rec.ItensComProblema = r.itensComProblema
	rec.TotalSistema = r.totalSistema
	rec.Diferenca = r.totalSistema.Sub(rec.TotalLiquidoPdf)
}

// BuildResumo fills the derived fields of a freshly matched reconciliation.
// The review state stays PENDENTE: discrepancies found at creation are for
// a human to look at, not an automatic verdict.
func BuildResumo(rec *models.ReconciliacaoMensal) {
	r := computeRollup(rec.Itens)
	r.apply(rec)
	rec.Estado = models.EstadoPendente
}

// Recompute refreshes the derived fields after an item mutation and settles
// the review state: COM_PROBLEMAS while any item is neither corresponding
// nor resolved, APROVADA once none is. Recompute is idempotent; running it
// twice over the same items changes nothing.
func Recompute(rec *models.ReconciliacaoMensal) {
	r := computeRollup(rec.Itens)
	r.apply(rec)
	if r.itensComProblema > 0 {
		rec.Estado = models.EstadoComProblemas
	} else {
		rec.Estado = models.EstadoAprovada
	}
}
