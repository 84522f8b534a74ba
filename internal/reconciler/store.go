package reconciler

import (
	"context"

	"baborette-reconciliation-service/internal/models"
)

// ItemPatch is a partial update of an item's resolution fields. Nil fields
// are left untouched, so a reviewer can set a note without toggling the
// resolved flag and vice versa.
type ItemPatch struct {
	Resolvido     *bool
	NotaResolucao *string
}

// IsEmpty reports whether the patch changes nothing.
func (p ItemPatch) IsEmpty() bool {
	return p.Resolvido == nil && p.NotaResolucao == nil
}

// ListFilter narrows reconciliation listings.
type ListFilter struct {
	Mes    *int
	Ano    *int
	Estado *models.EstadoReconciliacao
}

// ReconciliacaoStore persists reconciliations and their items.
//
// UpdateItem must apply the patch and refresh the parent's derived fields
// in one transaction, holding the parent row so concurrent resolutions of
// sibling items serialize. An itemID that exists under a different
// reconciliation is reported as not found, the same as an absent one.
type ReconciliacaoStore interface {
	Create(ctx context.Context, rec *models.ReconciliacaoMensal) error
	GetByID(ctx context.Context, id string) (*models.ReconciliacaoMensal, error)
	List(ctx context.Context, filter ListFilter) ([]*models.ReconciliacaoMensal, error)
	UpdateItem(ctx context.Context, reconciliacaoID, itemID string, patch ItemPatch) (*models.ReconciliacaoMensal, error)
	StartReview(ctx context.Context, id string) (*models.ReconciliacaoMensal, error)
	UpdateNotas(ctx context.Context, id, notas string) (*models.ReconciliacaoMensal, error)
}
