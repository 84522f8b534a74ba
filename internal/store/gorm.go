// Package store is the MySQL persistence layer. One gorm-backed Store
// serves both sides of the pipeline: the read-only client/sale registry
// views consumed by the matcher, and the reconciliation store consumed by
// the reconciler service.
package store

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"baborette-reconciliation-service/internal/models"
	"baborette-reconciliation-service/internal/reconciler"
	"baborette-reconciliation-service/pkg/errors"
	"baborette-reconciliation-service/pkg/logger"
)

// Store implements matcher.ClienteRegistry, matcher.VendaRegistry and
// reconciler.ReconciliacaoStore over one gorm connection.
type Store struct {
	db  *gorm.DB
	log logger.Logger
}

// Open connects to MySQL and migrates the tables this service owns.
// The clientes and vendas tables belong to the CRM schema and are never
// migrated or written from here.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeStoreUnavailable, "open", err)
	}

	if err := db.AutoMigrate(&models.ReconciliacaoMensal{}, &models.ItemReconciliacao{}); err != nil {
		return nil, errors.PersistenceError(errors.CodeStoreUnavailable, "migrate", err)
	}

	return NewWithDB(db), nil
}

// NewWithDB wraps an already open gorm connection.
func NewWithDB(db *gorm.DB) *Store {
	return &Store{
		db:  db,
		log: logger.GetGlobalLogger().WithComponent("store"),
	}
}

// Registry views.

// FindByCodigo looks a client up by its CRM code.
func (s *Store) FindByCodigo(ctx context.Context, codigo string) (*models.Cliente, error) {
	var cliente models.Cliente
	err := s.db.WithContext(ctx).Where("codigo = ?", codigo).First(&cliente).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeStoreUnavailable, "client lookup", err)
	}
	return &cliente, nil
}

// FindByNomeNormalizado resolves a client by normalized name. The clientes
// table uses an accent- and case-insensitive collation, which equates case
// and accents but not spacing; both sides are compared space-stripped so a
// stored name with doubled internal spaces still resolves.
func (s *Store) FindByNomeNormalizado(ctx context.Context, nome string) (*models.Cliente, error) {
	var cliente models.Cliente
	compact := strings.ReplaceAll(nome, " ", "")
	err := s.db.WithContext(ctx).Where("REPLACE(nome, ' ', '') = ?", compact).First(&cliente).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeStoreUnavailable, "client name lookup", err)
	}
	return &cliente, nil
}

// FindByID loads a client by primary key.
func (s *Store) FindByID(ctx context.Context, id string) (*models.Cliente, error) {
	var cliente models.Cliente
	err := s.db.WithContext(ctx).First(&cliente, "id = ?", id).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeStoreUnavailable, "client lookup", err)
	}
	return &cliente, nil
}

// ListByClientePeriodo returns one client's sales inside the month, oldest
// first.
func (s *Store) ListByClientePeriodo(ctx context.Context, clienteID string, mes, ano int) ([]*models.Venda, error) {
	start, end := models.PeriodoBounds(mes, ano)
	var vendas []*models.Venda
	err := s.db.WithContext(ctx).
		Where("cliente_id = ? AND data_venda >= ? AND data_venda < ?", clienteID, start, end).
		Order("data_venda, id").
		Find(&vendas).Error
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeStoreUnavailable, "sale lookup", err)
	}
	return vendas, nil
}

// ListByPeriodo returns every sale inside the month, oldest first.
func (s *Store) ListByPeriodo(ctx context.Context, mes, ano int) ([]*models.Venda, error) {
	start, end := models.PeriodoBounds(mes, ano)
	var vendas []*models.Venda
	err := s.db.WithContext(ctx).
		Where("data_venda >= ? AND data_venda < ?", start, end).
		Order("data_venda, id").
		Find(&vendas).Error
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeStoreUnavailable, "period sale scan", err)
	}
	return vendas, nil
}

// Reconciliation store.

// Create persists a reconciliation and its items in one transaction.
func (s *Store) Create(ctx context.Context, rec *models.ReconciliacaoMensal) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return errors.PersistenceError(errors.CodeTransactionFailed, "create reconciliation", err)
	}
	return nil
}

// GetByID loads a reconciliation with its items in document order.
func (s *Store) GetByID(ctx context.Context, id string) (*models.ReconciliacaoMensal, error) {
	var rec models.ReconciliacaoMensal
	err := s.db.WithContext(ctx).
		Preload("Itens", func(db *gorm.DB) *gorm.DB { return db.Order("ordem") }).
		Preload("Itens.Cliente").
		Preload("Itens.Venda").
		First(&rec, "id = ?", id).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.NotFoundError("reconciliacao", id)
	}
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeStoreUnavailable, "load reconciliation", err)
	}
	return &rec, nil
}

// List returns reconciliation summaries without items, newest period first.
func (s *Store) List(ctx context.Context, filter reconciler.ListFilter) ([]*models.ReconciliacaoMensal, error) {
	q := s.db.WithContext(ctx).Model(&models.ReconciliacaoMensal{})
	if filter.Mes != nil {
		q = q.Where("mes = ?", *filter.Mes)
	}
	if filter.Ano != nil {
		q = q.Where("ano = ?", *filter.Ano)
	}
	if filter.Estado != nil {
		q = q.Where("estado = ?", *filter.Estado)
	}

	var recs []*models.ReconciliacaoMensal
	if err := q.Order("ano DESC, mes DESC, data_upload DESC").Find(&recs).Error; err != nil {
		return nil, errors.PersistenceError(errors.CodeStoreUnavailable, "list reconciliations", err)
	}
	return recs, nil
}

// UpdateItem applies a resolution patch to one item and recomputes the
// parent's derived state, all inside one transaction. The parent row is
// locked first so concurrent patches of sibling items serialize and each
// recompute sees the other's write.
func (s *Store) UpdateItem(ctx context.Context, reconciliacaoID, itemID string, patch reconciler.ItemPatch) (*models.ReconciliacaoMensal, error) {
	var rec models.ReconciliacaoMensal

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&rec, "id = ?", reconciliacaoID).Error
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return errors.NotFoundError("reconciliacao", reconciliacaoID)
		}
		if err != nil {
			return err
		}

		// Scoping by parent makes an item under another reconciliation
		// indistinguishable from an absent one.
		var item models.ItemReconciliacao
		err = tx.First(&item, "id = ? AND reconciliacao_id = ?", itemID, reconciliacaoID).Error
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return errors.NotFoundError("item", itemID)
		}
		if err != nil {
			return err
		}

		// Map-based update so false and "" are written, not skipped.
		updates := map[string]interface{}{}
		if patch.Resolvido != nil {
			updates["resolvido"] = *patch.Resolvido
		}
		if patch.NotaResolucao != nil {
			updates["nota_resolucao"] = *patch.NotaResolucao
		}
		if err := tx.Model(&item).Updates(updates).Error; err != nil {
			return err
		}

		if err := tx.Order("ordem").Find(&rec.Itens, "reconciliacao_id = ?", reconciliacaoID).Error; err != nil {
			return err
		}

		reconciler.Recompute(&rec)
		rec.Versao++

		return tx.Model(&models.ReconciliacaoMensal{}).
			Where("id = ?", reconciliacaoID).
			Updates(map[string]interface{}{
				"total_itens":        rec.TotalItens,
				"itens_corretos":     rec.ItensCorretos,
				"itens_com_problema": rec.ItensComProblema,
				"total_sistema":      rec.TotalSistema,
				"diferenca":          rec.Diferenca,
				"estado":             rec.Estado,
				"versao":             rec.Versao,
			}).Error
	})
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryPersistence,
			errors.CodeTransactionFailed, "item update failed")
	}

	s.log.WithFields(logger.Fields{
		"reconciliacao": reconciliacaoID,
		"item":          itemID,
		"estado":        rec.Estado,
		"versao":        rec.Versao,
	}).Debug("item patched and rollup recomputed")

	// Re-read after commit so the returned items carry their client and
	// sale projections; the in-transaction reload is counters-only.
	return s.GetByID(ctx, reconciliacaoID)
}

// StartReview moves a reconciliation into EM_REVISAO and stamps the review
// time. Approved reconciliations and reviews already in progress reject the
// transition.
func (s *Store) StartReview(ctx context.Context, id string) (*models.ReconciliacaoMensal, error) {
	var rec models.ReconciliacaoMensal

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&rec, "id = ?", id).Error
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return errors.NotFoundError("reconciliacao", id)
		}
		if err != nil {
			return err
		}

		if rec.Estado != models.EstadoPendente && rec.Estado != models.EstadoComProblemas {
			return errors.ReconciliationError(errors.CodeInvalidTransition, "start review", nil).
				WithContext("estado", string(rec.Estado))
		}

		now := time.Now().UTC()
		rec.Estado = models.EstadoEmRevisao
		rec.DataRevisao = &now
		rec.Versao++

		return tx.Model(&models.ReconciliacaoMensal{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"estado":       rec.Estado,
				"data_revisao": rec.DataRevisao,
				"versao":       rec.Versao,
			}).Error
	})
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryPersistence,
			errors.CodeTransactionFailed, "start review failed")
	}
	return &rec, nil
}

// UpdateNotas replaces the reviewer notes. Notes are not derived state, so
// no recompute and no version bump.
func (s *Store) UpdateNotas(ctx context.Context, id, notas string) (*models.ReconciliacaoMensal, error) {
	result := s.db.WithContext(ctx).Model(&models.ReconciliacaoMensal{}).
		Where("id = ?", id).
		Update("notas", notas)
	if result.Error != nil {
		return nil, errors.PersistenceError(errors.CodeTransactionFailed, "update notas", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, errors.NotFoundError("reconciliacao", id)
	}
	return s.GetByID(ctx, id)
}
