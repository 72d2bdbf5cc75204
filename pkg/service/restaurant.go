// Package service implements the restaurant back-office operations on top of
// the relational store, with optional reference-data caching and auditing.
package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/posbackoffice/pkg/metrics"
	"github.com/example/posbackoffice/pkg/models"
	"github.com/example/posbackoffice/pkg/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

const (
	serviceName  = "pos-backoffice"
	auditTimeout = 3 * time.Second

	kindMenu   = "menu"
	kindTables = "tables"
	kindOrders = "orders"

	maxAuditLimit = 500
)

// Repository is the relational store used by the service.
type Repository interface {
	ListTables(ctx context.Context) ([]models.OrderTable, error)
	ReplaceTables(ctx context.Context, tables []models.OrderTable) error
	ListMenu(ctx context.Context) ([]models.Product, error)
	ReplaceMenu(ctx context.Context, products []models.Product) error
	ListOrders(ctx context.Context) ([]models.Order, error)
	ReconcileOrders(ctx context.Context, orders []models.Order) (repository.ReconcileResult, error)
	MaxOrderNumber(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

// ReferenceCache holds copies of the menu and table lists, one entry per
// kind and generation. Bump moves a kind to a fresh generation.
type ReferenceCache interface {
	Generation(ctx context.Context, kind string) (int64, error)
	Bump(ctx context.Context, kind string) error
	Get(ctx context.Context, kind string, generation int64, dest interface{}) (bool, error)
	Set(ctx context.Context, kind string, generation int64, value interface{}) error
}

// AuditLogger records successful writes and reads them back.
type AuditLogger interface {
	CreateAuditLog(ctx context.Context, log *repository.AuditLog) error
	GetAuditLogs(ctx context.Context, entity string, limit int64) ([]*repository.AuditLog, error)
}

type Service struct {
	repo    Repository
	cache   ReferenceCache
	audit   AuditLogger
	metrics *metrics.Metrics
	logger  *zap.Logger

	// per cached kind, replaces whose generation bump failed
	pendingBumps map[string]*atomic.Int64
}

// New builds the service. cache, audit and m may be nil.
func New(repo Repository, cache ReferenceCache, audit AuditLogger, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:    repo,
		cache:   cache,
		audit:   audit,
		metrics: m,
		logger:  logger.Named("service"),
	}
	s.pendingBumps = map[string]*atomic.Int64{
		kindMenu:   new(atomic.Int64),
		kindTables: new(atomic.Int64),
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Service) ListTables(ctx context.Context) ([]models.OrderTable, error) {
	return readThrough(ctx, s, kindTables, s.repo.ListTables)
}

// ReplaceTables swaps the whole table list for tables.
func (s *Service) ReplaceTables(ctx context.Context, tables []models.OrderTable) error {
	if err := classify(s.repo.ReplaceTables(ctx, tables)); err != nil {
		return err
	}

	s.retireCached(ctx, kindTables)
	if s.metrics != nil {
		s.metrics.RecordReferenceReplaced(kindTables)
	}
	s.recordAudit(ctx, repository.AuditReplaceTables, kindTables, bson.M{"count": len(tables)})

	s.logger.Info("Tables replaced", zap.Int("count", len(tables)))
	return nil
}

// ListMenu returns the products sorted by SortOrder ascending.
func (s *Service) ListMenu(ctx context.Context) ([]models.Product, error) {
	return readThrough(ctx, s, kindMenu, s.repo.ListMenu)
}

// ReplaceMenu swaps the whole menu for products. Products still referenced by
// order items are removed all the same.
func (s *Service) ReplaceMenu(ctx context.Context, products []models.Product) error {
	for i, p := range products {
		if p.ID == "" {
			return invalidf("product at index %d has an empty id", i)
		}
	}

	if err := classify(s.repo.ReplaceMenu(ctx, products)); err != nil {
		return err
	}

	s.retireCached(ctx, kindMenu)
	if s.metrics != nil {
		s.metrics.RecordReferenceReplaced(kindMenu)
	}
	s.recordAudit(ctx, repository.AuditReplaceMenu, kindMenu, bson.M{"count": len(products)})

	s.logger.Info("Menu replaced", zap.Int("count", len(products)))
	return nil
}

func (s *Service) ListOrders(ctx context.Context) ([]models.Order, error) {
	return s.repo.ListOrders(ctx)
}

// ReconcileOrders applies the batch all-or-nothing. See
// repository.RestaurantRepository.ReconcileOrders for the upsert rules.
func (s *Service) ReconcileOrders(ctx context.Context, orders []models.Order) error {
	for i, o := range orders {
		if o.ID == "" {
			return invalidf("order at index %d has an empty id", i)
		}
	}

	res, err := s.repo.ReconcileOrders(ctx, orders)
	if err != nil {
		return classify(err)
	}

	if s.metrics != nil {
		s.metrics.RecordOrdersReconciled(res.Inserted, res.Updated)
	}
	s.recordAudit(ctx, repository.AuditReconcileOrders, kindOrders, bson.M{
		"inserted": res.InsertedIDs,
		"updated":  res.UpdatedIDs,
	})

	s.logger.Info("Orders reconciled",
		zap.Int("submitted", len(orders)),
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated))
	return nil
}

// NextOrderNumber returns one more than the highest stored order number, or
// 1 for an empty store. The number is not reserved.
func (s *Service) NextOrderNumber(ctx context.Context) (int, error) {
	highest, err := s.repo.MaxOrderNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to compute next order number: %w", err)
	}
	return highest + 1, nil
}

// AuditLogs returns up to limit audit entries for entity, newest first. An
// empty entity matches every entity.
func (s *Service) AuditLogs(ctx context.Context, entity string, limit int) ([]*repository.AuditLog, error) {
	if s.audit == nil {
		return nil, ErrAuditDisabled
	}
	switch entity {
	case "", kindMenu, kindTables, kindOrders:
	default:
		return nil, invalidf("unknown audit entity %q", entity)
	}
	if limit < 1 || limit > maxAuditLimit {
		return nil, invalidf("limit must be between 1 and %d", maxAuditLimit)
	}

	logs, err := s.audit.GetAuditLogs(ctx, entity, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to read audit logs: %w", err)
	}
	if logs == nil {
		logs = []*repository.AuditLog{}
	}
	return logs, nil
}

// readThrough serves kind from the cache and fills it on a miss. The
// generation is read before the store, so a fill racing a replace lands on
// the generation that replace retires.
func readThrough[T any](ctx context.Context, s *Service, kind string, load func(context.Context) ([]T, error)) ([]T, error) {
	gen, ok := s.cacheGeneration(ctx, kind)
	if !ok {
		return load(ctx)
	}

	var cached []T
	hit, err := s.cache.Get(ctx, kind, gen, &cached)
	s.recordLookup(kind, hit, err)
	if hit {
		return cached, nil
	}

	list, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, kind, gen, list); err != nil {
		s.logger.Warn("Failed to fill reference cache", zap.String("kind", kind), zap.Error(err))
	}
	return list, nil
}

// cacheGeneration returns the generation to read kind at. false means the
// cache must not be used for this read.
func (s *Service) cacheGeneration(ctx context.Context, kind string) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}

	pending := s.pendingBumps[kind]
	if n := pending.Load(); n > 0 {
		if err := s.cache.Bump(ctx, kind); err != nil {
			s.logger.Warn("Reference cache not retired yet, reading from the store",
				zap.String("kind", kind), zap.Error(err))
			return 0, false
		}
		pending.CompareAndSwap(n, 0)
	}

	gen, err := s.cache.Generation(ctx, kind)
	if err != nil {
		s.recordLookup(kind, false, err)
		return 0, false
	}
	return gen, true
}

// retireCached moves kind to a new generation after a committed replace. If
// that fails, reads of kind bypass the cache until a later bump succeeds.
func (s *Service) retireCached(ctx context.Context, kind string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx, kind); err != nil {
		s.pendingBumps[kind].Add(1)
		s.logger.Error("Failed to retire cached reference data, bypassing cache",
			zap.String("kind", kind), zap.Error(err))
	}
}

func (s *Service) recordLookup(kind string, hit bool, err error) {
	if err != nil {
		s.logger.Warn("Reference cache lookup failed", zap.String("kind", kind), zap.Error(err))
	}
	if s.metrics != nil {
		s.metrics.RecordCacheLookup(kind, hit)
	}
}

// recordAudit never fails the caller; the write it describes is already committed.
func (s *Service) recordAudit(ctx context.Context, action, entity string, data bson.M) {
	if s.audit == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()

	err := s.audit.CreateAuditLog(ctx, &repository.AuditLog{
		Service:   serviceName,
		Action:    action,
		Entity:    entity,
		RequestID: RequestIDFrom(ctx),
		Data:      data,
	})
	if err != nil {
		s.logger.Warn("Failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}
