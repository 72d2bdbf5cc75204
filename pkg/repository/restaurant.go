package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/posbackoffice/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReconcileResult counts how a reconcile batch was applied.
type ReconcileResult struct {
	Inserted    int
	Updated     int
	InsertedIDs []string
	UpdatedIDs  []string
}

// RestaurantRepository is the relational store for tables, menu and orders.
type RestaurantRepository struct {
	db *gorm.DB
}

func NewRestaurantRepository(db *gorm.DB) *RestaurantRepository {
	return &RestaurantRepository{db: db}
}

func (r *RestaurantRepository) ListTables(ctx context.Context) ([]models.OrderTable, error) {
	tables := []models.OrderTable{}
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&tables).Error; err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return tables, nil
}

// ReplaceTables deletes every table and inserts the given ones in one transaction.
func (r *RestaurantRepository) ReplaceTables(ctx context.Context, tables []models.OrderTable) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteAll(tx, &models.OrderTable{}); err != nil {
			return err
		}
		if len(tables) == 0 {
			return nil
		}
		return tx.Create(&tables).Error
	})
	if err != nil {
		return fmt.Errorf("failed to replace tables: %w", err)
	}
	return nil
}

// ListMenu returns the menu ordered by SortOrder. Ties keep store order.
func (r *RestaurantRepository) ListMenu(ctx context.Context) ([]models.Product, error) {
	products := []models.Product{}
	if err := r.db.WithContext(ctx).Order("sort_order ASC").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to list menu: %w", err)
	}
	return products, nil
}

// ReplaceMenu deletes every product and inserts the given ones in one transaction.
// Prices are rounded to models.PriceScale fractional digits.
func (r *RestaurantRepository) ReplaceMenu(ctx context.Context, products []models.Product) error {
	rows := make([]models.Product, len(products))
	for i, p := range products {
		p.Price = p.Price.Round(models.PriceScale)
		rows[i] = p
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteAll(tx, &models.Product{}); err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("failed to replace menu: %w", err)
	}
	return nil
}

// ListOrders returns every order with its items and each item's product.
func (r *RestaurantRepository) ListOrders(ctx context.Context) ([]models.Order, error) {
	orders := []models.Order{}
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Items.Product").
		Order("order_number ASC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// ReconcileOrders upserts each order in submission order inside one
// transaction. An existing order gets all scalar fields overwritten and its
// items replaced by the submitted list; a missing one is inserted. Lookups
// see earlier writes of the same batch, so a repeated ID ends up holding the
// last submitted version.
func (r *RestaurantRepository) ReconcileOrders(ctx context.Context, orders []models.Order) (ReconcileResult, error) {
	var result ReconcileResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result = ReconcileResult{}
		for i := range orders {
			updated, err := upsertOrder(tx, &orders[i])
			if err != nil {
				return fmt.Errorf("order %q: %w", orders[i].ID, err)
			}
			if updated {
				result.Updated++
				result.UpdatedIDs = append(result.UpdatedIDs, orders[i].ID)
			} else {
				result.Inserted++
				result.InsertedIDs = append(result.InsertedIDs, orders[i].ID)
			}
		}
		return nil
	})
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("failed to reconcile orders: %w", err)
	}
	return result, nil
}

func upsertOrder(tx *gorm.DB, submitted *models.Order) (bool, error) {
	var existing models.Order
	err := tx.Preload("Items").Where("id = ?", submitted.ID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row := *submitted
		row.Items = nil
		if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
			return false, err
		}
		return false, insertItems(tx, submitted.ID, submitted.Items)
	case err != nil:
		return false, err
	}

	existing.ApplyScalars(submitted)
	existing.Items = nil
	if err := tx.Omit(clause.Associations).Save(&existing).Error; err != nil {
		return true, err
	}
	if err := tx.Where("order_id = ?", existing.ID).Delete(&models.OrderItem{}).Error; err != nil {
		return true, err
	}
	return true, insertItems(tx, existing.ID, submitted.Items)
}

func insertItems(tx *gorm.DB, orderID string, items []models.OrderItem) error {
	// one insert per item: a batch mixing zero and explicit ids would write
	// the zero ids literally instead of letting the store assign them
	for _, item := range items {
		item.OrderID = orderID
		item.Product = nil
		if err := tx.Omit("Product").Create(&item).Error; err != nil {
			return err
		}
	}
	return nil
}

// MaxOrderNumber returns the highest persisted order number, or 0 when there
// are no orders.
func (r *RestaurantRepository) MaxOrderNumber(ctx context.Context) (int, error) {
	var highest int
	err := r.db.WithContext(ctx).Model(&models.Order{}).
		Select("COALESCE(MAX(order_number), 0)").
		Scan(&highest).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read max order number: %w", err)
	}
	return highest, nil
}

func (r *RestaurantRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func deleteAll(tx *gorm.DB, model interface{}) error {
	return tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error
}
