package models

import (
	"github.com/shopspring/decimal"
)

// PriceScale is the number of fractional digits kept for prices.
const PriceScale = 2

func init() {
	// the POS client sends and expects prices as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

// Product is a menu entry.
type Product struct {
	ID        string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name      string          `gorm:"type:varchar(200);not null" json:"name"`
	Price     decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"price"`
	Image     *string         `gorm:"type:varchar(1000)" json:"image"`
	SortOrder int             `gorm:"not null;default:0;index" json:"sortOrder"`
}

func (Product) TableName() string {
	return "products"
}

// OrderTable is a physical table in the restaurant.
type OrderTable struct {
	ID   int    `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name string `gorm:"type:varchar(100);not null" json:"name"`
}

func (OrderTable) TableName() string {
	return "order_tables"
}

// All lists every persisted model in migration order.
func All() []interface{} {
	return []interface{}{&Product{}, &OrderTable{}, &Order{}, &OrderItem{}}
}
