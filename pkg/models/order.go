package models

import (
	"time"
)

type Order struct {
	ID             string      `gorm:"primaryKey;type:varchar(64)" json:"id"`
	OrderNumber    int         `gorm:"not null;index" json:"orderNumber"`
	TableNumber    int         `gorm:"not null" json:"tableNumber"`
	WaiterName     string      `gorm:"type:varchar(100);not null" json:"waiterName"`
	ClientName     *string     `gorm:"type:varchar(200)" json:"clientName"`
	ClientDocument *string     `gorm:"type:varchar(50)" json:"clientDocument"`
	Items          []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	IsCompleted    bool        `gorm:"not null;default:false" json:"isCompleted"`
	Timestamp      time.Time   `gorm:"not null" json:"timestamp"`
}

func (Order) TableName() string {
	return "orders"
}

// ApplyScalars overwrites every scalar field of o with the value from src.
// Zero values in src are copied as well. ID and Items are left alone; new
// fields must be added here explicitly.
func (o *Order) ApplyScalars(src *Order) {
	o.OrderNumber = src.OrderNumber
	o.TableNumber = src.TableNumber
	o.WaiterName = src.WaiterName
	o.ClientName = src.ClientName
	o.ClientDocument = src.ClientDocument
	o.IsCompleted = src.IsCompleted
	o.Timestamp = src.Timestamp
}

type OrderItem struct {
	ID        int      `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID string   `gorm:"type:varchar(64);not null;index" json:"productId"`
	Product   *Product `gorm:"foreignKey:ProductID;constraint:-" json:"product"`
	Quantity  int      `gorm:"not null" json:"quantity"`
	Note      string   `gorm:"type:varchar(500);not null;default:''" json:"note"`
	OrderID   string   `gorm:"type:varchar(64);not null;index" json:"orderId"`
}

func (OrderItem) TableName() string {
	return "order_items"
}
