package order

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusShipped    = "shipped"
	StatusDelivered  = "delivered"
	StatusCancelled  = "cancelled"
)

type Order struct {
	ID          int64           `gorm:"primaryKey"`
	UserID      int64           `gorm:"column:user_id;not null;index"`
	OrderNumber string          `gorm:"column:order_number;not null;uniqueIndex"`
	Status      string          `gorm:"column:status;not null"`
	TotalAmount decimal.Decimal `gorm:"column:total_amount;type:decimal(12,2);not null"`
	CreatedAt   time.Time       `gorm:"column:created_at"`
	UpdatedAt   time.Time       `gorm:"column:updated_at"`
}

func (Order) TableName() string {
	return "orders"
}
