package payment

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	StatusPending   = "pending"
	StatusInitiated = "initiated"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusRefunded  = "refunded"
)

const (
	RefundStatusInitiated  = "initiated"
	RefundStatusProcessing = "processing"
	RefundStatusCompleted  = "completed"
	RefundStatusFailed     = "failed"
	RefundStatusCancelled  = "cancelled"
)

const (
	LogLevelInfo     = "info"
	LogLevelWarning  = "warning"
	LogLevelError    = "error"
	LogLevelCritical = "critical"
)

// Audit actions written to payment_logs.
const (
	ActionPaymentInitiated        = "payment_initiated"
	ActionPaymentInitiationFailed = "payment_initiation_failed"
	ActionTransactionCreated      = "transaction_created"
	ActionStatusUpdated           = "status_updated"
	ActionStatusUpdateIgnored     = "status_update_ignored"
	ActionStatusCheckFailed       = "status_check_failed"
	ActionCallbackProcessed       = "payment_callback_processed"
	ActionRefundCallbackReceived  = "refund_callback_received"
	ActionPaymentRetry            = "payment_retry"
	ActionRefundInitiated         = "refund_initiated"
	ActionRefundStatusUpdated     = "refund_status_updated"
	ActionRefundCompleted         = "refund_completed"
)

var AllStatuses = []string{
	StatusPending,
	StatusInitiated,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
	StatusRefunded,
}

type Payment struct {
	ID                    int64             `gorm:"primaryKey"`
	UserID                int64             `gorm:"column:user_id;not null;index"`
	Amount                decimal.Decimal   `gorm:"column:amount;type:decimal(12,2);not null"`
	Status                string            `gorm:"column:status;not null;index"`
	ContentType           *string           `gorm:"column:content_type"`
	ObjectID              *int64            `gorm:"column:object_id"`
	OrderID               *int64            `gorm:"column:order_id;index"`
	MerchantTransactionID string            `gorm:"column:merchant_transaction_id;not null;uniqueIndex"`
	PaymentMetadata       datatypes.JSONMap `gorm:"column:payment_metadata"`
	CustomerPhone         string            `gorm:"column:customer_phone"`
	CustomerEmail         string            `gorm:"column:customer_email"`
	CustomerName          string            `gorm:"column:customer_name"`
	PaymentMethod         string            `gorm:"column:payment_method"`
	GatewayID             *int64            `gorm:"column:gateway_id;index"`
	InitiatedAt           *time.Time        `gorm:"column:initiated_at"`
	CompletedAt           *time.Time        `gorm:"column:completed_at"`
	FailedAt              *time.Time        `gorm:"column:failed_at"`
	LastCheckedAt         *time.Time        `gorm:"column:last_checked_at"`
	IPAddress             string            `gorm:"column:ip_address"`
	UserAgent             string            `gorm:"column:user_agent"`
	CreatedAt             time.Time         `gorm:"column:created_at"`
	UpdatedAt             time.Time         `gorm:"column:updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}

// Transaction is one provider-side attempt under a Payment.
type Transaction struct {
	ID                      int64             `gorm:"primaryKey"`
	PaymentID               int64             `gorm:"column:payment_id;not null;index"`
	TransactionID           string            `gorm:"column:transaction_id;index"`
	OrderID                 string            `gorm:"column:order_id;index"`
	PaymentMethod           string            `gorm:"column:payment_method"`
	GatewayResponse         datatypes.JSONMap `gorm:"column:gateway_response"`
	Status                  string            `gorm:"column:status;not null"`
	PaymentMode             string            `gorm:"column:payment_mode"`
	Amount                  decimal.Decimal   `gorm:"column:amount;type:decimal(12,2);not null"`
	CallbackReceivedAt      *time.Time        `gorm:"column:callback_received_at"`
	VerificationCompletedAt *time.Time        `gorm:"column:verification_completed_at"`
	ChecksumVerified        bool              `gorm:"column:checksum_verified;default:false"`
	IPAddress               string            `gorm:"column:ip_address"`
	CreatedAt               time.Time         `gorm:"column:created_at"`
	UpdatedAt               time.Time         `gorm:"column:updated_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

type RefundTransaction struct {
	ID               int64             `gorm:"primaryKey"`
	PaymentID        int64             `gorm:"column:payment_id;not null;uniqueIndex"`
	TransactionID    *int64            `gorm:"column:transaction_id"`
	RefundID         string            `gorm:"column:refund_id;not null;uniqueIndex"`
	ProviderRefundID string            `gorm:"column:provider_refund_id"`
	Amount           decimal.Decimal   `gorm:"column:amount;type:decimal(12,2);not null"`
	Reason           string            `gorm:"column:reason"`
	Status           string            `gorm:"column:status;not null"`
	GatewayResponse  datatypes.JSONMap `gorm:"column:gateway_response"`
	CompletedAt      *time.Time        `gorm:"column:completed_at"`
	CreatedAt        time.Time         `gorm:"column:created_at"`
	UpdatedAt        time.Time         `gorm:"column:updated_at"`
}

func (RefundTransaction) TableName() string {
	return "refund_transactions"
}

// PaymentLog rows are append-only.
type PaymentLog struct {
	ID            int64             `gorm:"primaryKey"`
	PaymentID     int64             `gorm:"column:payment_id;not null;index"`
	TransactionID *int64            `gorm:"column:transaction_id"`
	Action        string            `gorm:"column:action;not null;index"`
	Details       datatypes.JSONMap `gorm:"column:details"`
	Level         string            `gorm:"column:level;not null"`
	CreatedAt     time.Time         `gorm:"column:created_at"`
}

func (PaymentLog) TableName() string {
	return "payment_logs"
}
