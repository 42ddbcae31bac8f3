package gateway

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	EnvironmentSandbox    = "sandbox"
	EnvironmentProduction = "production"
)

const (
	LogStatusSuccess = "success"
	LogStatusFailed  = "failed"
)

type PaymentGateway struct {
	ID                 int64               `gorm:"primaryKey"`
	Name               string              `gorm:"column:name;not null;uniqueIndex"`
	DisplayName        string              `gorm:"column:display_name;not null"`
	Environment        string              `gorm:"column:environment;not null"`
	Credentials        datatypes.JSONMap   `gorm:"column:credentials"`
	Configuration      datatypes.JSONMap   `gorm:"column:configuration"`
	IsActive           bool                `gorm:"column:is_active;not null"`
	IsDefault          bool                `gorm:"column:is_default;not null"`
	Priority           int                 `gorm:"column:priority;not null"`
	SupportsRefund     bool                `gorm:"column:supports_refund;not null"`
	SupportsUPI        bool                `gorm:"column:supports_upi;not null"`
	SupportsCards      bool                `gorm:"column:supports_cards;not null"`
	SupportsNetbanking bool                `gorm:"column:supports_netbanking;not null"`
	SupportsWallets    bool                `gorm:"column:supports_wallets;not null"`
	MinAmount          decimal.Decimal     `gorm:"column:min_amount;type:decimal(12,2);not null"`
	MaxAmount          decimal.NullDecimal `gorm:"column:max_amount;type:decimal(12,2)"`
	FeePercentage      decimal.Decimal     `gorm:"column:fee_percentage;type:decimal(5,2);not null"`
	FixedFee           decimal.Decimal     `gorm:"column:fixed_fee;type:decimal(12,2);not null"`
	CreatedAt          time.Time           `gorm:"column:created_at"`
	UpdatedAt          time.Time           `gorm:"column:updated_at"`
}

func (PaymentGateway) TableName() string {
	return "payment_gateways"
}

// PaymentGatewayLog is the audit row written for every provider call.
type PaymentGatewayLog struct {
	ID           int64             `gorm:"primaryKey"`
	GatewayID    *int64            `gorm:"column:gateway_id;index"`
	GatewayName  string            `gorm:"column:gateway_name;not null"`
	PaymentID    *int64            `gorm:"column:payment_id;index"`
	Action       string            `gorm:"column:action;not null"`
	RequestData  datatypes.JSONMap `gorm:"column:request_data"`
	ResponseData datatypes.JSONMap `gorm:"column:response_data"`
	Status       string            `gorm:"column:status;not null"`
	ErrorMessage string            `gorm:"column:error_message"`
	IPAddress    string            `gorm:"column:ip_address"`
	UserAgent    string            `gorm:"column:user_agent"`
	CreatedAt    time.Time         `gorm:"column:created_at"`
}

func (PaymentGatewayLog) TableName() string {
	return "payment_gateway_logs"
}
