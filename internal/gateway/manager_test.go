package gateway_test

import (
	"context"
	"errors"

	"github.com/frahmantamala/payment-reconciliation/internal"
	gatewayDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/gateway"
	"github.com/frahmantamala/payment-reconciliation/internal/gateway"
	gatewayPostgres "github.com/frahmantamala/payment-reconciliation/internal/gateway/postgres"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var _ = Describe("Manager", func() {
	var (
		ctx      context.Context
		db       *gorm.DB
		repo     *gatewayPostgres.GatewayRepository
		manager  *gateway.Manager
		factoryN int
		phonepe  *gatewayDatamodel.PaymentGateway
		razorpay *gatewayDatamodel.PaymentGateway
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(db.AutoMigrate(&gatewayDatamodel.PaymentGateway{}, &gatewayDatamodel.PaymentGatewayLog{})).To(Succeed())

		repo = gatewayPostgres.NewGatewayRepository(db)
		factoryN = 0
		manager = gateway.NewManager(repo, func(gw *gatewayDatamodel.PaymentGateway) (gateway.Client, error) {
			factoryN++
			if gw.Name == "paytm" {
				return nil, errors.New("not implemented")
			}
			return &gateway.RazorpayClient{}, nil
		}, testLogger())

		phonepe = &gatewayDatamodel.PaymentGateway{
			Name:          "phonepe",
			DisplayName:   "PhonePe",
			Environment:   gatewayDatamodel.EnvironmentSandbox,
			IsActive:      true,
			Priority:      2,
			MinAmount:     decimal.NewFromInt(1),
			MaxAmount:     decimal.NewNullDecimal(decimal.NewFromInt(100000)),
			FeePercentage: decimal.RequireFromString("1.50"),
			FixedFee:      decimal.RequireFromString("2.00"),
		}
		razorpay = &gatewayDatamodel.PaymentGateway{
			Name:          "razorpay",
			DisplayName:   "Razorpay",
			Environment:   gatewayDatamodel.EnvironmentSandbox,
			IsActive:      true,
			Priority:      1,
			MinAmount:     decimal.NewFromInt(10),
			FeePercentage: decimal.RequireFromString("2.00"),
			FixedFee:      decimal.Zero,
		}
		Expect(manager.SaveGateway(ctx, phonepe)).To(Succeed())
		Expect(manager.SaveGateway(ctx, razorpay)).To(Succeed())
	})

	Describe("DefaultGateway", func() {
		It("falls back to the highest-priority active gateway", func() {
			gw, err := manager.DefaultGateway(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(gw.Name).To(Equal("razorpay"))
		})

		It("prefers the gateway flagged as default", func() {
			phonepe.IsDefault = true
			Expect(manager.SaveGateway(ctx, phonepe)).To(Succeed())

			gw, err := manager.DefaultGateway(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(gw.Name).To(Equal("phonepe"))
		})

		It("returns not found when nothing is active", func() {
			Expect(db.Model(&gatewayDatamodel.PaymentGateway{}).Where("1 = 1").Update("is_active", false).Error).To(Succeed())

			_, err := manager.DefaultGateway(ctx)
			Expect(errors.Is(err, internal.ErrGatewayNotFound)).To(BeTrue())
		})
	})

	Describe("SaveGateway", func() {
		It("rejects a second default gateway", func() {
			phonepe.IsDefault = true
			Expect(manager.SaveGateway(ctx, phonepe)).To(Succeed())

			razorpay.IsDefault = true
			err := manager.SaveGateway(ctx, razorpay)

			Expect(err).To(MatchError(internal.ErrDuplicateDefaultGateway))
			stored, _ := repo.GetByName(ctx, "razorpay")
			Expect(stored.IsDefault).To(BeFalse())
		})

		It("allows re-saving the existing default", func() {
			phonepe.IsDefault = true
			Expect(manager.SaveGateway(ctx, phonepe)).To(Succeed())
			phonepe.Priority = 5
			Expect(manager.SaveGateway(ctx, phonepe)).To(Succeed())
		})
	})

	Describe("SuitableGateway", func() {
		It("checks the amount against the gateway bounds", func() {
			_, err := manager.SuitableGateway(ctx, decimal.NewFromInt(5), "razorpay")
			Expect(internal.IsErrorType(err, internal.ErrorTypeValidation)).To(BeTrue())

			_, err = manager.SuitableGateway(ctx, decimal.NewFromInt(200000), "phonepe")
			Expect(internal.IsErrorType(err, internal.ErrorTypeValidation)).To(BeTrue())

			gw, err := manager.SuitableGateway(ctx, decimal.NewFromInt(500), "phonepe")
			Expect(err).NotTo(HaveOccurred())
			Expect(gw.Name).To(Equal("phonepe"))
		})

		It("uses the default gateway when no name is given", func() {
			gw, err := manager.SuitableGateway(ctx, decimal.NewFromInt(50), "")
			Expect(err).NotTo(HaveOccurred())
			Expect(gw.Name).To(Equal("razorpay"))
		})

		It("rejects unsupported names", func() {
			_, err := manager.SuitableGateway(ctx, decimal.NewFromInt(50), "paypal")
			Expect(internal.IsErrorType(err, internal.ErrorTypeValidation)).To(BeTrue())
		})
	})

	It("calculates percentage plus fixed fee rounded to two places", func() {
		fee := gateway.CalculateFee(phonepe, decimal.RequireFromString("333.33"))
		Expect(fee.StringFixed(2)).To(Equal("7.00"))
	})

	It("caches provider clients per gateway", func() {
		gw, err := manager.GatewayByName(ctx, "phonepe")
		Expect(err).NotTo(HaveOccurred())

		_, err = manager.ClientFor(gw)
		Expect(err).NotTo(HaveOccurred())
		_, err = manager.ClientFor(gw)
		Expect(err).NotTo(HaveOccurred())

		Expect(factoryN).To(Equal(1))
	})
})
