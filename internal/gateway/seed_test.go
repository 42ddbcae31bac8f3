package gateway_test

import (
	"context"

	gatewayDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/gateway"
	"github.com/frahmantamala/payment-reconciliation/internal/gateway"
	gatewayPostgres "github.com/frahmantamala/payment-reconciliation/internal/gateway/postgres"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var _ = Describe("Seed", func() {
	var (
		ctx     context.Context
		repo    *gatewayPostgres.GatewayRepository
		manager *gateway.Manager
	)

	BeforeEach(func() {
		ctx = context.Background()
		db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		sqlDB.SetMaxOpenConns(1)
		Expect(db.AutoMigrate(&gatewayDatamodel.PaymentGateway{}, &gatewayDatamodel.PaymentGatewayLog{})).To(Succeed())

		repo = gatewayPostgres.NewGatewayRepository(db)
		manager = gateway.NewManager(repo, func(gw *gatewayDatamodel.PaymentGateway) (gateway.Client, error) {
			return &gateway.RazorpayClient{}, nil
		}, testLogger())
	})

	It("installs PhonePe as the default followed by Razorpay and Stripe", func() {
		created, updated, err := manager.Seed(ctx, gateway.DefaultGateways())

		Expect(err).NotTo(HaveOccurred())
		Expect(created).To(Equal(3))
		Expect(updated).To(BeZero())

		active, err := manager.ActiveGateways(ctx)
		Expect(err).NotTo(HaveOccurred())
		names := make([]string, 0, len(active))
		for _, gw := range active {
			names = append(names, gw.Name)
		}
		Expect(names).To(Equal([]string{"phonepe", "razorpay", "stripe"}))

		def, err := manager.DefaultGateway(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(def.Name).To(Equal("phonepe"))
	})

	It("is idempotent and keeps stored credentials", func() {
		_, _, err := manager.Seed(ctx, gateway.DefaultGateways())
		Expect(err).NotTo(HaveOccurred())

		stored, err := repo.GetByName(ctx, "razorpay")
		Expect(err).NotTo(HaveOccurred())
		stored.Credentials = datatypes.JSONMap{"key_id": "rzp_live"}
		Expect(repo.Update(ctx, stored)).To(Succeed())

		created, updated, err := manager.Seed(ctx, gateway.DefaultGateways())

		Expect(err).NotTo(HaveOccurred())
		Expect(created).To(BeZero())
		Expect(updated).To(Equal(3))

		reloaded, err := repo.GetByName(ctx, "razorpay")
		Expect(err).NotTo(HaveOccurred())
		Expect(reloaded.ID).To(Equal(stored.ID))
		Expect(reloaded.Credentials).To(HaveKeyWithValue("key_id", "rzp_live"))
	})
})
