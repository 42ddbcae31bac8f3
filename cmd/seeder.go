package cmd

import (
	"context"
	"fmt"

	"github.com/frahmantamala/payment-reconciliation/internal/gateway"
	"github.com/frahmantamala/payment-reconciliation/pkg/logger"
	"github.com/spf13/cobra"
)

var seedDemoUser bool

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with payment gateways",
	Long:  `Install PhonePe (default), Razorpay and Stripe gateway rows. Existing rows keep their ids and credentials.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(".")
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		lg := logger.LoggerWrapper()

		stores, err := openStores(cfg, lg, false)
		if err != nil {
			return fmt.Errorf("failed to init db: %w", err)
		}
		defer stores.Close(lg)

		ctx := context.Background()
		stack := buildPaymentStack(cfg, stores, lg)

		created, updated, err := stack.Gateways.Seed(ctx, gateway.DefaultGateways())
		if err != nil {
			return fmt.Errorf("failed to seed gateways: %w", err)
		}
		fmt.Printf("Seeded payment gateways: %d created, %d updated\n", created, updated)

		if seedDemoUser {
			const email = "demo@payments.local"
			res := stores.Gorm.WithContext(ctx).Exec(
				`INSERT INTO users (email, phone_number, full_name, is_active, created_at, updated_at)
				 VALUES (?, ?, ?, true, now(), now())
				 ON CONFLICT (email) DO NOTHING`,
				email, "9999999999", "Demo Customer")
			if res.Error != nil {
				return fmt.Errorf("failed to insert demo user: %w", res.Error)
			}
			if res.RowsAffected > 0 {
				fmt.Println("Seeded demo user:", email)
			} else {
				fmt.Println("demo user already exists:", email)
			}
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().BoolVar(&seedDemoUser, "demo-user", false, "Also insert a demo customer for local testing")
}
