package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	providerdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/provider"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sandbox FSP configurations",
	Long:  `Seed the database with sandbox FSP configurations for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}

		if clearData {
			if err := db.Exec("DELETE FROM fsp_configurations").Error; err != nil {
				log.Fatalf("failed to clear FSP configurations: %v", err)
			}
			fmt.Println("Cleared existing FSP configurations")
		}

		dec := func(v int64) *decimal.Decimal {
			d := decimal.NewFromInt(v)
			return &d
		}
		fee := func(v float64) *decimal.Decimal {
			d := decimal.NewFromFloat(v)
			return &d
		}

		configs := []*providerdm.Config{
			{
				FSPCode:             "GCASH",
				FSPName:             "GCash",
				SupportedMethods:    "E_WALLET",
				SupportedCurrencies: "PHP",
				MinAmount:           dec(1),
				MaxAmount:           dec(50000),
				TransactionFee:      fee(1.5),
				FeeType:             providerdm.FeeTypePercentage,
			},
			{
				FSPCode:             "PAYMAYA",
				FSPName:             "Maya",
				SupportedMethods:    "E_WALLET,PREPAID_CARD",
				SupportedCurrencies: "PHP",
				MinAmount:           dec(1),
				MaxAmount:           dec(50000),
				TransactionFee:      fee(1.75),
				FeeType:             providerdm.FeeTypePercentage,
			},
			{
				FSPCode:             "LANDBANK",
				FSPName:             "Land Bank of the Philippines",
				SupportedMethods:    "BANK_TRANSFER,CASH_PICKUP",
				SupportedCurrencies: "PHP",
				MinAmount:           dec(100),
				MaxAmount:           dec(500000),
				TransactionFee:      fee(15),
				FeeType:             providerdm.FeeTypeFixed,
			},
			{
				FSPCode:             "MLHUILLIER",
				FSPName:             "M Lhuillier",
				SupportedMethods:    "CASH_PICKUP",
				SupportedCurrencies: "PHP",
				MinAmount:           dec(100),
				MaxAmount:           dec(100000),
				TransactionFee:      fee(25),
				FeeType:             providerdm.FeeTypeFixed,
			},
		}

		now := time.Now().UTC()
		seeded := 0
		for _, fspConfig := range configs {
			var exists int64
			db.Model(&providerdm.Config{}).Where("fsp_code = ?", fspConfig.FSPCode).Count(&exists)
			if exists > 0 {
				fmt.Println("FSP configuration already exists, skipping:", fspConfig.FSPCode)
				continue
			}

			fspConfig.ID = uuid.New()
			fspConfig.Active = true
			fspConfig.Sandbox = true
			fspConfig.HealthStatus = providerdm.HealthUnknown
			fspConfig.CreatedBy = "seeder"
			fspConfig.CreatedAt = now
			fspConfig.UpdatedAt = now

			if err := db.Create(fspConfig).Error; err != nil {
				log.Fatalf("failed to seed FSP configuration %s: %v", fspConfig.FSPCode, err)
			}
			fmt.Println("Seeded FSP configuration:", fspConfig.FSPCode)
			seeded++
		}

		fmt.Printf("Seeding complete: %d new FSP configurations\n", seeded)
	},
}
