package cmd

import (
	"fmt"
	"log"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample catalog data for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := sqlx.Connect("pgx", cfg.Database.Source)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		if clearData {
			for _, table := range []string{
				"payment_reviews",
				"payment_transactions",
				"order_status_history",
				"order_items",
				"orders",
				"pending_orders",
				"products",
			} {
				if _, err := db.Exec(fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)); err != nil {
					log.Fatalf("failed to clear %s: %v", table, err)
				}
			}
			fmt.Println("Cleared existing data")
		}

		products := []struct {
			Name   string
			Price  float64
			Stock  int
			Active bool
		}{
			{"Mechanical Keyboard", 1250000, 25, true},
			{"Wireless Mouse", 350000, 40, true},
			{"USB-C Dock", 890000, 12, true},
			{"27\" Monitor", 3200000, 8, true},
			{"Laptop Stand", 275000, 30, true},
			{"Discontinued Webcam", 450000, 5, false},
		}

		for _, p := range products {
			var exists int
			err := db.QueryRow("SELECT 1 FROM products WHERE name = $1", p.Name).Scan(&exists)
			if err == nil {
				fmt.Printf("product %q already exists, skipping\n", p.Name)
				continue
			}

			if _, err := db.Exec(
				"INSERT INTO products (name, price, stock, is_active, created_at, updated_at) VALUES ($1, $2, $3, $4, now(), now())",
				p.Name, p.Price, p.Stock, p.Active,
			); err != nil {
				log.Fatalf("failed to insert product %q: %v", p.Name, err)
			}
			fmt.Printf("Seeded product: %s\n", p.Name)
		}
	},
}
