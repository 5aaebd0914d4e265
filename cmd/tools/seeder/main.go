package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	seedItems(db)
	seedCoupons(db)

	log.Println("Seeding completed successfully!")
}

func seedItems(db *sql.DB) {
	items := []struct {
		SKU       string
		Name      string
		Kind      string
		Price     int64 // cents
		Quantity  int32
		Threshold int32
	}{
		{"GAME-001", "Catan", "sale", 4999, 25, 5},
		{"GAME-002", "Ticket to Ride", "sale", 5499, 18, 5},
		{"GAME-003", "Wingspan", "sale", 6500, 12, 3},
		{"GAME-004", "Azul", "sale", 3999, 30, 5},
		{"GAME-005", "Gloomhaven", "sale", 14000, 6, 2},
		{"SNACK-001", "Trail Mix", "sale", 450, 120, 20},
		{"SNACK-002", "Sparkling Water", "sale", 250, 200, 40},
		{"RENT-001", "Catan (table copy)", "rental", 500, 4, 1},
		{"RENT-002", "Codenames (table copy)", "rental", 300, 6, 1},
		{"RENT-003", "Chess Set", "rental", 200, 8, 2},
		{"RENT-004", "Dominion (table copy)", "rental", 400, 3, 1},
	}

	fmt.Println("Seeding Items...")
	for _, it := range items {
		_, err := db.Exec(`
			INSERT INTO items (sku, name, kind, price_cents, quantity, low_stock_threshold, active)
			VALUES ($1, $2, $3, $4, $5, $6, true)
			ON CONFLICT (sku) DO UPDATE SET
				name = EXCLUDED.name,
				kind = EXCLUDED.kind,
				price_cents = EXCLUDED.price_cents,
				quantity = EXCLUDED.quantity,
				low_stock_threshold = EXCLUDED.low_stock_threshold;
		`, it.SKU, it.Name, it.Kind, it.Price, it.Quantity, it.Threshold)
		if err != nil {
			log.Printf("Failed to seed item %s: %v", it.SKU, err)
		}
	}
}

func seedCoupons(db *sql.DB) {
	coupons := []struct {
		Code        string
		PercentBps  sql.NullInt32
		AmountCents sql.NullInt64
		MinPurchase int64
		MaxUses     sql.NullInt32
	}{
		{"SAVE10", sql.NullInt32{Int32: 1000, Valid: true}, sql.NullInt64{}, 0, sql.NullInt32{}},
		{"WELCOME5", sql.NullInt32{}, sql.NullInt64{Int64: 500, Valid: true}, 2000, sql.NullInt32{}},
		{"GAMENIGHT", sql.NullInt32{Int32: 1500, Valid: true}, sql.NullInt64{}, 5000, sql.NullInt32{Int32: 100, Valid: true}},
	}

	fmt.Println("Seeding Coupons...")
	for _, c := range coupons {
		_, err := db.Exec(`
			INSERT INTO coupons (code, percent_bps, amount_cents, min_purchase_cents, max_uses, active, expires_at)
			VALUES ($1, $2, $3, $4, $5, true, NOW() + INTERVAL '1 year')
			ON CONFLICT (code) DO NOTHING;
		`, c.Code, c.PercentBps, c.AmountCents, c.MinPurchase, c.MaxUses)
		if err != nil {
			log.Printf("Failed to seed coupon %s: %v", c.Code, err)
		}
	}
}
