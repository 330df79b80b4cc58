// Command seed-db bootstraps a development database: schema, demo stores
// with settings, a small product catalog, a couple of promo codes, and an
// operator API key for the refund/escrow endpoints.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/vendimo/marketplace/internal/domain/auth"
	"github.com/vendimo/marketplace/internal/domain/money"
	"github.com/vendimo/marketplace/internal/domain/promo"
	"github.com/vendimo/marketplace/internal/storage/postgres"
)

type storeJSON struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	CommissionRate   string    `json:"commission_rate,omitempty"`
	ShippingFlatFee  string    `json:"shipping_flat_fee,omitempty"`
	FreeShippingOver string    `json:"free_shipping_over,omitempty"`
}

type productJSON struct {
	ID       uuid.UUID       `json:"id"`
	StoreID  uuid.UUID       `json:"store_id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Stock    int             `json:"stock"`
}

type seedFile struct {
	Stores   []storeJSON   `json:"stores"`
	Products []productJSON `json:"products"`
}

func main() {
	var (
		databaseURL  string
		seedPath     string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/marketplace.json", "path to seed JSON file")
	flag.StringVar(&apiKey, "api-key", "", "operator API key to seed (or MARKET_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or MARKET_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("MARKET_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or MARKET_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("MARKET_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedPath, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedPath, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCatalog(ctx, pool, seedPath); err != nil {
		return errors.Wrap(err, "seed catalog")
	}

	if err := seedPromoCodes(ctx, pool); err != nil {
		return errors.Wrap(err, "seed promo codes")
	}

	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedCatalog(ctx context.Context, pool *pgxpool.Pool, seedPath string) error {
	slog.Info("reading seed file", slog.String("path", seedPath))

	data, err := os.ReadFile(seedPath)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}

	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed JSON")
	}

	slog.Info("upserting stores", slog.Int("count", len(seed.Stores)))

	for _, s := range seed.Stores {
		_, err := pool.Exec(ctx,
			`INSERT INTO stores (id, name) VALUES ($1, $2)
			 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
			s.ID, s.Name)
		if err != nil {
			return errors.Wrapf(err, "upsert store %s", s.ID)
		}
		if err := upsertSettings(ctx, pool, s); err != nil {
			return errors.Wrapf(err, "upsert settings for store %s", s.ID)
		}
	}

	slog.Info("upserting products", slog.Int("count", len(seed.Products)))

	for _, p := range seed.Products {
		price, err := money.New(p.Price, p.Currency)
		if err != nil {
			return errors.Wrapf(err, "product %s", p.ID)
		}
		_, err = pool.Exec(ctx,
			`INSERT INTO products (id, store_id, name, price, currency, stock, status, active)
			 VALUES ($1, $2, $3, $4, $5, $6, 'active', TRUE)
			 ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name, price = EXCLUDED.price, stock = EXCLUDED.stock`,
			p.ID, p.StoreID, p.Name, price.Amount, price.Currency, p.Stock)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID.String()), slog.String("name", p.Name))
	}

	return nil
}

func upsertSettings(ctx context.Context, pool *pgxpool.Pool, s storeJSON) error {
	rate := decimal.NewFromInt(10)
	if s.CommissionRate != "" {
		var err error
		rate, err = decimal.NewFromString(s.CommissionRate)
		if err != nil {
			return errors.Wrap(err, "parse commission rate")
		}
	}

	flatFee := decimal.Zero
	hasRule := false
	if s.ShippingFlatFee != "" {
		var err error
		flatFee, err = decimal.NewFromString(s.ShippingFlatFee)
		if err != nil {
			return errors.Wrap(err, "parse shipping flat fee")
		}
		hasRule = true
	}

	var freeOver *decimal.Decimal
	if s.FreeShippingOver != "" {
		d, err := decimal.NewFromString(s.FreeShippingOver)
		if err != nil {
			return errors.Wrap(err, "parse free shipping threshold")
		}
		freeOver = &d
	}

	_, err := pool.Exec(ctx,
		`INSERT INTO store_settings (store_id, commission_rate, shipping_flat_fee, free_shipping_over, has_shipping_rule)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (store_id) DO UPDATE SET
			commission_rate = EXCLUDED.commission_rate,
			shipping_flat_fee = EXCLUDED.shipping_flat_fee,
			free_shipping_over = EXCLUDED.free_shipping_over,
			has_shipping_rule = EXCLUDED.has_shipping_rule`,
		s.ID, rate, flatFee, freeOver, hasRule)
	return err
}

func seedPromoCodes(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding demo promo codes")

	repo := postgres.NewPromoRepository(pool)
	now := time.Now().UTC()
	maxTwenty := decimal.NewFromInt(20)
	minTwentyFive := decimal.NewFromInt(25)
	oncePerUser := 1

	codes := []*promo.Code{
		{
			ID:                    uuid.New(),
			Code:                  "SAVE10",
			DiscountType:          promo.DiscountPercentage,
			Value:                 decimal.NewFromInt(10),
			Scope:                 promo.ScopePlatform,
			ValidFrom:             now,
			ValidTo:               now.AddDate(0, 1, 0),
			MaximumDiscountAmount: &maxTwenty,
			Currency:              "USD",
			Active:                true,
		},
		{
			ID:                 uuid.New(),
			Code:               "SAVE5",
			DiscountType:       promo.DiscountFixedAmount,
			Value:              decimal.NewFromInt(5),
			Scope:              promo.ScopePlatform,
			ValidFrom:          now,
			ValidTo:            now.AddDate(0, 1, 0),
			MinimumOrderAmount: &minTwentyFive,
			MaxUsagePerUser:    &oncePerUser,
			Currency:           "USD",
			Active:             true,
		},
	}

	for _, c := range codes {
		if err := repo.Create(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert promo code %s", c.Code)
		}
		slog.Info("upserted promo code", slog.String("code", c.Code))
	}

	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding operator API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	_, err := pool.Exec(ctx,
		`INSERT INTO api_keys (id, key_hash, name, scopes, active)
		 VALUES ($1, $2, $3, $4, TRUE)
		 ON CONFLICT (key_hash) DO UPDATE SET scopes = EXCLUDED.scopes, active = TRUE`,
		uuid.New(), keyHash, "Default operator key",
		[]string{auth.ScopeRefundsModerate, auth.ScopeEscrowRelease})
	if err != nil {
		return errors.Wrap(err, "upsert operator API key")
	}

	slog.Info("upserted API key", slog.String("name", "Default operator key"))

	return nil
}
