// Command promo-ingest loads bulk promo code drops from partner feed
// files into the database. Feeds are gzip-compressed code lists, one code
// per line; a code is accepted only when at least two independent feeds
// agree on it, which filters out typos and single-feed fabrications.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/vendimo/marketplace/internal/domain/promo"
	"github.com/vendimo/marketplace/internal/storage/postgres"
)

const (
	bloomCapacity = 120_000_000
	bloomFPR      = 0.001
	numFeeds      = 3
	progressEvery = 10_000_000
	minCodeLen    = 8
	maxCodeLen    = 10
)

// campaignRule describes the discount to attach to a known code. Codes
// outside this map get the default campaign rule.
type campaignRule struct {
	discountType promo.DiscountType
	value        string
	maxDiscount  string
	minOrder     string
}

var campaignRules = map[string]campaignRule{
	"FIFTYOFF":   {discountType: promo.DiscountPercentage, value: "50", maxDiscount: "100"},
	"SPRINGSALE": {discountType: promo.DiscountPercentage, value: "20", maxDiscount: "50"},
	"WELCOME10":  {discountType: promo.DiscountPercentage, value: "10"},
	"TENBUCKS":   {discountType: promo.DiscountFixedAmount, value: "10", minOrder: "50"},
	"FREESHIP5":  {discountType: promo.DiscountFixedAmount, value: "5", minOrder: "25"},
}

var defaultRule = campaignRule{
	discountType: promo.DiscountPercentage,
	value:        "10",
	maxDiscount:  "25",
}

// feedResult holds candidate codes found in a single feed during pass 2.
type feedResult struct {
	candidates map[string]uint
}

func main() {
	var (
		dataDir     string
		databaseURL string
		currency    string
		validDays   int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing promobaseN.gz feed files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&currency, "currency", "USD", "currency for ingested codes")
	flag.IntVar(&validDays, "valid-days", 30, "validity window in days, starting now")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, currency, validDays); err != nil {
		slog.Error("promo ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("promo ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL, currency string, validDays int) error {
	feeds := make([]string, numFeeds)
	for i := range numFeeds {
		feeds[i] = filepath.Join(dataDir, fmt.Sprintf("promobase%d.gz", i+1))
	}
	for _, f := range feeds {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check feed %s", f)
		}
	}

	// Pass 1: build one bloom filter per feed, concurrently.
	slog.Info("pass 1: building bloom filters", slog.Int("feeds", numFeeds))

	filters, err := buildBloomFilters(ctx, feeds)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: find codes appearing in 2+ feeds.
	slog.Info("pass 2: finding corroborated codes")

	validCodes, err := findValidCodes(ctx, feeds, filters)
	if err != nil {
		return errors.Wrap(err, "find valid codes")
	}

	slog.Info("corroborated codes found", slog.Int("count", len(validCodes)))

	if len(validCodes) == 0 {
		slog.Info("no codes to insert")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	repo := postgres.NewPromoRepository(pool)
	if err := writeCodes(ctx, repo, validCodes, currency, validDays); err != nil {
		return errors.Wrap(err, "write promo codes to database")
	}

	return nil
}

// buildBloomFilters creates one bloom filter per feed, concurrently.
func buildBloomFilters(ctx context.Context, feeds []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(feeds))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range feeds {
		g.Go(buildFilterForFeed(ctx, i, f, filters))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

func buildFilterForFeed(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		var count uint64

		if err := streamGzFile(ctx, path, func(code string) {
			if len(code) >= minCodeLen && len(code) <= maxCodeLen {
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress",
						slog.Int("feed", idx+1),
						slog.Uint64("codes", count),
					)
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "build filter for feed %d", idx+1)
		}

		slog.Info("pass 1 complete",
			slog.Int("feed", idx+1),
			slog.Uint64("total_codes", count),
		)

		filters[idx] = filter
		return nil
	}
}

// findValidCodes re-streams each feed and checks codes against OTHER
// feeds' bloom filters. A code is valid if it appears in 2 or more feeds.
func findValidCodes(ctx context.Context, feeds []string, filters []*bloom.BloomFilter) ([]string, error) {
	results := make([]feedResult, len(feeds))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range feeds {
		g.Go(findCandidatesInFeed(ctx, i, f, filters, results))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge bitmasks from all feeds.
	merged := make(map[string]uint)
	for _, r := range results {
		for code, mask := range r.candidates {
			merged[code] |= mask
		}
	}

	var valid []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			valid = append(valid, code)
		}
	}

	return valid, nil
}

func findCandidatesInFeed(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	results []feedResult,
) func() error {
	return func() error {
		candidates := make(map[string]uint)
		feedBit := uint(1) << uint(idx)
		var count uint64

		if err := streamGzFile(ctx, path, func(code string) {
			if len(code) < minCodeLen || len(code) > maxCodeLen {
				return
			}

			count++
			if count%progressEvery == 0 {
				slog.Info("pass 2 progress",
					slog.Int("feed", idx+1),
					slog.Uint64("codes", count),
				)
			}

			// Check if this code appears in any OTHER feed's bloom filter.
			for j, f := range filters {
				if j == idx {
					continue
				}
				if f.TestString(code) {
					candidates[code] |= feedBit
					break
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "scan feed %d for candidates", idx+1)
		}

		slog.Info("pass 2 complete",
			slog.Int("feed", idx+1),
			slog.Uint64("total_codes", count),
			slog.Int("candidates", len(candidates)),
		)

		results[idx] = feedResult{candidates: candidates}
		return nil
	}
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// writeCodes inserts all corroborated codes as platform-scoped promo
// codes. Existing codes are left untouched.
func writeCodes(ctx context.Context, repo *postgres.PromoRepository, codes []string, currency string, validDays int) error {
	slog.Info("writing promo codes to database", slog.Int("count", len(codes)))

	now := time.Now().UTC()
	validTo := now.AddDate(0, 0, validDays)

	for i, code := range codes {
		rule, ok := campaignRules[code]
		if !ok {
			rule = defaultRule
		}

		c, err := buildCode(code, rule, currency, now, validTo)
		if err != nil {
			return errors.Wrapf(err, "build promo code %s", code)
		}
		if err := repo.Create(ctx, c); err != nil {
			return errors.Wrapf(err, "insert promo code %s", code)
		}

		if (i+1)%100 == 0 || i+1 == len(codes) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(codes)))
		}
	}

	return nil
}

func buildCode(code string, rule campaignRule, currency string, from, to time.Time) (*promo.Code, error) {
	value, err := decimal.NewFromString(rule.value)
	if err != nil {
		return nil, errors.Wrap(err, "parse value")
	}

	c := &promo.Code{
		ID:           uuid.New(),
		Code:         code,
		DiscountType: rule.discountType,
		Value:        value,
		Scope:        promo.ScopePlatform,
		ValidFrom:    from,
		ValidTo:      to,
		Currency:     currency,
		Active:       true,
	}
	if rule.maxDiscount != "" {
		d, err := decimal.NewFromString(rule.maxDiscount)
		if err != nil {
			return nil, errors.Wrap(err, "parse max discount")
		}
		c.MaximumDiscountAmount = &d
	}
	if rule.minOrder != "" {
		d, err := decimal.NewFromString(rule.minOrder)
		if err != nil {
			return nil, errors.Wrap(err, "parse min order")
		}
		c.MinimumOrderAmount = &d
	}
	return c, nil
}
