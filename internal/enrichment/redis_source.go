package enrichment

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis hash keys holding the snapshot tables. Values are written by the
// offline stats job; this process only reads them once at startup.
const (
	avgAmountKey    = "enrichment:avg_amt_last_7d"
	merchantRiskKey = "enrichment:merchant_fraud_rate"

	loadTimeout = 10 * time.Second
)

// LoadRedis builds a store from two Redis hashes. Like LoadCSV, a source
// that cannot be read leaves its table unavailable; the snapshot stays
// frozen for the process lifetime even if the hashes change afterwards.
func LoadRedis(ctx context.Context, client *redis.Client, logger *slog.Logger) *Store {
	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()

	s := &Store{}

	avgRaw, err := client.HGetAll(ctx, avgAmountKey).Result()
	if err != nil {
		logger.Warn("avg-amount snapshot unavailable from redis, using defaults",
			"key", avgAmountKey, "error", err)
	} else {
		s.avgAmt = make(map[int64]float64, len(avgRaw))
		for key, val := range avgRaw {
			ccNum, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				continue
			}
			amt, err := strconv.ParseFloat(val, 64)
			if err != nil {
				continue
			}
			s.avgAmt[ccNum] = amt
		}
		s.avgAvailable = true
	}

	riskRaw, err := client.HGetAll(ctx, merchantRiskKey).Result()
	if err != nil {
		logger.Warn("merchant-risk snapshot unavailable from redis, using defaults",
			"key", merchantRiskKey, "error", err)
	} else {
		s.merchantRisk = make(map[string]float64, len(riskRaw))
		for merchant, val := range riskRaw {
			rate, err := strconv.ParseFloat(val, 64)
			if err != nil {
				continue
			}
			s.merchantRisk[merchant] = rate
		}
		s.merchantAvailable = true
	}

	return s
}
