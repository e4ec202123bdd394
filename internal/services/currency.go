package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"sync"
	"time"
)

const (
	dolarAPIURL   = "https://dolarapi.com/v1/dolares/oficial"
	bluelyticsURL = "https://api.bluelytics.com.ar/v2/latest"
	rateCacheTTL  = time.Hour
)

// Rate sources, reported alongside every rate so callers can log when
// the emergency constant had to be used.
const (
	RateSourceDolarAPI   = "dolarapi"
	RateSourceBluelytics = "bluelytics"
	RateSourceEmergency  = "emergency"
)

var currencyHTTPClient = &http.Client{Timeout: 10 * time.Second}

// CurrencyService produces an ARS-per-USD rate with a safety margin.
// Only the PayPal gateway consumes it; every monetary value sent to
// PayPal must go through ConvertARSToUSD exactly once.
type CurrencyService struct {
	margin        float64
	emergencyRate float64

	// Injectable for tests.
	fetchPrimary   func() (float64, error)
	fetchSecondary func() (float64, error)
	now            func() time.Time

	mu          sync.RWMutex
	cachedRate  float64
	cacheSource string
	cacheExpiry time.Time
}

// NewCurrencyService builds the service with the given markup multiplier
// (e.g. 1.15) and hardcoded emergency ARS-per-USD rate.
func NewCurrencyService(margin, emergencyRate float64) *CurrencyService {
	s := &CurrencyService{
		margin:        margin,
		emergencyRate: emergencyRate,
		now:           time.Now,
	}
	s.fetchPrimary = fetchDolarAPIRate
	s.fetchSecondary = fetchBluelyticsRate
	return s
}

// Margin returns the configured markup multiplier.
func (s *CurrencyService) Margin() float64 {
	return s.margin
}

// GetUSDRate returns the cached official ARS-per-USD rate, refreshing it
// when the 1-hour TTL has elapsed. It never fails: when both external
// sources are down it returns the emergency constant and reports
// RateSourceEmergency.
func (s *CurrencyService) GetUSDRate() (float64, string) {
	s.mu.RLock()
	if s.cachedRate > 0 && s.now().Before(s.cacheExpiry) {
		rate, source := s.cachedRate, s.cacheSource
		s.mu.RUnlock()
		return rate, source
	}
	s.mu.RUnlock()

	rate, source := s.fetchRateFromAPIs()

	// Concurrent refreshes on expiry are tolerated; last writer wins.
	s.mu.Lock()
	if source != RateSourceEmergency {
		s.cachedRate = rate
		s.cacheSource = source
		s.cacheExpiry = s.now().Add(rateCacheTTL)
	}
	s.mu.Unlock()

	return rate, source
}

func (s *CurrencyService) fetchRateFromAPIs() (float64, string) {
	if rate, err := s.fetchPrimary(); err == nil && rate > 0 {
		return rate, RateSourceDolarAPI
	} else if err != nil {
		log.Printf("[Currency] primary rate source failed: %v", err)
	}

	if rate, err := s.fetchSecondary(); err == nil && rate > 0 {
		return rate, RateSourceBluelytics
	} else if err != nil {
		log.Printf("[Currency] secondary rate source failed: %v", err)
	}

	log.Printf("[Currency] all rate sources failed, using emergency rate %.2f", s.emergencyRate)
	return s.emergencyRate, RateSourceEmergency
}

// Conversion is the result of an ARS to USD conversion, with enough
// detail for receipts and audit logs.
type Conversion struct {
	AmountARS     float64 `json:"amount_ars"`
	AmountUSD     float64 `json:"amount_usd"`
	OfficialRate  float64 `json:"official_rate"`
	EffectiveRate float64 `json:"effective_rate"`
	MarginApplied bool    `json:"margin_applied"`
	RateSource    string  `json:"rate_source"`
}

// ConvertARSToUSD converts an ARS amount to USD. With applyMargin the
// configured markup is built into the price the foreign buyer pays.
// Results are rounded half-up to 2 decimal places (PayPal's minimum
// granularity). EffectiveRate is officialRate/margin.
func (s *CurrencyService) ConvertARSToUSD(amountARS float64, applyMargin bool) Conversion {
	rate, source := s.GetUSDRate()

	usd := amountARS / rate
	effective := rate
	if applyMargin {
		usd *= s.margin
		effective = rate / s.margin
	}

	return Conversion{
		AmountARS:     amountARS,
		AmountUSD:     Round2(usd),
		OfficialRate:  rate,
		EffectiveRate: effective,
		MarginApplied: applyMargin,
		RateSource:    source,
	}
}

// Round2 rounds half-up (away from zero) to 2 decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

type dolarAPIResponse struct {
	Venta  float64 `json:"venta"`
	Compra float64 `json:"compra"`
}

func fetchDolarAPIRate() (float64, error) {
	resp, err := currencyHTTPClient.Get(dolarAPIURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("dolarapi returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	var payload dolarAPIResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, err
	}

	if payload.Venta <= 0 {
		return 0, errors.New("dolarapi returned empty venta")
	}

	return payload.Venta, nil
}

type bluelyticsResponse struct {
	Oficial struct {
		ValueBuy  float64 `json:"value_buy"`
		ValueSell float64 `json:"value_sell"`
	} `json:"oficial"`
}

// fetchBluelyticsRate averages bid/ask because Bluelytics publishes both.
func fetchBluelyticsRate() (float64, error) {
	resp, err := currencyHTTPClient.Get(bluelyticsURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("bluelytics returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	var payload bluelyticsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, err
	}

	avg := (payload.Oficial.ValueBuy + payload.Oficial.ValueSell) / 2
	if avg <= 0 {
		return 0, errors.New("bluelytics returned empty oficial rates")
	}

	return avg, nil
}
