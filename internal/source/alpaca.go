package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"kellyq/internal/domain"
	"kellyq/internal/util"
)

var _ Source = (*AlpacaSource)(nil)

// barClient is the subset of *marketdata.Client used here.
type barClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
	GetCryptoBars(symbol string, req marketdata.GetCryptoBarsRequest) ([]marketdata.CryptoBar, error)
}

// AlpacaOptions configures an AlpacaSource.
type AlpacaOptions struct {
	APIKey          string
	APISecret       string
	DataURL         string
	Market          string // "crypto" routes to the crypto bars endpoint
	Feed            string // equities only; empty uses the SDK default
	Start           time.Time
	End             time.Time
	RateLimitPerMin int
	MaxAttempts     int
	RetryDelay      time.Duration
}

// AlpacaSource fetches daily bars from the Alpaca market-data API.
type AlpacaSource struct {
	client  barClient
	opts    AlpacaOptions
	limiter *util.RateLimiter
	log     *slog.Logger
}

// NewAlpacaSource creates an AlpacaSource with a marketdata client built
// from opts.
func NewAlpacaSource(opts AlpacaOptions) *AlpacaSource {
	copts := marketdata.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
	}
	if opts.DataURL != "" {
		copts.BaseURL = opts.DataURL
	}
	return newAlpacaSource(marketdata.NewClient(copts), opts)
}

func newAlpacaSource(client barClient, opts AlpacaOptions) *AlpacaSource {
	if opts.RateLimitPerMin <= 0 {
		opts.RateLimitPerMin = 200
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	return &AlpacaSource{
		client:  client,
		opts:    opts,
		limiter: util.NewRateLimiter(opts.RateLimitPerMin),
		log:     slog.Default().With("source", "alpaca", "market", opts.Market),
	}
}

// Prices fetches daily closes for symbol. Crypto symbols without a quote
// currency are priced against USD.
func (a *AlpacaSource) Prices(ctx context.Context, symbol string) ([]domain.PricePoint, error) {
	bars, err := a.Bars(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
	}
	return normalize(symbol, domain.PricesFromBars(bars))
}

// Bars fetches daily bars for symbol, retrying transient failures.
func (a *AlpacaSource) Bars(ctx context.Context, symbol string) ([]domain.Bar, error) {
	end := a.opts.End
	if end.IsZero() {
		end = time.Now().UTC()
	}

	crypto := a.opts.Market == string(domain.MarketCrypto)
	if strings.TrimSpace(symbol) == "" || (!crypto && strings.Contains(symbol, "/")) {
		return nil, fmt.Errorf("%q on market %q: %w", symbol, a.opts.Market, ErrSymbolNotFound)
	}

	var bars []domain.Bar
	attempt := 0
	err := util.Retry(ctx, a.opts.MaxAttempts, a.opts.RetryDelay, func() error {
		attempt++
		if err := a.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		var err error
		if crypto {
			bars, err = a.cryptoBars(symbol, end)
		} else {
			bars, err = a.equityBars(symbol, end)
		}
		if err != nil {
			a.log.Warn("fetch failed", "symbol", symbol, "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching bars for %s: %w", symbol, err)
	}
	a.log.Debug("fetched bars", "symbol", symbol, "count", len(bars))
	return bars, nil
}

func (a *AlpacaSource) equityBars(symbol string, end time.Time) ([]domain.Bar, error) {
	raw, err := a.client.GetBars(strings.ToUpper(symbol), marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Adjustment: marketdata.All,
		Start:      a.opts.Start,
		End:        end,
		Feed:       a.opts.Feed,
	})
	if err != nil {
		return nil, err
	}
	bars := make([]domain.Bar, 0, len(raw))
	for _, ab := range raw {
		bars = append(bars, domain.Bar{
			Symbol:     strings.ToUpper(symbol),
			Timestamp:  ab.Timestamp.UTC(),
			Open:       ab.Open,
			High:       ab.High,
			Low:        ab.Low,
			Close:      ab.Close,
			Volume:     int64(ab.Volume),
			TradeCount: int64(ab.TradeCount),
			VWAP:       ab.VWAP,
		})
	}
	return bars, nil
}

func (a *AlpacaSource) cryptoBars(symbol string, end time.Time) ([]domain.Bar, error) {
	raw, err := a.client.GetCryptoBars(CryptoPair(symbol), marketdata.GetCryptoBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     a.opts.Start,
		End:       end,
	})
	if err != nil {
		return nil, err
	}
	bars := make([]domain.Bar, 0, len(raw))
	for _, cb := range raw {
		bars = append(bars, domain.Bar{
			Symbol:     strings.ToUpper(symbol),
			Timestamp:  cb.Timestamp.UTC(),
			Open:       cb.Open,
			High:       cb.High,
			Low:        cb.Low,
			Close:      cb.Close,
			Volume:     int64(cb.Volume),
			TradeCount: int64(cb.TradeCount),
			VWAP:       cb.VWAP,
		})
	}
	return bars, nil
}

// CryptoPair maps a bare crypto ticker like "eth" to Alpaca's "ETH/USD".
// Symbols that already name a pair are only upper-cased.
func CryptoPair(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.Contains(s, "/") {
		return s
	}
	return s + "/USD"
}
