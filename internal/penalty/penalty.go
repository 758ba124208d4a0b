// Package penalty turns a dead streak into a real trade. When a user
// runs out of lives the executor buys a junk-tier NSE stock with their
// configured risk amount, falling back to an after-market order when
// the exchange is closed.
package penalty

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"

	"github.com/gameleet/gameleet-engine/internal/kite"
	"github.com/gameleet/gameleet-engine/internal/store"
)

// Venue is the slice of the broker API the executor needs.
type Venue interface {
	LTP(ctx context.Context, instrument string) (float64, error)
	PlaceOrder(ctx context.Context, variety string, p kite.OrderParams) (string, error)
}

// VenueFactory builds a venue client from per-user broker credentials.
type VenueFactory func(apiKey, accessToken string) Venue

// Mailer is the notification surface; delivery is best effort.
type Mailer interface {
	SendPenaltyNotice(ctx context.Context, to, name, symbol string, qty int, amount float64, amo bool) error
}

// Result describes an executed penalty.
type Result struct {
	Symbol  string
	Qty     int
	Price   float64
	OrderID string
	AMO     bool
}

type Executor struct {
	venues      VenueFactory
	mailer      Mailer
	instruments []string
	defaultRisk float64
	dryRun      bool
	pick        func(n int) int
}

func NewExecutor(venues VenueFactory, mailer Mailer, instruments []string, defaultRisk float64, dryRun bool) *Executor {
	if len(instruments) == 0 {
		instruments = []string{"IDEA"}
	}
	if defaultRisk <= 0 {
		defaultRisk = 100
	}
	return &Executor{
		venues:      venues,
		mailer:      mailer,
		instruments: instruments,
		defaultRisk: defaultRisk,
		dryRun:      dryRun,
		pick:        rand.Intn,
	}
}

// Execute places the penalty trade for the user. Users without broker
// credentials are skipped with a nil result. The order goes in as a
// regular market buy; a closed-market rejection is retried exactly once
// as AMO.
func (e *Executor) Execute(ctx context.Context, u *store.User, p *store.Progress) (*Result, error) {
	if u.KiteAPIKey == "" || u.KiteAccessToken == "" {
		log.Printf("penalty: user %s has no broker credentials, skipping", u.PublicID)
		return nil, nil
	}

	symbol := e.instruments[e.pick(len(e.instruments))]
	risk := float64(p.DailyRiskAmount)
	if risk <= 0 {
		risk = e.defaultRisk
	}

	venue := e.venues(u.KiteAPIKey, u.KiteAccessToken)
	qty := 1
	price, err := venue.LTP(ctx, "NSE:"+symbol)
	if err != nil {
		// Quote failure still costs the user: fall back to a single
		// share.
		log.Printf("penalty: quote NSE:%s for %s: %v", symbol, u.PublicID, err)
		price = 0
	} else if price > 0 {
		if q := int(math.Floor(risk / price)); q > 1 {
			qty = q
		}
	}

	if e.dryRun {
		log.Printf("penalty: dry run, would buy %d x %s for %s", qty, symbol, u.PublicID)
		return &Result{Symbol: symbol, Qty: qty, Price: price}, nil
	}

	params := kite.OrderParams{
		Exchange:        kite.ExchangeNSE,
		TradingSymbol:   symbol,
		TransactionType: kite.TransactionBuy,
		Quantity:        qty,
		OrderType:       kite.OrderTypeMarket,
		Product:         kite.ProductCNC,
		Validity:        kite.ValidityDay,
	}

	amo := false
	orderID, err := venue.PlaceOrder(ctx, kite.VarietyRegular, params)
	if errors.Is(err, kite.ErrMarketClosed) {
		amo = true
		orderID, err = venue.PlaceOrder(ctx, kite.VarietyAMO, params)
	}
	if err != nil {
		return nil, fmt.Errorf("penalty: order %d x %s for %s: %w", qty, symbol, u.PublicID, err)
	}

	res := &Result{Symbol: symbol, Qty: qty, Price: price, OrderID: orderID, AMO: amo}
	log.Printf("penalty: placed order %s: %d x %s (amo=%v) for %s", orderID, qty, symbol, amo, u.PublicID)

	// The notice goes out regardless of the reminder opt-out; only the
	// nudge emails honor AllowNotifications.
	if e.mailer != nil {
		if err := e.mailer.SendPenaltyNotice(ctx, u.Email, u.Name, symbol, qty, price*float64(qty), amo); err != nil {
			log.Printf("penalty: notify %s: %v", u.Email, err)
		}
	}
	return res, nil
}
