package engine

import (
	"context"
	"fmt"

	zterrors "github.com/quangdm-dev/zentrade/internal/errors"
	"github.com/quangdm-dev/zentrade/pkg/types"
)

// syncBalance refreshes the balance and quote from the exchange and keeps
// the derived capital figures current. The first successful sync latches
// the session's starting capital and price, which all later profit math is
// measured against.
func (e *Engine) syncBalance(ctx context.Context) (*types.Quote, error) {
	s := e.s

	balance, err := e.exchange.GetBalance(ctx, s.Asset, s.Currency)
	if err != nil {
		return nil, zterrors.Wrap(err, zterrors.CategoryExchange, "engine", "sync_balance", "failed to fetch balance")
	}
	s.Balance = *balance

	quote, err := e.exchange.GetQuote(ctx, s.ProductID)
	if err != nil {
		return nil, zterrors.Wrap(err, zterrors.CategoryExchange, "engine", "sync_balance", "failed to fetch quote")
	}
	s.Quote = *quote

	s.AssetCapital = s.Balance.Asset * quote.Ask

	// The deposit caps how much currency the engine may trade with. Asset
	// already held counts against the cap, floored at zero so an oversized
	// position cannot produce a negative budget.
	if e.opts.Deposit > 0 {
		deposit := e.opts.Deposit - s.AssetCapital
		if deposit < 0 {
			deposit = 0
		}
		if deposit > s.Balance.Currency {
			deposit = s.Balance.Currency
		}
		s.Balance.Deposit = deposit
	} else {
		s.Balance.Deposit = s.Balance.Currency
	}

	if s.StartCapital == 0 {
		s.StartPrice = quote.Ask
		s.StartCapital = s.Balance.Deposit + s.AssetCapital
		s.RealCapital = s.Balance.Currency + s.AssetCapital
		s.NetCurrency = s.Balance.Deposit
		if s.OrigCapital == 0 {
			s.OrigCapital = s.StartCapital
			s.OrigPrice = s.StartPrice
		}
		e.log.LogBalanceSync(s.Balance.Asset, s.Balance.Currency, s.StartCapital)
		e.pushMessage("Balance "+e.exchange.Name(), fmt.Sprintf("sync balance %.2f %s", s.RealCapital, s.Currency))
	}

	return quote, nil
}
