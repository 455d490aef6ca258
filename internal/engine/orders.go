package engine

import (
	"fmt"
	"math"

	zterrors "github.com/quangdm-dev/zentrade/internal/errors"
	"github.com/quangdm-dev/zentrade/internal/monitoring"
	"github.com/quangdm-dev/zentrade/pkg/types"
)

// ExecuteSignal runs the full order pipeline for a signal: balance sync,
// risk gates, sizing, and placement. A nil order with nil error means the
// signal was a no-op (duplicate order, dust size). Risk-gate refusals come
// back as categorized errors so callers can tell them from real failures.
func (e *Engine) ExecuteSignal(sig Signal) (*types.Order, error) {
	return e.executeSignal(sig, 0, false, false)
}

func (e *Engine) executeSignal(sig Signal, sizeOverride float64, isReorder, isTaker bool) (*types.Order, error) {
	s := e.s

	// Reverse mode flips each fresh signal exactly once, here at execution.
	// Re-orders and settlement retries arrive already flipped.
	if e.opts.Reverse && !isReorder && sizeOverride == 0 {
		sig = sig.Opposite()
	}
	side := sig.Side()
	e.clearOrder(side.Opposite())
	s.LastSignal = sig

	// One working order per side. A repeat signal only upgrades the
	// existing order to taker when asked to.
	if existing := s.WorkingOrder(side); existing != nil && !isReorder {
		if isTaker {
			existing.OrderType = types.OrderTypeTaker
		}
		return nil, nil
	}

	quote, err := e.syncBalance(e.ctx)
	if err != nil {
		e.clearOrder(side)
		return nil, err
	}

	var price, size float64
	if side == types.SideBuy {
		price = e.nextBuyForQuote(quote)

		if s.BuyQuarantineTime.After(e.clock.Now()) && !s.ActedOnStop {
			e.clearOrder(side)
			return nil, zterrors.New(zterrors.CategoryRiskGate, "engine", "execute_signal",
				fmt.Sprintf("buy quarantined until %s", s.BuyQuarantineTime.Format("15:04:05")))
		}
		if err := e.checkBuyLoss(price); err != nil {
			e.clearOrder(side)
			return nil, err
		}

		buyPct := e.opts.BuyPct
		existing := s.WorkingOrder(side)
		if isReorder && existing != nil {
			// Re-derive the pct so the remaining size plus the fee already
			// paid maps back onto the deposit.
			buyPct = (sizeOverride*price + existing.Fee) / s.Balance.Deposit * 100
		}

		var fee float64
		switch {
		case e.opts.UseFeeAsset:
			fee = 0
		case e.opts.OrderType == string(types.OrderTypeMaker) && !isTaker:
			fee = e.exchange.MakerFee()
		default:
			fee = e.exchange.TakerFee()
		}

		tradeBalance := s.Balance.Deposit / 100 * buyPct
		tradeableBalance := s.Balance.Deposit / (100 + fee) * buyPct
		expectedFee := tradeBalance - tradeableBalance
		if buyPct+fee < 100 {
			size = tradeableBalance / price
		} else {
			size = (tradeBalance - expectedFee) / price
		}
	} else {
		price = e.nextSellForQuote(quote)

		if err := e.checkSellCancel(price); err != nil {
			e.clearOrder(side)
			return nil, err
		}
		if err := e.checkSellLoss(price); err != nil {
			e.clearOrder(side)
			return nil, err
		}

		sellPct := e.opts.SellPct
		size = s.Balance.Asset * sellPct / 100
		if isReorder && sizeOverride > 0 {
			size = sizeOverride
		}
	}

	if max := s.Product.MaxSize; max > 0 && size > max {
		size = max
	}
	if !e.exactOrders(side) {
		size = floorToIncrement(size, s.Product.AssetIncrement)
	}
	if e.isOrderTooSmall(size, price) {
		e.clearOrder(side)
		return nil, nil
	}

	if e.holdBlocksPlacement(side, price, size) {
		e.deferForSettlement(sig, side, size, isTaker)
		return nil, nil
	}

	orderType := types.OrderType(e.opts.OrderType)
	if isTaker {
		orderType = types.OrderTypeTaker
	}
	order := &types.Order{
		ProductID:     s.ProductID,
		Side:          side,
		Price:         price,
		Size:          size,
		OrigSize:      size,
		RemainingSize: size,
		OrigPrice:     price,
		OrderType:     orderType,
		PostOnly:      e.opts.PostOnly && orderType == types.OrderTypeMaker,
		CancelAfter:   e.opts.CancelAfter,
		OrigTime:      e.clock.Now(),
		LocalTime:     e.clock.Now(),
	}
	if isReorder && s.WorkingOrder(side) != nil {
		order.Fee = s.WorkingOrder(side).Fee
	}
	s.SetWorkingOrder(side, order)

	if err := e.doOrder(order); err != nil {
		return nil, err
	}
	return order, nil
}

// holdBlocksPlacement reports whether unsettled holds leave too little free
// balance for the order. Plain insufficiency with nothing on hold is left
// for the exchange to reject.
func (e *Engine) holdBlocksPlacement(side types.Side, price, size float64) bool {
	b := e.s.Balance
	if side == types.SideBuy {
		return b.CurrencyHold > 0 && b.Deposit-b.CurrencyHold < price*size
	}
	return b.AssetHold > 0 && b.Asset-b.AssetHold < size
}

// deferForSettlement retries the signal once the held funds have had time to
// settle, but only while it is still the engine's latest signal.
func (e *Engine) deferForSettlement(sig Signal, side types.Side, size float64, isTaker bool) {
	e.log.Debug("%s delayed: funds on hold, retrying after settlement", side)
	e.sched.Schedule("settle:"+side.String(), e.opts.WaitForSettlement(), func() {
		e.post(func() {
			if e.s.LastSignal != sig {
				return
			}
			if _, err := e.executeSignal(sig, size, true, isTaker); err != nil {
				e.log.LogError("order retry after settlement", err)
			}
		})
	})
}

func (e *Engine) nextBuyForQuote(q *types.Quote) float64 {
	if p := e.s.NextBuyPrice; p > 0 {
		return floorToIncrement(p, e.s.Product.PriceIncrement)
	}
	price := q.Bid * (1 - e.opts.MarkdownBuyPct/100)
	return floorToIncrement(price, e.s.Product.PriceIncrement)
}

func (e *Engine) nextSellForQuote(q *types.Quote) float64 {
	if p := e.s.NextSellPrice; p > 0 {
		return floorToIncrement(p, e.s.Product.PriceIncrement)
	}
	price := q.Ask * (1 + e.opts.MarkupSellPct/100)
	return floorToIncrement(price, e.s.Product.PriceIncrement)
}

// checkBuyLoss refuses buys that sit too far above the last sell run's
// lowest fill, so a whipsaw cannot immediately buy back at a worse price.
func (e *Engine) checkBuyLoss(price float64) error {
	if e.opts.MaxBuyLossPct == nil {
		return nil
	}
	ref := e.s.LastSellPrice
	if t := e.s.latestOppositeExtreme(types.SideBuy); t != nil {
		ref = t.Price
	}
	if ref == 0 || price <= ref {
		return nil
	}
	loss := (price - ref) / ref * 100
	if loss > *e.opts.MaxBuyLossPct {
		return zterrors.NewLossProtection("buy", price, loss, *e.opts.MaxBuyLossPct)
	}
	return nil
}

// checkSellCancel drops a sell whose price sits inside the hold band
// around the last buy. Runs before the loss gate, so a sell inside the
// band is quietly skipped rather than rejected for loss.
func (e *Engine) checkSellCancel(price float64) error {
	if e.opts.SellCancelPct == nil || e.s.LastBuyPrice == 0 {
		return nil
	}
	band := *e.opts.SellCancelPct / 100
	lo := e.s.LastBuyPrice * (1 - band)
	hi := e.s.LastBuyPrice * (1 + band)
	if price >= lo && price <= hi {
		return zterrors.New(zterrors.CategoryRiskGate, "engine", "execute_signal",
			fmt.Sprintf("sell canceled, price %.8g within %.2f%% of last buy %.8g", price, *e.opts.SellCancelPct, e.s.LastBuyPrice))
	}
	return nil
}

func (e *Engine) checkSellLoss(price float64) error {
	if e.opts.MaxSellLossPct == nil {
		return nil
	}
	ref := e.s.LastBuyPrice
	if t := e.s.latestOppositeExtreme(types.SideSell); t != nil {
		ref = t.Price
	}
	if ref == 0 || price >= ref {
		return nil
	}
	loss := (ref - price) / ref * 100
	if loss > *e.opts.MaxSellLossPct {
		return zterrors.NewLossProtection("sell", price, loss, *e.opts.MaxSellLossPct)
	}
	return nil
}

func (e *Engine) exactOrders(side types.Side) bool {
	if side == types.SideBuy {
		return e.opts.ExactBuyOrders
	}
	return e.opts.ExactSellOrders
}

func (e *Engine) isOrderTooSmall(size, price float64) bool {
	p := e.s.Product
	if p.MinSize > 0 && size < p.MinSize {
		return true
	}
	if p.MinTotal > 0 && size*price < p.MinTotal {
		return true
	}
	return false
}

// doOrder places the order and wires up the poll cycle. Exchange-level
// rejections come back as terminal order states, not transport errors;
// post-only, balance, and price rejections are recoverable and clear the
// working slot so the next signal can try again.
func (e *Engine) doOrder(order *types.Order) error {
	s := e.s
	side := order.Side

	var placed *types.Order
	var err error
	if side == types.SideBuy {
		placed, err = e.exchange.Buy(e.ctx, order)
	} else {
		placed, err = e.exchange.Sell(e.ctx, order)
	}
	if err != nil {
		e.clearOrder(side)
		monitoring.RecordError("order_place")
		return zterrors.Wrap(err, zterrors.CategoryOrder, "engine", "do_order",
			fmt.Sprintf("failed to place %s order", side))
	}

	order.OrderID = placed.OrderID
	order.OrderLinkID = placed.OrderLinkID
	order.Status = placed.Status
	order.Time = placed.Time
	if placed.Price > 0 {
		order.Price = placed.Price
	}

	if order.Status == types.OrderStatusRejected {
		e.clearOrder(side)
		switch order.RejectReason = placed.RejectReason; order.RejectReason {
		case types.RejectReasonPostOnly:
			e.log.Debug("post-only %s order rejected, waiting for next signal", side)
			return nil
		case types.RejectReasonBalance:
			e.log.Warning("%s order rejected for balance, skipping", side)
			return nil
		case types.RejectReasonPrice:
			e.log.Warning("%s order rejected for price, skipping", side)
			return nil
		default:
			return zterrors.NewOrderRejected(side.String(), order.RejectReason)
		}
	}

	if order.Status == types.OrderStatusDone {
		e.finalizeOrder(order)
		if _, err := e.syncBalance(e.ctx); err != nil {
			e.log.LogError("post-fill balance sync", err)
		}
		return nil
	}

	s.Action = side.String() + " order placed"
	e.log.Trade("placed %s order %s: %.8g @ %.8g", side, order.OrderID, order.Size, order.Price)
	e.sched.Schedule("order:"+side.String(), e.opts.OrderPollTime(), func() {
		e.post(func() { e.checkOrder(order) })
	})
	return nil
}

// checkOrder polls a working order. Done orders are finalized; open orders
// that have outlived the adjust window are repriced against a fresh quote;
// younger ones just get another poll. Poll failures reschedule rather than
// abandoning the order.
func (e *Engine) checkOrder(order *types.Order) {
	s := e.s
	side := order.Side
	if s.WorkingOrder(side) != order {
		return
	}
	monitoring.RecordOrderPoll()

	api, err := e.exchange.GetOrder(e.ctx, order.OrderID, order.ProductID)
	if err != nil {
		e.log.LogError("order poll", err)
		monitoring.RecordError("order_poll")
		e.sched.Schedule("order:"+side.String(), e.opts.OrderPollTime(), func() {
			e.post(func() { e.checkOrder(order) })
		})
		return
	}

	order.Status = api.Status
	if api.FilledSize > 0 {
		order.FilledSize = api.FilledSize
		order.RemainingSize = order.Size - api.FilledSize
	}

	if order.Status == types.OrderStatusDone {
		if !api.DoneAt.IsZero() {
			order.Time = api.DoneAt
		} else {
			order.Time = e.clock.Now()
		}
		if api.Price > 0 {
			order.Price = api.Price
		}
		e.finalizeOrder(order)
		if _, err := e.syncBalance(e.ctx); err != nil {
			e.log.LogError("post-fill balance sync", err)
		}
		return
	}
	if order.Status == types.OrderStatusRejected && api.RejectReason == types.RejectReasonPostOnly {
		e.clearOrder(side)
		e.log.Debug("post-only %s order rejected during poll", side)
		return
	}

	if e.clock.Now().Sub(order.OrigTime) < e.opts.OrderAdjustTime() {
		e.sched.Schedule("order:"+side.String(), e.opts.OrderPollTime(), func() {
			e.post(func() { e.checkOrder(order) })
		})
		return
	}

	e.adjustOrder(order)
}

// adjustOrder reprices a stale open order. If the market has moved away
// from the resting price, the order is canceled and re-placed for its
// remaining size; slippage beyond the configured cap cancels without
// re-placing.
func (e *Engine) adjustOrder(order *types.Order) {
	s := e.s
	side := order.Side

	quote, err := e.exchange.GetQuote(e.ctx, s.ProductID)
	if err != nil {
		e.log.LogError("quote for order adjust", err)
		e.sched.Schedule("order:"+side.String(), e.opts.OrderPollTime(), func() {
			e.post(func() { e.checkOrder(order) })
		})
		return
	}
	s.Quote = *quote

	var marked float64
	if side == types.SideBuy {
		marked = e.nextBuyForQuote(quote)
	} else {
		marked = e.nextSellForQuote(quote)
	}

	moved := (e.exactOrders(side) && marked != order.Price) ||
		(side == types.SideBuy && order.Price < marked) ||
		(side == types.SideSell && order.Price > marked)
	if !moved {
		// Still competitive; restart the adjust window.
		order.OrigTime = e.clock.Now()
		e.sched.Schedule("order:"+side.String(), e.opts.OrderPollTime(), func() {
			e.post(func() { e.checkOrder(order) })
		})
		return
	}

	if e.opts.MaxSlippagePct != nil {
		slippage := (marked - order.OrigPrice) / order.OrigPrice * 100
		if side == types.SideSell {
			slippage = -slippage
		}
		if slippage > *e.opts.MaxSlippagePct {
			e.log.Warning("%v", zterrors.NewSlippageProtection(side.String(), marked, slippage, *e.opts.MaxSlippagePct))
			e.cancelOrder(order, false)
			return
		}
	}

	e.log.Trade("repricing %s order from %.8g to %.8g", side, order.Price, marked)
	monitoring.RecordReprice(side.String())
	e.cancelOrder(order, true)
}

// cancelOrder cancels on the exchange, then waits out settlement: a cancel
// can race a fill, so the order is re-fetched and the held balance watched
// until it releases before any re-order.
func (e *Engine) cancelOrder(order *types.Order, reorder bool) {
	side := order.Side
	if err := e.exchange.CancelOrder(e.ctx, order.OrderID, order.ProductID); err != nil {
		e.log.LogError("order cancel", err)
		monitoring.RecordError("order_cancel")
		e.sched.Schedule("order:"+side.String(), e.opts.OrderPollTime(), func() {
			e.post(func() { e.checkOrder(order) })
		})
		return
	}
	e.checkHold(order, reorder)
}

func (e *Engine) checkHold(order *types.Order, reorder bool) {
	s := e.s
	side := order.Side

	api, err := e.exchange.GetOrder(e.ctx, order.OrderID, order.ProductID)
	if err == nil && api != nil {
		if api.Status == types.OrderStatusDone {
			// Cancel lost the race; the order filled.
			if !api.DoneAt.IsZero() {
				order.Time = api.DoneAt
			} else {
				order.Time = e.clock.Now()
			}
			if api.Price > 0 {
				order.Price = api.Price
			}
			order.Status = types.OrderStatusDone
			e.log.Trade("cancel failed, %s order filled, executing", side)
			e.finalizeOrder(order)
			if _, err := e.syncBalance(e.ctx); err != nil {
				e.log.LogError("post-fill balance sync", err)
			}
			return
		}
		if api.FilledSize > 0 {
			order.FilledSize = api.FilledSize
			order.RemainingSize = order.Size - api.FilledSize
		}
	}

	if _, err := e.syncBalance(e.ctx); err != nil {
		e.log.LogError("balance sync during cancel", err)
	}

	var onHold bool
	if side == types.SideBuy {
		onHold = s.Balance.CurrencyHold > 0 && s.Balance.CurrencyHold >= order.RemainingSize*order.Price
	} else {
		onHold = s.Balance.AssetHold > 0 && s.Balance.AssetHold >= order.RemainingSize
	}
	if onHold {
		e.sched.Schedule("order:"+side.String(), e.opts.WaitForSettlement(), func() {
			e.post(func() { e.checkHold(order, reorder) })
		})
		return
	}

	e.sched.Cancel("order:" + side.String())
	if reorder && order.RemainingSize > 0 {
		// The old order stays in the slot so the re-order can account for
		// fees already paid; executeSignal replaces it.
		if _, err := e.executeSignal(signalForSide(side), order.RemainingSize, true, false); err != nil {
			e.log.LogError("re-order after cancel", err)
		}
	} else {
		s.SetWorkingOrder(side, nil)
	}
}

// finalizeOrder records the fill, rearms the stops from the fill price,
// and notifies. A losing sell arms the buy quarantine window.
func (e *Engine) finalizeOrder(order *types.Order) {
	s := e.s
	side := order.Side
	price := order.Price
	now := order.Time
	if now.IsZero() {
		now = e.clock.Now()
	}

	var pct float64
	if order.OrderType == types.OrderTypeMaker {
		pct = e.exchange.MakerFee()
	} else {
		pct = e.exchange.TakerFee()
	}
	if e.opts.UseFeeAsset {
		pct = 0
	}
	var fee float64
	if side == types.SideBuy {
		fee = order.Size * pct / 100
	} else {
		fee = order.Size * price * pct / 100
	}

	slippage := (price - order.OrigPrice) / order.OrigPrice
	if side == types.SideSell {
		slippage = -slippage
	}

	mt := types.MyTrade{
		OrderID:       order.OrderID,
		Time:          now,
		ExecutionTime: now.Sub(order.OrigTime),
		Slippage:      slippage,
		Type:          side,
		Size:          order.Size,
		Fee:           fee,
		Price:         price,
		OrderType:     order.OrderType,
		CancelAfter:   order.CancelAfter,
	}

	// NetCurrency tracks currency flow at fill time rather than as per-sync
	// asset deltas. The totals agree once holds settle; a fill landing
	// between syncs is just counted when it happens instead of a sync later.
	if side == types.SideBuy {
		s.Action = "bought"
		s.NetCurrency -= order.Size * price
		s.LastBuyPrice = price
		s.SellStop = 0
		if e.opts.SellStopPct > 0 {
			s.SellStop = price * (1 - e.opts.SellStopPct/100)
		}
		s.BuyStop = 0
	} else {
		s.Action = "sold"
		s.NetCurrency += order.Size*price - fee
		if s.LastBuyPrice > 0 {
			mt.Profit = (price - s.LastBuyPrice) / s.LastBuyPrice
			mt.HasProfit = true
		}
		s.LastSellPrice = price
		s.BuyStop = 0
		if e.opts.BuyStopPct > 0 {
			s.BuyStop = price * (1 + e.opts.BuyStopPct/100)
		}
		s.SellStop = 0
		if mt.HasProfit && mt.Profit < 0 && e.opts.QuarantineTime() > 0 {
			s.BuyQuarantineTime = e.clock.Now().Add(e.opts.QuarantineTime())
		}
	}
	s.ProfitStop = 0
	s.ProfitStopHigh = 0
	s.ActedOnStop = false
	s.StopTriggered = ""
	s.MyTrades = append(s.MyTrades, &mt)
	e.clearOrder(side)

	monitoring.RecordTrade(side.String())
	monitoring.SetCurrentPrice(price)
	e.log.LogFill(side.String(), order.Size, price, fee, slippage, mt.ExecutionTime)

	if ol, ok := e.strategy.(OrderListener); ok {
		ol.OrderExecuted(s, side)
	}

	if side == types.SideSell || !e.onlyCompletedTrades() {
		title := fmt.Sprintf("%s %s", s.Action, s.ProductID)
		body := fmt.Sprintf("%.8g %s @ %.8g %s", order.Size, s.Asset, price, s.Currency)
		if mt.HasProfit {
			body += fmt.Sprintf(" (%.2f%%)", mt.Profit*100)
		}
		e.pushMessage(title, body)
	}
}

func (e *Engine) clearOrder(side types.Side) {
	e.s.SetWorkingOrder(side, nil)
	e.sched.Cancel("order:" + side.String())
}

func signalForSide(side types.Side) Signal {
	if side == types.SideSell {
		return SignalSell
	}
	return SignalBuy
}

func floorToIncrement(value, increment float64) float64 {
	if increment <= 0 {
		return value
	}
	return math.Floor(value/increment+1e-9) * increment
}
