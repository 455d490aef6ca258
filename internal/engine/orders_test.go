package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quangdm-dev/zentrade/internal/config"
	"github.com/quangdm-dev/zentrade/pkg/types"
)

func pctPtr(v float64) *float64 { return &v }

func TestOrders_BuySizingLeavesRoomForFee(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Engine.BuyPct = 50
	})
	h.tick(0, 100, 1)

	order, err := h.e.ExecuteSignal(SignalBuy)
	require.NoError(t, err)
	require.NotNil(t, order)

	// Deposit 1000, buy_pct 50, maker rebate -0.02%: the tradeable balance
	// is 1000/(100-0.02)*50 = 500.10, sized at the quote.
	assert.InDelta(t, 500.10002, order.Size*order.Price, 0.001)
	assert.Equal(t, types.OrderTypeMaker, order.OrderType)
	assert.Same(t, order, h.e.s.BuyOrder)
}

func TestOrders_FullBuyPctReservesExpectedFee(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Engine.BuyPct = 100
		cfg.Engine.OrderType = "taker"
	})
	h.tick(0, 100, 1)

	order, err := h.e.ExecuteSignal(SignalBuy)
	require.NoError(t, err)
	require.NotNil(t, order)

	// buy_pct + fee >= 100 switches to the fee-reserving formula:
	// (1000 - (1000 - 1000/100.1*100)) / 100.
	tradeBalance := 1000.0
	tradeable := 1000.0 / 100.1 * 100
	want := (tradeBalance - (tradeBalance - tradeable)) / 100
	assert.InDelta(t, want, order.Size, 1e-6)
}

func TestOrders_OneWorkingOrderPerSide(t *testing.T) {
	h := newHarness(t, nil)
	h.tick(0, 100, 1)

	first, err := h.e.ExecuteSignal(SignalBuy)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := h.e.ExecuteSignal(SignalBuy)
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.Same(t, first, h.e.s.BuyOrder)
}

func TestOrders_RepeatSignalUpgradesToTaker(t *testing.T) {
	h := newHarness(t, nil)
	h.tick(0, 100, 1)

	first, err := h.e.ExecuteSignal(SignalBuy)
	require.NoError(t, err)
	require.NotNil(t, first)
	require.Equal(t, types.OrderTypeMaker, first.OrderType)

	_, err = h.e.executeSignal(SignalBuy, 0, false, true)
	require.NoError(t, err)
	assert.Equal(t, types.OrderTypeTaker, first.OrderType)
}

func TestOrders_ReverseFlipsSignalAtExecution(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Engine.Reverse = true
		cfg.Engine.AssetCapital = 5
	})
	h.tick(0, 100, 1)

	order, err := h.e.ExecuteSignal(SignalBuy)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, types.SideSell, order.Side)
	assert.Nil(t, h.e.s.BuyOrder)
	assert.Same(t, order, h.e.s.SellOrder)
	assert.Equal(t, SignalSell, h.e.s.LastSignal)
}

func TestOrders_NewSignalClearsOppositeOrder(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Engine.AssetCapital = 5
	})
	h.tick(0, 100, 1)

	buy, err := h.e.ExecuteSignal(SignalBuy)
	require.NoError(t, err)
	require.NotNil(t, buy)

	sell, err := h.e.ExecuteSignal(SignalSell)
	require.NoError(t, err)
	require.NotNil(t, sell)
	assert.Nil(t, h.e.s.BuyOrder)
	assert.False(t, h.e.sched.Pending("order:buy"))
	assert.Same(t, sell, h.e.s.SellOrder)
}

func TestOrders_BuyDeferredWhileFundsOnHold(t *testing.T) {
	h := newHarness(t, nil)
	h.tick(0, 100, 1)

	// An unsettled order holds most of the currency on the exchange.
	held, err := h.sim.Buy(context.Background(), &types.Order{
		ProductID: "BTC-USDT", Price: 100, Size: 9.9, OrderType: types.OrderTypeMaker,
	})
	require.NoError(t, err)
	require.Equal(t, types.OrderStatusOpen, held.Status)

	order, err := h.e.ExecuteSignal(SignalBuy)
	require.NoError(t, err)
	assert.Nil(t, order)
	assert.Nil(t, h.e.s.BuyOrder)
	assert.True(t, h.e.sched.Pending("settle:buy"))

	// Once the hold releases, the retry places the order.
	require.NoError(t, h.sim.CancelOrder(context.Background(), held.OrderID, "BTC-USDT"))
	h.advance(h.e.opts.WaitForSettlement())
	require.NotNil(t, h.e.s.BuyOrder)
}

func TestOrders_SellDeferredWhileAssetOnHold(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Engine.AssetCapital = 5
	})
	h.tick(0, 100, 1)

	held, err := h.sim.Sell(context.Background(), &types.Order{
		ProductID: "BTC-USDT", Price: 200, Size: 4.9, OrderType: types.OrderTypeMaker,
	})
	require.NoError(t, err)
	require.Equal(t, types.OrderStatusOpen, held.Status)

	order, err := h.e.ExecuteSignal(SignalSell)
	require.NoError(t, err)
	assert.Nil(t, order)
	assert.True(t, h.e.sched.Pending("settle:sell"))

	// A newer signal supersedes the deferred sell; the retry stands down.
	h.e.s.LastSignal = SignalBuy
	require.NoError(t, h.sim.CancelOrder(context.Background(), held.OrderID, "BTC-USDT"))
	h.advance(h.e.opts.WaitForSettlement())
	assert.Nil(t, h.e.s.SellOrder)
}

func TestOrders_PinnedBuyPriceOverridesQuote(t *testing.T) {
	h := newHarness(t, nil)
	h.tick(0, 100, 1)
	h.e.s.NextBuyPrice = 95

	order, err := h.e.ExecuteSignal(SignalBuy)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, 95.0, order.Price)
}

func TestOrders_PinnedSellPriceOverridesQuote(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Engine.AssetCapital = 5
	})
	h.tick(0, 100, 1)
	h.e.s.NextSellPrice = 120

	order, err := h.e.ExecuteSignal(SignalSell)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, 120.0, order.Price)
}

func TestOrders_MakerOrderRestsThenFills(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Engine.SellStopPct = 6
	})
	h.tick(0, 100, 1)

	order, err := h.e.ExecuteSignal(SignalBuy)
	require.NoError(t, err)
	require.NotNil(t, order)
	require.Empty(t, h.e.s.MyTrades)

	// A trade printing through the limit fills it on the exchange; the
	// engine picks it up on the next poll.
	h.tick(time.Second, 99, 1)
	h.advance(h.e.opts.OrderPollTime())

	require.Len(t, h.e.s.MyTrades, 1)
	mt := h.e.s.MyTrades[0]
	assert.Equal(t, types.SideBuy, mt.Type)
	assert.Equal(t, 100.0, mt.Price)
	assert.Nil(t, h.e.s.BuyOrder)
	assert.Equal(t, 100.0, h.e.s.LastBuyPrice)
	assert.InDelta(t, 94.0, h.e.s.SellStop, 1e-9)
	assert.Equal(t, "bought", h.e.s.Action)
}

func TestOrders_BuyFillFeeInAssetUnits(t *testing.T) {
	h := newHarness(t, nil)
	h.tick(0, 100, 1)

	order, err := h.e.ExecuteSignal(SignalBuy)
	require.NoError(t, err)
	require.NotNil(t, order)

	h.tick(time.Second, 99, 1)
	h.advance(h.e.opts.OrderPollTime())

	require.Len(t, h.e.s.MyTrades, 1)
	mt := h.e.s.MyTrades[0]
	// Maker rebate of -0.02% comes back negative, denominated in asset.
	assert.InDelta(t, mt.Size*-0.02/100, mt.Fee, 1e-12)
}

func TestOrders_SellLossProtection(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Engine.MaxSellLossPct = pctPtr(5)
		cfg.Engine.AssetCapital = 5
	})
	h.tick(0, 90, 1)
	h.e.s.LastBuyPrice = 100
	lastBuyAt(h, 100)

	// 10% under the reference buy: refused.
	order, err := h.e.ExecuteSignal(SignalSell)
	assert.Nil(t, order)
	require.Error(t, err)
	engErr, ok := err.(interface{ IsRiskGate() bool })
	require.True(t, ok)
	assert.True(t, engErr.IsRiskGate())
	assert.Nil(t, h.e.s.SellOrder)

	// 4% under: permitted.
	h.tick(time.Second, 96, 1)
	order, err = h.e.ExecuteSignal(SignalSell)
	require.NoError(t, err)
	assert.NotNil(t, order)
}

func TestOrders_SellLossUsesHighestTrailingBuy(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Engine.MaxSellLossPct = pctPtr(5)
		cfg.Engine.AssetCapital = 5
	})
	// History ends in a buy run; the highest buy is the loss reference.
	lastBuyAt(h, 100)
	lastBuyAt(h, 110)

	h.tick(0, 106, 1)
	order, err := h.e.ExecuteSignal(SignalSell)
	// 106 vs reference 110 is a 3.6% loss, inside the 5% cap.
	require.NoError(t, err)
	assert.NotNil(t, order)
}

func TestOrders_SellCancelBandBeforeLossGate(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Engine.SellCancelPct = pctPtr(5)
		cfg.Engine.MaxSellLossPct = pctPtr(1)
		cfg.Engine.AssetCapital = 5
	})
	h.tick(0, 96, 1)
	h.e.s.LastBuyPrice = 100
	lastBuyAt(h, 100)

	// 96 is a 4% loss, beyond the 1% cap, but it sits inside the 5% hold
	// band, and the band is checked first.
	order, err := h.e.ExecuteSignal(SignalSell)
	assert.Nil(t, order)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "within")
}

func TestOrders_BuyLossProtection(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Engine.MaxBuyLossPct = pctPtr(2)
	})
	h.tick(0, 110, 1)
	h.e.s.LastSellPrice = 100
	lastSellAt(h, 100)

	order, err := h.e.ExecuteSignal(SignalBuy)
	assert.Nil(t, order)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loss")
	assert.Nil(t, h.e.s.BuyOrder)
}

func TestOrders_QuarantineBlocksBuys(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Engine.QuarantineTimeMin = 60
	})
	h.tick(0, 100, 1)
	h.e.s.BuyQuarantineTime = h.clk.Now().Add(time.Hour)

	order, err := h.e.ExecuteSignal(SignalBuy)
	assert.Nil(t, order)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quarantined")

	// A triggered stop overrides the cooldown.
	h.e.s.ActedOnStop = true
	order, err = h.e.ExecuteSignal(SignalBuy)
	require.NoError(t, err)
	assert.NotNil(t, order)
}

func TestOrders_LosingSellArmsQuarantine(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Engine.QuarantineTimeMin = 60
		cfg.Engine.AssetCapital = 5
	})
	h.tick(0, 95, 1)
	h.e.s.LastBuyPrice = 100

	order, err := h.e.ExecuteSignal(SignalSell)
	require.NoError(t, err)
	require.NotNil(t, order)

	h.tick(time.Second, 96, 1)
	h.advance(h.e.opts.OrderPollTime())

	require.Len(t, h.e.s.MyTrades, 1)
	mt := h.e.s.MyTrades[0]
	require.True(t, mt.HasProfit)
	assert.Less(t, mt.Profit, 0.0)
	assert.True(t, h.e.s.BuyQuarantineTime.After(h.clk.Now()))
}

func TestOrders_DustSizeIsSilentNoOp(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Engine.Deposit = 10
		cfg.Engine.CurrencyCapital = 10
	})
	h.e.s.Product.MinSize = 1
	h.tick(0, 100, 1)

	order, err := h.e.ExecuteSignal(SignalBuy)
	assert.Nil(t, order)
	assert.NoError(t, err)
	assert.Nil(t, h.e.s.BuyOrder)
}

func TestOrders_MinNotionalIsSilentNoOp(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Engine.Deposit = 10
		cfg.Engine.CurrencyCapital = 10
	})
	h.e.s.Product.MinTotal = 50
	h.tick(0, 100, 1)

	order, err := h.e.ExecuteSignal(SignalBuy)
	assert.Nil(t, order)
	assert.NoError(t, err)
}

func TestOrders_RepriceAfterAdjustWindow(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		// Half the deposit, so the re-order at a worse price still funds.
		cfg.Engine.BuyPct = 50
	})
	h.tick(0, 100, 1)

	order, err := h.e.ExecuteSignal(SignalBuy)
	require.NoError(t, err)
	require.NotNil(t, order)
	firstID := order.OrderID

	// Market moves up without crossing the resting buy.
	h.tick(time.Second, 105, 1)

	// Polls inside the adjust window leave the order alone.
	h.advance(h.e.opts.OrderPollTime())
	require.NotNil(t, h.e.s.BuyOrder)
	assert.Equal(t, firstID, h.e.s.BuyOrder.OrderID)

	// Past the window the stale order is canceled and re-placed at the
	// marked price.
	h.advance(h.e.opts.OrderAdjustTime())
	require.NotNil(t, h.e.s.BuyOrder)
	assert.NotEqual(t, firstID, h.e.s.BuyOrder.OrderID)
	assert.Equal(t, 105.0, h.e.s.BuyOrder.Price)
}

func TestOrders_SlippageProtectionCancelsWithoutReorder(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Engine.MaxSlippagePct = pctPtr(2)
	})
	h.tick(0, 100, 1)

	order, err := h.e.ExecuteSignal(SignalBuy)
	require.NoError(t, err)
	require.NotNil(t, order)

	// 5% above the original price is past the 2% cap: the order is pulled
	// and nothing replaces it.
	h.tick(time.Second, 105, 1)
	h.advance(h.e.opts.OrderAdjustTime() + h.e.opts.OrderPollTime())

	assert.Nil(t, h.e.s.BuyOrder)
	assert.Empty(t, h.e.s.MyTrades)
}

func TestOrders_StillCompetitiveOrderKeepsResting(t *testing.T) {
	h := newHarness(t, nil)
	h.tick(0, 100, 1)

	order, err := h.e.ExecuteSignal(SignalBuy)
	require.NoError(t, err)
	require.NotNil(t, order)
	firstID := order.OrderID
	origTime := order.OrigTime

	// Quote unchanged past the adjust window: the order is not stale, so
	// it keeps resting and the window restarts.
	h.advance(h.e.opts.OrderAdjustTime() + h.e.opts.OrderPollTime())

	require.NotNil(t, h.e.s.BuyOrder)
	assert.Equal(t, firstID, h.e.s.BuyOrder.OrderID)
	assert.True(t, h.e.s.BuyOrder.OrigTime.After(origTime))
	assert.True(t, h.e.sched.Pending("order:buy"))
}

func TestOrders_CancelRaceFillFinalizes(t *testing.T) {
	h := newHarness(t, nil)
	h.tick(0, 100, 1)

	order, err := h.e.ExecuteSignal(SignalBuy)
	require.NoError(t, err)
	require.NotNil(t, order)

	// The fill lands between the adjust decision and the cancel reaching
	// the exchange: cancelOrder must detect the done order and finalize it
	// instead of re-ordering.
	h.sim.ProcessTrade(types.Trade{Time: h.clk.Now(), Price: 99, Size: 1})
	h.e.cancelOrder(order, true)
	h.drainTasks()

	require.Len(t, h.e.s.MyTrades, 1)
	assert.Equal(t, 100.0, h.e.s.MyTrades[0].Price)
	assert.Nil(t, h.e.s.BuyOrder)
}

func TestOrders_InsufficientBalanceRejectionIsRecoverable(t *testing.T) {
	h := newHarness(t, nil)
	h.tick(0, 100, 1)

	// An order the sim balance cannot cover comes back rejected with the
	// balance reason; the engine treats that as a no-op, not a failure.
	oversized := &types.Order{
		ProductID: "BTC-USDT",
		Side:      types.SideBuy,
		Price:     100,
		Size:      50, // 5000 USDT against a 1000 USDT balance
		OrderType: types.OrderTypeMaker,
		OrigTime:  h.clk.Now(),
	}
	h.e.s.SetWorkingOrder(types.SideBuy, oversized)
	err := h.e.doOrder(oversized)
	assert.NoError(t, err)
	assert.Nil(t, h.e.s.BuyOrder)
	assert.False(t, h.e.sched.Pending("order:buy"))
}

func TestOrders_FloorToIncrement(t *testing.T) {
	assert.InDelta(t, 0.0001, floorToIncrement(0.00012, 0.0001), 1e-12)
	assert.InDelta(t, 1.23, floorToIncrement(1.239, 0.01), 1e-12)
	// The epsilon keeps values that are exact multiples from rounding down.
	assert.InDelta(t, 0.3, floorToIncrement(0.1+0.2, 0.1), 1e-12)
	assert.Equal(t, 5.0, floorToIncrement(5, 0))
}

func TestOrders_SellProceedsUpdateNetCurrency(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Engine.AssetCapital = 5
	})
	h.tick(0, 100, 1)

	_, err := h.e.syncBalance(h.e.ctx)
	require.NoError(t, err)
	before := h.e.s.NetCurrency

	order, err := h.e.ExecuteSignal(SignalSell)
	require.NoError(t, err)
	require.NotNil(t, order)

	h.tick(time.Second, 101, 1)
	h.advance(h.e.opts.OrderPollTime())

	require.Len(t, h.e.s.MyTrades, 1)
	mt := h.e.s.MyTrades[0]
	assert.InDelta(t, before+mt.Size*mt.Price-mt.Fee, h.e.s.NetCurrency, 1e-9)
}
