package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quangdm-dev/zentrade/pkg/types"
)

func newSim() *SimExchange {
	return NewSimExchange(SimConfig{
		Products: []types.Product{{
			ID: "BTC-USDT", Asset: "BTC", Currency: "USDT",
			AssetIncrement: 1e-8, PriceIncrement: 0.01,
		}},
		AssetCapital:    2,
		CurrencyCapital: 1000,
		MakerFee:        -0.02,
		TakerFee:        0.1,
	})
}

func tradeAt(price float64) types.Trade {
	return types.Trade{Time: time.Now(), Price: price, Size: 1}
}

func TestSim_QuoteRequiresTradeHistory(t *testing.T) {
	sim := newSim()
	_, err := sim.GetQuote(context.Background(), "BTC-USDT")
	assert.Error(t, err)

	sim.ProcessTrade(tradeAt(100))
	q, err := sim.GetQuote(context.Background(), "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, 100.0, q.Bid)
	assert.Equal(t, 100.0, q.Ask)
}

func TestSim_MakerBuyRestsUntilCrossed(t *testing.T) {
	sim := newSim()
	sim.ProcessTrade(tradeAt(100))

	placed, err := sim.Buy(context.Background(), &types.Order{
		ProductID: "BTC-USDT", Price: 95, Size: 2, OrderType: types.OrderTypeMaker,
	})
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusOpen, placed.Status)
	assert.NotEmpty(t, placed.OrderID)

	// Funds go on hold while the order rests.
	b, _ := sim.GetBalance(context.Background(), "BTC", "USDT")
	assert.Equal(t, 190.0, b.CurrencyHold)

	// Above the limit: no fill.
	sim.ProcessTrade(tradeAt(96))
	got, err := sim.GetOrder(context.Background(), placed.OrderID, "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusOpen, got.Status)

	// Through the limit: fills at the order price, not the trade price.
	sim.ProcessTrade(tradeAt(94))
	got, err = sim.GetOrder(context.Background(), placed.OrderID, "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusDone, got.Status)
	assert.Equal(t, 95.0, got.Price)
	assert.Equal(t, 2.0, got.FilledSize)
	assert.False(t, got.DoneAt.IsZero())

	b, _ = sim.GetBalance(context.Background(), "BTC", "USDT")
	assert.Equal(t, 0.0, b.CurrencyHold)
	assert.Equal(t, 4.0, b.Asset)
	// Maker rebate credits the currency side: 1000 - 190 + 190*0.0002.
	assert.InDelta(t, 1000-190+190*0.0002, b.Currency, 1e-9)
}

func TestSim_MakerSellFillsAtOrAbove(t *testing.T) {
	sim := newSim()
	sim.ProcessTrade(tradeAt(100))

	placed, err := sim.Sell(context.Background(), &types.Order{
		ProductID: "BTC-USDT", Price: 105, Size: 1, OrderType: types.OrderTypeMaker,
	})
	require.NoError(t, err)
	require.Equal(t, types.OrderStatusOpen, placed.Status)

	sim.ProcessTrade(tradeAt(106))
	got, err := sim.GetOrder(context.Background(), placed.OrderID, "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusDone, got.Status)
	assert.Equal(t, 105.0, got.Price)

	b, _ := sim.GetBalance(context.Background(), "BTC", "USDT")
	assert.Equal(t, 1.0, b.Asset)
	assert.InDelta(t, 1000+105+105*0.0002, b.Currency, 1e-9)
}

func TestSim_TakerFillsImmediately(t *testing.T) {
	sim := newSim()
	sim.ProcessTrade(tradeAt(100))

	placed, err := sim.Buy(context.Background(), &types.Order{
		ProductID: "BTC-USDT", Price: 100, Size: 1, OrderType: types.OrderTypeTaker,
	})
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusDone, placed.Status)
	assert.Equal(t, 100.0, placed.Price)

	b, _ := sim.GetBalance(context.Background(), "BTC", "USDT")
	assert.Equal(t, 3.0, b.Asset)
	// Taker pays the 0.1% fee.
	assert.InDelta(t, 1000-100-100*0.001, b.Currency, 1e-9)
}

func TestSim_RejectsBeyondBalance(t *testing.T) {
	sim := newSim()
	sim.ProcessTrade(tradeAt(100))

	placed, err := sim.Buy(context.Background(), &types.Order{
		ProductID: "BTC-USDT", Price: 100, Size: 50, OrderType: types.OrderTypeMaker,
	})
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusRejected, placed.Status)
	assert.Equal(t, types.RejectReasonBalance, placed.RejectReason)

	sell, err := sim.Sell(context.Background(), &types.Order{
		ProductID: "BTC-USDT", Price: 100, Size: 5, OrderType: types.OrderTypeMaker,
	})
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusRejected, sell.Status)
}

func TestSim_HoldsCountAgainstAvailableBalance(t *testing.T) {
	sim := newSim()
	sim.ProcessTrade(tradeAt(100))

	first, err := sim.Buy(context.Background(), &types.Order{
		ProductID: "BTC-USDT", Price: 90, Size: 8, OrderType: types.OrderTypeMaker,
	})
	require.NoError(t, err)
	require.Equal(t, types.OrderStatusOpen, first.Status)

	// 720 of 1000 held: a second 400 order must bounce.
	second, err := sim.Buy(context.Background(), &types.Order{
		ProductID: "BTC-USDT", Price: 100, Size: 4, OrderType: types.OrderTypeMaker,
	})
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusRejected, second.Status)
}

func TestSim_CancelReleasesHold(t *testing.T) {
	sim := newSim()
	sim.ProcessTrade(tradeAt(100))

	placed, err := sim.Buy(context.Background(), &types.Order{
		ProductID: "BTC-USDT", Price: 95, Size: 2, OrderType: types.OrderTypeMaker,
	})
	require.NoError(t, err)

	require.NoError(t, sim.CancelOrder(context.Background(), placed.OrderID, "BTC-USDT"))
	got, _ := sim.GetOrder(context.Background(), placed.OrderID, "BTC-USDT")
	assert.Equal(t, types.OrderStatusCanceled, got.Status)

	b, _ := sim.GetBalance(context.Background(), "BTC", "USDT")
	assert.Equal(t, 0.0, b.CurrencyHold)
}

func TestSim_CancelAfterFillIsNoOp(t *testing.T) {
	sim := newSim()
	sim.ProcessTrade(tradeAt(100))

	placed, err := sim.Buy(context.Background(), &types.Order{
		ProductID: "BTC-USDT", Price: 95, Size: 2, OrderType: types.OrderTypeMaker,
	})
	require.NoError(t, err)
	sim.ProcessTrade(tradeAt(94))

	// The cancel lost the race; the done order keeps its fill.
	require.NoError(t, sim.CancelOrder(context.Background(), placed.OrderID, "BTC-USDT"))
	got, _ := sim.GetOrder(context.Background(), placed.OrderID, "BTC-USDT")
	assert.Equal(t, types.OrderStatusDone, got.Status)
}

func TestSim_CancelUnknownOrderErrors(t *testing.T) {
	sim := newSim()
	assert.Error(t, sim.CancelOrder(context.Background(), "missing", "BTC-USDT"))
	_, err := sim.GetOrder(context.Background(), "missing", "BTC-USDT")
	assert.Error(t, err)
}

func TestSim_FillTimestampsFollowMarketTime(t *testing.T) {
	sim := newSim()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	sim.ProcessTrade(types.Trade{Time: at, Price: 100, Size: 1})

	placed, err := sim.Buy(context.Background(), &types.Order{
		ProductID: "BTC-USDT", Price: 100, Size: 1, OrderType: types.OrderTypeTaker,
	})
	require.NoError(t, err)
	assert.Equal(t, at, placed.DoneAt)
}
