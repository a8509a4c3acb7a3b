package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ictbot/internal/domain/models"
	domrepo "ictbot/internal/domain/repository"
	"ictbot/internal/testutil"
)

type fakeBridge struct {
	t       *testing.T
	retcode int
	orders  []map[string]interface{}
}

func (f *fakeBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-API-Key") != "secret" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	enc := json.NewEncoder(w)
	switch r.URL.Path {
	case "/rates":
		bars := testutil.RandomWalk(1, 10)
		q := r.URL.Query()
		assert.Equal(f.t, "M15", q.Get("timeframe"))
		assert.Equal(f.t, "5", q.Get("pos"))
		_ = enc.Encode(map[string]interface{}{"bars": bars[:3]})
	case "/symbols/XAUUSD":
		_ = enc.Encode(models.SymbolInfo{Digits: 2, Point: 0.01, PipSize: 0.1})
	case "/account":
		_ = enc.Encode(models.Account{Balance: 5000, Equity: 5100, Currency: "USD"})
	case "/positions":
		assert.Equal(f.t, "161803", r.URL.Query().Get("magic"))
		_ = enc.Encode([]models.OpenPosition{{Ticket: 1, Symbol: "EURUSD", Magic: 161803}})
	case "/orders":
		var body map[string]interface{}
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		f.orders = append(f.orders, body)
		_ = enc.Encode(models.OrderResult{Ticket: 77, Retcode: f.retcode, Comment: "done"})
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, fb *fakeBridge) *Client {
	t.Helper()
	srv := httptest.NewServer(fb)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL+"/", "secret", time.Second, nil)
	require.NoError(t, err)
	return c
}

func TestClientReads(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, &fakeBridge{t: t})

	bars, err := c.FetchRange(ctx, "EURUSD", domrepo.TFM15, 5, 3)
	require.NoError(t, err)
	assert.Len(t, bars, 3)

	info, err := c.SymbolInfo(ctx, "XAUUSD")
	require.NoError(t, err)
	assert.Equal(t, "XAUUSD", info.Symbol)
	assert.Equal(t, 0.1, info.Pip())

	acc, err := c.Account(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5000.0, acc.Balance)

	pos, err := c.OpenPositions(ctx, "EURUSD", DefaultMagic)
	require.NoError(t, err)
	assert.Len(t, pos, 1)
}

func TestPlaceOrder(t *testing.T) {
	fb := &fakeBridge{t: t, retcode: RetcodeDone}
	c := newTestClient(t, fb)

	res, err := c.PlaceOrder(context.Background(), models.OrderRequest{
		Symbol: "EURUSD", Side: models.SideBull, Volume: 0.3, SL: 1.09, TP: 1.12,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(77), res.Ticket)

	require.Len(t, fb.orders, 1)
	assert.Equal(t, "buy", fb.orders[0]["side"])
	assert.Equal(t, float64(DefaultMagic), fb.orders[0]["magic"])
	assert.Equal(t, DefaultComment, fb.orders[0]["comment"])
	assert.Equal(t, float64(DefaultDeviation), fb.orders[0]["deviation"])
}

func TestPlaceOrderRejected(t *testing.T) {
	c := newTestClient(t, &fakeBridge{t: t, retcode: 10019})
	_, err := c.PlaceOrder(context.Background(), models.OrderRequest{Symbol: "EURUSD", Side: models.SideBear, Volume: 1})
	assert.ErrorIs(t, err, ErrExecutionRejected)
	assert.Contains(t, err.Error(), "10019")

	bad, err := NewClient("http://"+"127.0.0.1:1", "wrong", 100*time.Millisecond, nil)
	require.NoError(t, err)
	_, err = bad.PlaceOrder(context.Background(), models.OrderRequest{Symbol: "EURUSD"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrExecutionRejected, "transport failures are not rejections")
}

func TestNewClientValidatesURL(t *testing.T) {
	_, err := NewClient("not a url", "", time.Second, nil)
	assert.Error(t, err)
}
