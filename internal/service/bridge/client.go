package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ictbot/internal/domain/models"
	domrepo "ictbot/internal/domain/repository"
	pkghttp "ictbot/pkg/http"
	"ictbot/pkg/logger"
)

// RetcodeDone is the terminal's "request completed" return code.
const RetcodeDone = 10009

// Order defaults carried on every bridge order.
const (
	DefaultMagic     = 161803
	DefaultComment   = "ICTv1"
	DefaultDeviation = 20
	maxCommentLen    = 31
)

// ErrExecutionRejected is returned when the terminal refuses an order.
var ErrExecutionRejected = domrepo.ErrExecutionRejected

// Client talks to the HTTP bridge in front of the trading terminal. It serves
// history chunks, symbol contract details, account state and market orders.
type Client struct {
	baseURL string
	http    *pkghttp.Client
	l       *logger.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, lgr *logger.Logger) (*Client, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("bridge base url: %w", err)
	}
	if lgr == nil {
		lgr = logger.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    pkghttp.NewClient(pkghttp.WithTimeout(timeout), pkghttp.WithHeader("X-API-Key", apiKey)),
		l:       lgr,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, query map[string][]string, dest interface{}) error {
	return c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method:      http.MethodGet,
		URL:         c.baseURL + path,
		QueryParams: query,
	}, dest)
}

type ratesResponse struct {
	Bars []models.Bar `json:"bars"`
}

// FetchRange returns count bars starting pos bars back from the newest, oldest first.
func (c *Client) FetchRange(ctx context.Context, symbol string, tf domrepo.Timeframe, pos, count int) ([]models.Bar, error) {
	var resp ratesResponse
	err := c.get(ctx, "/rates", map[string][]string{
		"symbol":    {symbol},
		"timeframe": {string(tf)},
		"pos":       {strconv.Itoa(pos)},
		"count":     {strconv.Itoa(count)},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("bridge rates %s %s: %w", symbol, tf, err)
	}
	return resp.Bars, nil
}

func (c *Client) SymbolInfo(ctx context.Context, symbol string) (models.SymbolInfo, error) {
	var info models.SymbolInfo
	if err := c.get(ctx, "/symbols/"+url.PathEscape(symbol), nil, &info); err != nil {
		return models.SymbolInfo{}, fmt.Errorf("bridge symbol %s: %w", symbol, err)
	}
	if info.Symbol == "" {
		info.Symbol = symbol
	}
	return info, nil
}

func (c *Client) Account(ctx context.Context) (models.Account, error) {
	var acc models.Account
	if err := c.get(ctx, "/account", nil, &acc); err != nil {
		return models.Account{}, fmt.Errorf("bridge account: %w", err)
	}
	return acc, nil
}

func (c *Client) OpenPositions(ctx context.Context, symbol string, magic int) ([]models.OpenPosition, error) {
	var positions []models.OpenPosition
	err := c.get(ctx, "/positions", map[string][]string{
		"symbol": {symbol},
		"magic":  {strconv.Itoa(magic)},
	}, &positions)
	if err != nil {
		return nil, fmt.Errorf("bridge positions %s: %w", symbol, err)
	}
	return positions, nil
}

type orderPayload struct {
	models.OrderRequest
	Deviation int `json:"deviation"`
}

// PlaceOrder sends a market order. A reply other than RetcodeDone, or an HTTP
// 4xx, is wrapped in ErrExecutionRejected.
func (c *Client) PlaceOrder(ctx context.Context, req models.OrderRequest) (models.OrderResult, error) {
	if req.Magic == 0 {
		req.Magic = DefaultMagic
	}
	if req.Comment == "" {
		req.Comment = DefaultComment
	}
	if len(req.Comment) > maxCommentLen {
		req.Comment = req.Comment[:maxCommentLen]
	}

	var res models.OrderResult
	err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: http.MethodPost,
		URL:    c.baseURL + "/orders",
		Body:   orderPayload{OrderRequest: req, Deviation: DefaultDeviation},
	}, &res)

	var se *pkghttp.StatusError
	switch {
	case errors.As(err, &se) && se.StatusCode < 500:
		return models.OrderResult{}, fmt.Errorf("%w: %s", ErrExecutionRejected, se.Error())
	case err != nil:
		return models.OrderResult{}, fmt.Errorf("bridge order %s: %w", req.Symbol, err)
	case res.Retcode != RetcodeDone:
		return res, fmt.Errorf("%w: retcode=%d %s", ErrExecutionRejected, res.Retcode, res.Comment)
	}

	c.l.Info("order placed",
		logger.String("symbol", req.Symbol),
		logger.String("side", req.Side.String()),
		logger.Float64("volume", req.Volume),
		logger.Int64("ticket", res.Ticket),
	)
	return res, nil
}

var (
	_ domrepo.RangeSource           = (*Client)(nil)
	_ domrepo.SymbolSource          = (*Client)(nil)
	_ domrepo.OrderExecutionGateway = (*Client)(nil)
)
