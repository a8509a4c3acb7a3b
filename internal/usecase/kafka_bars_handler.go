package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"ictbot/internal/domain/models"
	domrepo "ictbot/internal/domain/repository"
	pkgkafka "ictbot/pkg/kafka"
	"ictbot/pkg/util"
)

// KafkaBarsHandler ingests bar batches from Kafka into the bar store.
type KafkaBarsHandler struct {
	topic   string
	store   domrepo.BarStore
	metrics domrepo.Metrics
}

func NewKafkaBarsHandler(topic string, store domrepo.BarStore, metrics domrepo.Metrics) *KafkaBarsHandler {
	return &KafkaBarsHandler{topic: topic, store: store, metrics: metrics}
}

func (h *KafkaBarsHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, timeframe, bars: [{time, open, high, low, close, tick_volume, spread}]}
// time is RFC3339, unix seconds or unix milliseconds.
type barsMessage struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Bars      []wireBar `json:"bars"`
}

type wireBar struct {
	Time       json.RawMessage `json:"time"`
	Open       float64         `json:"open"`
	High       float64         `json:"high"`
	Low        float64         `json:"low"`
	Close      float64         `json:"close"`
	TickVolume float64         `json:"tick_volume"`
	Spread     float64         `json:"spread"`
}

func (h *KafkaBarsHandler) Handle(ctx context.Context, b []byte) error {
	var m barsMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	bars, err := decodeBars(m)
	if err != nil {
		h.metrics.RecordError("consumer_decode")
		return err
	}
	if len(bars) == 0 {
		return nil
	}
	tf := domrepo.Timeframe(m.Timeframe)

	start := time.Now()
	err = h.store.StoreBatch(ctx, m.Symbol, tf, bars)
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}

	// lag between the newest bar's close and its arrival
	last := bars[len(bars)-1].Time.Add(tf.Duration())
	h.metrics.RecordLatency("ingest_lag_seconds", time.Since(last).Seconds())
	return nil
}

func decodeBars(m barsMessage) ([]models.Bar, error) {
	if m.Symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", ErrInvalidBar)
	}
	tf := domrepo.Timeframe(m.Timeframe)
	if !domrepo.IsValidTimeframe(tf) {
		return nil, fmt.Errorf("%w: timeframe %q", ErrInvalidBar, m.Timeframe)
	}

	out := make([]models.Bar, 0, len(m.Bars))
	for i, wb := range m.Bars {
		t, ok := parseWireTime(wb.Time)
		if !ok {
			return nil, fmt.Errorf("%w: bar %d has unparseable time %s", ErrInvalidBar, i, string(wb.Time))
		}
		sb := &domrepo.StreamBar{Symbol: m.Symbol, Timeframe: tf, Bar: models.Bar{
			Time: t, Open: wb.Open, High: wb.High, Low: wb.Low, Close: wb.Close,
			TickVolume: wb.TickVolume, Spread: wb.Spread,
		}}
		if err := validateStreamBar(sb); err != nil {
			return nil, fmt.Errorf("bar %d: %w", i, err)
		}
		if n := len(out); n > 0 && !sb.Bar.Time.After(out[n-1].Time) {
			return nil, fmt.Errorf("%w: bar %d not after its predecessor", ErrInvalidBar, i)
		}
		out = append(out, sb.Bar)
	}
	return out, nil
}

// parseWireTime accepts a JSON string or a JSON number.
func parseWireTime(raw json.RawMessage) (time.Time, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 1e11 { // ms
		s = strconv.FormatInt(ts/1000, 10)
	}
	return util.ParseTime(s)
}

var _ pkgkafka.MessageHandler = (*KafkaBarsHandler)(nil)
