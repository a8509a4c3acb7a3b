package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffWithJitter(t *testing.T) {
	lo, hi := 100*time.Millisecond, time.Second
	for attempt := 1; attempt <= 40; attempt++ {
		d := backoffWithJitter(lo, hi, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, hi)
	}

	d := backoffWithJitter(lo, hi, 1)
	assert.GreaterOrEqual(t, d, lo/2)
	assert.LessOrEqual(t, d, lo)
}

func TestEncodeValue(t *testing.T) {
	b, err := encodeValue([]byte("raw"))
	require.NoError(t, err)
	assert.Equal(t, "raw", string(b))

	b, err = encodeValue(map[string]int{"n": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(b))

	_, err = encodeValue(func() {})
	assert.Error(t, err)
}

func TestParseCompression(t *testing.T) {
	assert.Equal(t, kafka.Gzip, parseCompression("gzip"))
	assert.Equal(t, kafka.Zstd, parseCompression("zstd"))
	assert.Equal(t, kafka.Snappy, parseCompression(""))
}

func TestHeader(t *testing.T) {
	km := kafka.Message{Headers: []kafka.Header{{Key: "run_id", Value: []byte("abc")}}}
	assert.Equal(t, "abc", Header(km, "run_id"))
	assert.Empty(t, Header(km, "missing"))
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
}

func TestSafeBefore_RecoversPanic(t *testing.T) {
	h := HookFuncs{Before: func(ctx context.Context, _ string, _ kafka.Message) (context.Context, error) {
		panic("boom")
	}}
	_, err := safeBefore(h, context.Background(), "t", kafka.Message{})
	assert.ErrorContains(t, err, "boom")
}
