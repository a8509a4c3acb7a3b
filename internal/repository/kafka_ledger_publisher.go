package repository

import (
	"context"
	"fmt"

	"ictbot/internal/domain/models"
	domrepo "ictbot/internal/domain/repository"
	pkgkafka "ictbot/pkg/kafka"
)

// Ledger message headers.
const (
	HeaderRunID  = "run_id"
	HeaderSymbol = "symbol"
	HeaderKind   = "kind"
)

// LedgerMessage is the value of one ledger record on the topic.
type LedgerMessage struct {
	RunID  string             `json:"run_id"`
	Symbol string             `json:"symbol"`
	Seq    int                `json:"seq"`
	Event  models.LedgerEvent `json:"event"`
}

// KafkaLedgerPublisher streams ledger rows keyed by run id, so one run stays on one
// partition and in order.
type KafkaLedgerPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaLedgerPublisher(producer *pkgkafka.Producer, topic string) *KafkaLedgerPublisher {
	return &KafkaLedgerPublisher{producer: producer, topic: topic}
}

func (p *KafkaLedgerPublisher) PublishLedger(ctx context.Context, runID, symbol string, events []models.LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := ledgerMessages(runID, symbol, events)
	if err := p.producer.PublishBatch(ctx, p.topic, msgs); err != nil {
		return fmt.Errorf("publish ledger %s: %w", runID, err)
	}
	return nil
}

func ledgerMessages(runID, symbol string, events []models.LedgerEvent) []pkgkafka.Message {
	msgs := make([]pkgkafka.Message, len(events))
	for i, ev := range events {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(runID),
			Value: LedgerMessage{RunID: runID, Symbol: symbol, Seq: i, Event: ev},
			Headers: map[string]string{
				HeaderRunID:  runID,
				HeaderSymbol: symbol,
				HeaderKind:   string(ev.Kind),
			},
		}
	}
	return msgs
}

var _ domrepo.LedgerPublisher = (*KafkaLedgerPublisher)(nil)
