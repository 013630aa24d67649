package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/parthgupta9/ride-pooling/internal/models"
)

// PoolEvent is published once per committed pool so downstream consumers
// (push notification fan-out, reporting) see assignments without polling the
// store.
type PoolEvent struct {
	PoolID    string    `json:"pool_id"`
	MemberIDs []string  `json:"member_ids"`
	RiderIDs  []string  `json:"rider_ids"`
	Fare      float64   `json:"fare"`
	PerMember float64   `json:"per_member"`
	CreatedAt time.Time `json:"created_at"`
}

type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaProducer{writer: w}
}

func (k *KafkaProducer) PublishPool(pool *models.Pool, riderIDs []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev := PoolEvent{
		PoolID:    pool.ID,
		MemberIDs: pool.MemberIDs,
		RiderIDs:  riderIDs,
		Fare:      pool.Fare,
		PerMember: pool.PerMember,
		CreatedAt: pool.CreatedAt,
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(pool.ID), Value: b})
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
