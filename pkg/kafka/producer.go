package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// ErrNoBrokers is returned when a producer is configured without seed brokers
var ErrNoBrokers = errors.New("kafka brokers are required")

// ProducerConfig holds producer settings
type ProducerConfig struct {
	Brokers       []string
	ClientID      string
	MaxRetries    int
	RetryInterval time.Duration
	// BatchSize caps records buffered per partition
	BatchSize int
	LingerMs  int
}

// Message is a record to publish
type Message struct {
	Topic     string
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Producer is a synchronous franz-go producer
type Producer struct {
	client *kgo.Client
	config *ProducerConfig
}

// NewProducer connects to the cluster, retrying the initial ping
func NewProducer(ctx context.Context, cfg *ProducerConfig) (*Producer, error) {
	if cfg == nil || len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}

	client, err := kgo.NewClient(producerOpts(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				client.Close()
				return nil, ctx.Err()
			case <-time.After(cfg.RetryInterval):
			}
		}
		if lastErr = client.Ping(ctx); lastErr == nil {
			return &Producer{client: client, config: cfg}, nil
		}
	}

	client.Close()
	return nil, fmt.Errorf("failed to connect to kafka after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}

func producerOpts(cfg *ProducerConfig) []kgo.Opt {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression(), kgo.NoCompression()),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	if cfg.LingerMs > 0 {
		opts = append(opts, kgo.ProducerLinger(time.Duration(cfg.LingerMs)*time.Millisecond))
	}
	if cfg.BatchSize > 0 {
		opts = append(opts, kgo.MaxBufferedRecords(cfg.BatchSize*100))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, kgo.RecordRetries(cfg.MaxRetries))
	}
	return opts
}

// toRecord converts a Message into a kgo.Record
func toRecord(msg *Message) *kgo.Record {
	rec := &kgo.Record{
		Topic:     msg.Topic,
		Key:       msg.Key,
		Value:     msg.Value,
		Timestamp: msg.Timestamp,
	}
	for k, v := range msg.Headers {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	return rec
}

// Produce publishes msg and waits for the broker acknowledgement
func (p *Producer) Produce(ctx context.Context, msg *Message) error {
	if msg.Topic == "" {
		return errors.New("kafka message topic is required")
	}
	if err := p.client.ProduceSync(ctx, toRecord(msg)).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce to %s: %w", msg.Topic, err)
	}
	return nil
}

// ProduceJSON marshals v and publishes it under key
func (p *Producer) ProduceJSON(ctx context.Context, topic, key string, v any, headers map[string]string) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return p.Produce(ctx, &Message{
		Topic:     topic,
		Key:       []byte(key),
		Value:     value,
		Headers:   headers,
		Timestamp: time.Now(),
	})
}

// Ping checks broker connectivity
func (p *Producer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close flushes pending records and closes the client
func (p *Producer) Close() {
	if p.client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = p.client.Flush(ctx)
	p.client.Close()
}
