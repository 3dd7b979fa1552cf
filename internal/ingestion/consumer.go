package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/plugtrack-io/plugtrack/internal/config"
)

const (
	defaultKafkaTopic    = "plugtrack.results"
	defaultKafkaGroupID  = "plugtrack-ingester"
	defaultKafkaMinBytes = 1
	defaultKafkaMaxBytes = 10 * 1024 * 1024 // result outputs can be large
	defaultKafkaMaxWait  = 500 * time.Millisecond
)

type (
	// ConsumerConfig holds Kafka consumer configuration for the ingester.
	ConsumerConfig struct {
		Brokers  []string
		Topic    string
		GroupID  string
		MinBytes int
		MaxBytes int
		MaxWait  time.Duration
	}

	// Consumer bridges a Kafka topic of result batches into the ingestion
	// service. Each message value is a submission payload in the same format
	// the HTTP endpoint accepts (single object or array).
	//
	// Delivery is at-least-once: a message is committed only after Submit
	// succeeds, and Submit's idempotent last-write-wins semantics make
	// replays safe. Messages whose payload cannot be decoded are committed
	// anyway - redelivery would never fix them - and logged.
	Consumer struct {
		reader  *kafka.Reader
		service *Service
		logger  *slog.Logger
	}
)

// LoadConsumerConfig loads Kafka consumer configuration from environment
// variables with fallback to defaults.
func LoadConsumerConfig() *ConsumerConfig {
	return &ConsumerConfig{
		Brokers:  config.ParseCommaSeparatedList(config.GetEnvStr("PLUGTRACK_KAFKA_BROKERS", "localhost:9092")),
		Topic:    config.GetEnvStr("PLUGTRACK_KAFKA_TOPIC", defaultKafkaTopic),
		GroupID:  config.GetEnvStr("PLUGTRACK_KAFKA_GROUP_ID", defaultKafkaGroupID),
		MinBytes: config.GetEnvInt("PLUGTRACK_KAFKA_MIN_BYTES", defaultKafkaMinBytes),
		MaxBytes: config.GetEnvInt("PLUGTRACK_KAFKA_MAX_BYTES", defaultKafkaMaxBytes),
		MaxWait:  config.GetEnvDuration("PLUGTRACK_KAFKA_MAX_WAIT", defaultKafkaMaxWait),
	}
}

// ErrNoBrokers indicates the consumer was configured without any broker address.
var ErrNoBrokers = errors.New("at least one Kafka broker is required")

// Validate checks if the consumer configuration is valid.
func (c *ConsumerConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return ErrNoBrokers
	}

	return nil
}

// NewConsumer creates a Kafka consumer feeding the given ingestion service.
func NewConsumer(cfg *ConsumerConfig, service *Service, logger *slog.Logger) (*Consumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid consumer configuration: %w", err)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
		MaxWait:  cfg.MaxWait,
	})

	return &Consumer{
		reader:  reader,
		service: service,
		logger:  logger,
	}, nil
}

// Run consumes messages until the context is canceled or the reader is
// closed. It returns nil on clean shutdown and the underlying error
// otherwise.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("fetch message: %w", err)
		}

		if err := c.handleMessage(ctx, msg); err != nil {
			// Storage unavailable: leave the message uncommitted so it is
			// redelivered after the caller decides to run again.
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("commit message: %w", err)
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg kafka.Message) error {
	batch, err := DecodeSubmissions(msg.Value)
	if err != nil {
		c.logger.Warn("Dropping undecodable result message",
			slog.String("topic", msg.Topic),
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)

		return nil
	}

	report, err := c.service.Submit(ctx, batch)
	if err != nil {
		return err
	}

	c.logger.Info("Result message ingested",
		slog.String("topic", msg.Topic),
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
		slog.String("batch_id", report.BatchID),
		slog.Int("accepted", report.Accepted),
		slog.Int("rejected", report.Rejected),
	)

	return nil
}

// Close closes the underlying Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
