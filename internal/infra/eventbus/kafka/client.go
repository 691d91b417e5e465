// Package kafka publishes scan domain events to Kafka.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/scand/pkg/common/logger"
)

// ClientConfig contains all configuration needed for Kafka client setup
type ClientConfig struct {
	Brokers  []string
	ClientID string
	// Topic receives every scan event.
	Topic string
}

// NewClient creates and configures a Kafka client with producer settings
// suitable for ordered, acknowledged publishing.
func NewClient(cfg *ClientConfig) (sarama.Client, error) {
	config := sarama.NewConfig()
	config.ClientID = cfg.ClientID

	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	config.Version = sarama.V3_6_0_0

	return sarama.NewClient(cfg.Brokers, config)
}

// ConnectPublisher connects to the brokers and builds a Publisher, retrying
// with exponential backoff while the cluster is unreachable.
func ConnectPublisher(
	cfg *ClientConfig,
	logger *logger.Logger,
	metrics PublisherMetrics,
	tracer trace.Tracer,
) (*Publisher, sarama.Client, error) {
	var (
		client    sarama.Client
		publisher *Publisher
	)

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = 5 * time.Minute
	expBackoff.InitialInterval = 5 * time.Second

	operation := func() error {
		c, err := NewClient(cfg)
		if err != nil {
			logger.Warn(context.Background(), "Kafka not reachable, retrying", "brokers", cfg.Brokers, "err", err)
			return fmt.Errorf("creating client: %w", err)
		}

		producer, err := sarama.NewSyncProducerFromClient(c)
		if err != nil {
			c.Close()
			return fmt.Errorf("creating producer: %w", err)
		}

		client = c
		publisher = NewPublisher(producer, cfg.Topic, logger, metrics, tracer)
		return nil
	}

	if err := backoff.Retry(operation, expBackoff); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to kafka after retries: %w", err)
	}
	return publisher, client, nil
}
