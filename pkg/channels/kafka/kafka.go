// Package kafka provides the Kafka-backed pub/sub channel used when process
// lifecycle events must fan out beyond a single runner instance.
package kafka

import (
	"errors"
	"os"
	"strings"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
)

const (
	brokersEnv = "KAFKA_BROKERS"

	// All runner replicas of one deployment share this group, so every
	// lifecycle event is handled by exactly one of them.
	defaultConsumerGroup = "ledgerflow-orchestrator"

	clientID = "ledgerflow"
)

var ErrNoBrokers = errors.New("KAFKA_BROKERS environment variable is not set or empty")

// CreateChannel connects a publisher/subscriber pair to the brokers named in
// KAFKA_BROKERS. An empty consumerGroup selects the shared orchestrator
// group.
func CreateChannel(logger watermill.LoggerAdapter, consumerGroup string) (*kafka.Publisher, *kafka.Subscriber, error) {
	brokers := strings.Split(os.Getenv(brokersEnv), ",")
	if len(brokers) == 0 || brokers[0] == "" {
		return nil, nil, ErrNoBrokers
	}

	if consumerGroup == "" {
		consumerGroup = defaultConsumerGroup
	}

	subscriberConfig := kafka.DefaultSaramaSubscriberConfig()
	subscriberConfig.ClientID = clientID
	// Replaying from the oldest offset lets a fresh consumer group pick up
	// audit events published before it existed.
	subscriberConfig.Consumer.Offsets.Initial = sarama.OffsetOldest

	subscriber, err := kafka.NewSubscriber(
		kafka.SubscriberConfig{
			Brokers:               brokers,
			Unmarshaler:           kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: subscriberConfig,
			ConsumerGroup:         consumerGroup,
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		return nil, nil, err
	}

	publisherConfig := sarama.NewConfig()
	publisherConfig.ClientID = clientID
	publisherConfig.Producer.Return.Successes = true

	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               brokers,
			Marshaler:             kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: publisherConfig,
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		return nil, nil, err
	}

	return publisher, subscriber, nil
}
