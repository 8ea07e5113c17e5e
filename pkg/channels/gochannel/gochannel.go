// Package gochannel provides the in-memory pub/sub channel used for local
// development and tests. Buffers are sized for bursts of workflow lifecycle
// events within one scheduling pass, not sustained throughput.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const (
	// liveBuffer absorbs a full scheduling pass of workflow events without
	// blocking the orchestrator's publish path.
	liveBuffer = 256

	testBuffer = 16
)

// CreateChannel creates the publisher and subscriber used by the local
// runner. The same GoChannel instance backs both.
func CreateChannel(logger watermill.LoggerAdapter) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	return newPubSub(gochannel.Config{
		OutputChannelBuffer: liveBuffer,
	}, logger)
}

// CreateTestChannel creates a GoChannel setup for deterministic tests:
// persistent, small buffers, publish blocked until the subscriber acks.
func CreateTestChannel(logger watermill.LoggerAdapter) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	return newPubSub(gochannel.Config{
		OutputChannelBuffer:            testBuffer,
		Persistent:                     true,
		BlockPublishUntilSubscriberAck: true,
	}, logger)
}

func newPubSub(config gochannel.Config, logger watermill.LoggerAdapter) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	pubSub := gochannel.NewGoChannel(config, logger)

	return pubSub, pubSub, nil
}
