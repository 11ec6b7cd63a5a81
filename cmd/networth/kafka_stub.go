//go:build !franz

package main

import (
	"github.com/patrimo/patrimo/fabric"
	"github.com/patrimo/patrimo/platform/config"
	"github.com/patrimo/patrimo/platform/logger"
)

// The concrete Kafka client ships behind the franz build tag.
func kafkaMirror(cfg config.Config, log *logger.Logger) (fabric.MirrorSink, func()) {
	if len(cfg.KafkaBrokers) > 0 {
		log.Warn("KAFKA_BROKERS set but binary built without the franz tag; mirror disabled")
	}

	return nil, func() {}
}
