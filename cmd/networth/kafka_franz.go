//go:build franz

package main

import (
	"github.com/patrimo/patrimo/broker/kafka"
	"github.com/patrimo/patrimo/fabric"
	"github.com/patrimo/patrimo/platform/config"
	"github.com/patrimo/patrimo/platform/logger"
)

func kafkaMirror(cfg config.Config, log *logger.Logger) (fabric.MirrorSink, func()) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, func() {}
	}

	m, cleanup, err := kafka.NewMirrorWithKgo(kafka.Config{
		Brokers:  cfg.KafkaBrokers,
		ClientID: serviceName,
	}, "")
	if err != nil {
		log.Warn("kafka mirror disabled", "error", err)
		return nil, func() {}
	}

	return m, cleanup
}
