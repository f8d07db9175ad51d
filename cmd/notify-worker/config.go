package main

import (
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/ruxstar-pod/internal/notify"
)

// Config holds the worker configuration, loadable from environment
// variables (POD_ prefix), flags, or YAML config files.
type Config struct {
	HealthAddr   string        `default:"0.0.0.0:8081" usage:"Health probe listen address" flag:"health-addr"`
	Brokers      []string      `default:"" usage:"Kafka bootstrap brokers (POD_KAFKA_BROKERS)" flag:"kafka-brokers" env:"KAFKA_BROKERS"`
	CreatedTopic string        `default:"pod.order-created" usage:"Topic for order created events" flag:"kafka-created-topic" env:"KAFKA_CREATED_TOPIC"`
	ReadyTopic   string        `default:"pod.order-ready" usage:"Topic for order ready events" flag:"kafka-ready-topic" env:"KAFKA_READY_TOPIC"`
	Group        string        `default:"pod-notify" usage:"Consumer group" flag:"kafka-group" env:"KAFKA_GROUP"`
	CloseTimeout time.Duration `default:"10s" usage:"Maximum time to close readers on shutdown" flag:"close-timeout"`
}

// LoadConfig loads the worker configuration.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "POD",
		Files:     []string{"config.yaml", "/etc/pod/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
		AllowUnknownFields: true,
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}

	var brokers []string
	for _, b := range cfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	cfg.Brokers = brokers
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required: set POD_KAFKA_BROKERS")
	}
	if cfg.CreatedTopic == "" {
		cfg.CreatedTopic = notify.DefaultCreatedTopic
	}
	if cfg.ReadyTopic == "" {
		cfg.ReadyTopic = notify.DefaultReadyTopic
	}
	return &cfg, nil
}
