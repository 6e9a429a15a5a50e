package broker

import (
	"flag"
	"fmt"
)

// Config selects and configures the Broker implementation every MCMOT
// binary starts from (spec §4.A): `sarama` for production, `memory` for
// local/dev runs and tests that don't want a live Kafka cluster.
type Config struct {
	Backend string `yaml:"backend"`
	Sarama  SaramaConfig `yaml:"sarama"`
}

// RegisterFlags registers cfg's flags. Sarama.BootstrapServers is
// slice-valued and, following this codebase's convention for such
// fields, is YAML-only rather than flag-registered.
func (c *Config) RegisterFlags(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.Backend, prefix+"broker.backend", "memory", "broker backend: sarama or memory")
	f.StringVar(&c.Sarama.ClientID, prefix+"broker.sarama.client-id", "mcmot", "Kafka client ID (sarama backend only)")
}

// New constructs the Broker named by cfg.Backend.
func New(cfg Config) (Broker, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "sarama":
		return NewSarama(cfg.Sarama)
	default:
		return nil, fmt.Errorf("broker: unknown backend %q", cfg.Backend)
	}
}
