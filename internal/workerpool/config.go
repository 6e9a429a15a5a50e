package workerpool

import "flag"

// Config configures a bounded worker Pool (spec §5 Concurrency & Resource
// Model: each stage worker processes with a bounded goroutine pool backed
// by a fixed-depth queue).
type Config struct {
	MaxWorkers int `yaml:"max-workers"`
	QueueDepth int `yaml:"queue-depth"`
}

// RegisterFlags registers cfg's flags with sensible defaults.
func (c *Config) RegisterFlags(prefix string, f *flag.FlagSet) {
	f.IntVar(&c.MaxWorkers, prefix+"pool.max-workers", 8, "max concurrent job workers")
	f.IntVar(&c.QueueDepth, prefix+"pool.queue-depth", 1024, "max queued jobs; RunAll rejects a batch that would exceed it")
}

func defaultConfig() *Config {
	return &Config{MaxWorkers: 8, QueueDepth: 1024}
}
