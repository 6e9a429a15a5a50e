package stagerun

import (
	"flag"
	"time"

	"github.com/grafana/mcmot/internal/broker"
	"github.com/grafana/mcmot/internal/sync"
	"github.com/grafana/mcmot/internal/workerpool"
)

// Config configures one Stage Runtime instance: the generic
// consume -> sync -> callback -> produce -> commit loop shared by every
// stage worker (spec §4.C, §5).
type Config struct {
	Pipeline string `yaml:"pipeline"`
	Stage    string `yaml:"stage"`

	InputTopics []string `yaml:"input-topics"`
	OutputTopic string   `yaml:"output-topic"`
	GroupID     string   `yaml:"group-id"`

	// DeadLetterTopic receives envelopes whose callback fails more than
	// MaxRetries times (spec §7 poison-message handling). Empty disables
	// dead-lettering: poison messages are logged and dropped instead.
	DeadLetterTopic string        `yaml:"dead-letter-topic"`
	MaxRetries      int           `yaml:"max-retries"`
	RetryBackoff    time.Duration `yaml:"retry-backoff"`

	Sync sync.Config         `yaml:"sync"`
	Pool workerpool.Config    `yaml:"pool"`
}

// RegisterFlags registers cfg's flags, composing the Sync and Pool
// sub-configs the way the teacher composes nested config structs.
func (c *Config) RegisterFlags(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.Pipeline, prefix+"stage.pipeline", "", "pipeline name, stamped on metrics and logs")
	f.StringVar(&c.Stage, prefix+"stage.name", "", "stage name, stamped on metrics and logs")
	f.StringVar(&c.OutputTopic, prefix+"stage.output-topic", "", "topic this stage produces to")
	f.StringVar(&c.GroupID, prefix+"stage.group-id", "", "consumer group ID for this stage's workers")
	f.StringVar(&c.DeadLetterTopic, prefix+"stage.dead-letter-topic", "", "topic for envelopes that exceed max-retries; empty drops them")
	f.IntVar(&c.MaxRetries, prefix+"stage.max-retries", 3, "callback retries before an envelope is dead-lettered")
	f.DurationVar(&c.RetryBackoff, prefix+"stage.retry-backoff", 500*time.Millisecond, "backoff between callback retries")

	c.Sync.RegisterFlags(prefix, f)
	c.Pool.RegisterFlags(prefix, f)
}

// BrokerSubscription holds the broker used to consume/produce/dead-letter
// (the input topics live in Config.InputTopics), kept separate from Config because it
// carries a live interface rather than serializable settings.
type BrokerSubscription struct {
	Broker broker.Broker
}
