package reid

import "fmt"

// NewStore constructs the Store backend named by cfg.Backend.
func NewStore(cfg Config, keyPrefix string) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(cfg), nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("reid: redis backend requires redis-addr")
		}
		return NewRedisStore(cfg, keyPrefix), nil
	default:
		return nil, fmt.Errorf("reid: unknown backend %q", cfg.Backend)
	}
}
