package collector

import (
	"sync"

	"github.com/bscott/ts-tunnel/internal/config"
	log "github.com/sirupsen/logrus"
)

// Engine is the relay service started with the collected configuration
type Engine interface {
	StartRelay(cfg config.StartupConfig)
}

// EngineFunc adapts a plain function to the Engine interface
type EngineFunc func(cfg config.StartupConfig)

// StartRelay calls f(cfg)
func (f EngineFunc) StartRelay(cfg config.StartupConfig) {
	f(cfg)
}

// Collector turns one confirmed form into one relay startup
type Collector struct {
	engine Engine
	once   sync.Once
}

// New creates a collector that hands its configuration to engine
func New(engine Engine) *Collector {
	return &Collector{engine: engine}
}

// Confirm builds the configuration from raw and starts the relay in the
// background. Only the first call in a session does anything; later calls
// return false and no configuration is built.
func (c *Collector) Confirm(raw config.RawInput) (config.StartupConfig, bool) {
	var (
		cfg        config.StartupConfig
		dispatched bool
	)
	c.once.Do(func() {
		cfg = config.Build(raw)
		c.startAsync(cfg)
		dispatched = true
	})
	if !dispatched {
		log.Debug("Ignoring repeated confirmation")
	}
	return cfg, dispatched
}

// startAsync hands cfg to the engine on its own goroutine and returns
// immediately. The goroutine is never joined; the engine reports its own
// failures.
func (c *Collector) startAsync(cfg config.StartupConfig) {
	name, _ := cfg.Name()
	log.WithFields(log.Fields{
		"name":        name,
		"max_clients": cfg.MaxClients(),
		"register":    cfg.RegisterWithMaster(),
	}).Info("Starting relay")

	go c.engine.StartRelay(cfg)
}
