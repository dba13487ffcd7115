package main

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ultrabooks/ultrabooks/internal/config"
	"github.com/ultrabooks/ultrabooks/internal/logging"
	"github.com/ultrabooks/ultrabooks/pkg/types"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *types.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// ensureConfig loads the configuration once. Without --config the defaults
// and UB_ environment overrides are used.
func (c *commandContext) ensureConfig() (*types.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		if path == "" {
			c.config, c.configErr = config.LoadDefault()
			return
		}
		c.config, c.configErr = config.Load(path)
	})
	return c.config, c.configErr
}

func (c *commandContext) newLogger() (*types.Config, *zap.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
