package main

import (
	"strings"
	"sync"

	"github.com/vzahanych/land2port/internal/config"
	"github.com/vzahanych/land2port/internal/journal"
	"github.com/vzahanych/land2port/internal/logger"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	logOnce sync.Once
	log     *logger.Logger

	journal *journal.Journal
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		if path == "" {
			path = config.GetEnvWithDefault("LAND2PORT_CONFIG", "")
		}
		c.config, c.configErr = config.LoadAndValidate(path)
	})
	return c.config, c.configErr
}

// logger writes to stderr so stdout stays free for command output
func (c *commandContext) logger() *logger.Logger {
	c.logOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.log = logger.NewNopLogger()
			return
		}
		out := cfg.Log.Output
		if out == "" || out == "stdout" {
			out = "stderr"
		}
		log, err := logger.New(logger.LogConfig{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: out})
		if err != nil {
			log = logger.NewNopLogger()
		}
		c.log = log
	})
	return c.log
}

func (c *commandContext) openJournal() (*journal.Journal, error) {
	if c.journal != nil {
		return c.journal, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	j, err := journal.Open(cfg.Storage.DataDir, c.logger())
	if err != nil {
		return nil, err
	}
	c.journal = j
	return j, nil
}

func (c *commandContext) close() {
	if c.journal != nil {
		c.journal.Close()
		c.journal = nil
	}
	if c.log != nil {
		c.log.Sync()
	}
}
