package main

import (
	"context"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"bookshelf/internal/api"
	"bookshelf/internal/config"
)

type commandContext struct {
	apiFlag    *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(apiFlag, configFlag *string) *commandContext {
	return &commandContext{
		apiFlag:    apiFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// client returns an API client for the daemon. The --api flag overrides the
// configured bind address; the configured token is used either way.
func (c *commandContext) client() (*api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if c.apiFlag != nil {
		if override := strings.TrimSpace(*c.apiFlag); override != "" {
			if !strings.Contains(override, "://") {
				override = api.BaseURL(override)
			}
			return api.NewClient(override, cfg.Paths.APIToken), nil
		}
	}
	return api.NewClientFromConfig(cfg), nil
}

// withClient runs fn with a client and a context bounded by the default call
// timeout. Streaming commands use client directly.
func (c *commandContext) withClient(cmd *cobra.Command, fn func(context.Context, *api.Client) error) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	ctx, cancel := api.WithTimeout(commandCtx(cmd))
	defer cancel()
	return fn(ctx, client)
}

func commandCtx(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
