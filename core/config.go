package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultManagingOrgID is the single primary organization that owns every
	// credential collected through this gateway.
	DefaultManagingOrgID int64 = 1

	DefaultPollInterval    = 100 * time.Millisecond
	DefaultCleanupMaxCount = 1000
)

type SchedulerConfig struct {
	PollInterval    time.Duration `koanf:"poll_interval" mapstructure:"poll_interval"`
	CleanupMaxCount int           `koanf:"cleanup_max_count" mapstructure:"cleanup_max_count"`
}

type Config struct {
	ServiceName   string          `koanf:"service_name" mapstructure:"service_name"`
	ManagingOrgID int64           `koanf:"managing_org_id" mapstructure:"managing_org_id"`
	HTTPAddr      string          `koanf:"http_addr" mapstructure:"http_addr"`
	Scheduler     SchedulerConfig `koanf:"scheduler" mapstructure:"scheduler"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:   "tokengate",
		ManagingOrgID: DefaultManagingOrgID,
		HTTPAddr:      ":8080",
		Scheduler: SchedulerConfig{
			PollInterval:    DefaultPollInterval,
			CleanupMaxCount: DefaultCleanupMaxCount,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.ManagingOrgID <= 0 {
		return fmt.Errorf("core: managing_org_id must be positive")
	}
	if c.Scheduler.PollInterval < 0 {
		return fmt.Errorf("core: scheduler poll_interval must not be negative")
	}
	if c.Scheduler.CleanupMaxCount < 0 {
		return fmt.Errorf("core: scheduler cleanup_max_count must not be negative")
	}
	return nil
}
