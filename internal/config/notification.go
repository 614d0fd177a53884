package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// NotificationConfig controls recipient resolution and email dispatch.
type NotificationConfig struct {
	ReviewerRoles []string          `mapstructure:"reviewerRoles"`
	Subjects      map[string]string `mapstructure:"subjects"`
	Dispatch      DispatchConfig    `mapstructure:"dispatch"`
}

type DispatchConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batchSize"`
	LockTTL   time.Duration `mapstructure:"lockTTL"`

	// ClaimTimeout is how long a job may stay in sending before it is failed
	// as interrupted.
	ClaimTimeout time.Duration `mapstructure:"claimTimeout"`
}

func DefaultNotificationConfig() NotificationConfig {
	return NotificationConfig{
		ReviewerRoles: []string{"OWNER", "ADMIN", "APPROVER", "REVIEWER"},
		Subjects: map[string]string{
			"requisition_submitted": "New requisition awaiting review in {{.OrganizationName}}",
			"requisition_approved":  "Your requisition was approved in {{.OrganizationName}}",
			"requisition_rejected":  "Your requisition was rejected in {{.OrganizationName}}",
			"custom":                "{{.Title}} ({{.OrganizationName}})",
		},
		Dispatch: DispatchConfig{
			Interval:  10 * time.Second,
			BatchSize: 50,
			LockTTL:   30 * time.Second,

			ClaimTimeout: 10 * time.Minute,
		},
	}
}

type NotificationConfigHolder struct {
	current atomic.Value // holds NotificationConfig
}

// NewStaticNotificationConfigHolder returns a holder that never reloads.
func NewStaticNotificationConfigHolder(cfg NotificationConfig) *NotificationConfigHolder {
	holder := &NotificationConfigHolder{}
	holder.current.Store(normalizeNotificationConfig(cfg))
	return holder
}

func NewNotificationConfigHolder(log *zap.Logger) (*NotificationConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("notification")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/procura")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PROCURA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultNotificationConfig()
	v.SetDefault("notification.reviewerRoles", defaults.ReviewerRoles)
	v.SetDefault("notification.subjects", defaults.Subjects)
	v.SetDefault("notification.dispatch.interval", defaults.Dispatch.Interval)
	v.SetDefault("notification.dispatch.batchSize", defaults.Dispatch.BatchSize)
	v.SetDefault("notification.dispatch.lockTTL", defaults.Dispatch.LockTTL)
	v.SetDefault("notification.dispatch.claimTimeout", defaults.Dispatch.ClaimTimeout)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg NotificationConfig
	if err := v.UnmarshalKey("notification", &cfg); err != nil {
		return nil, err
	}
	cfg = normalizeNotificationConfig(cfg)
	if err := validateNotificationConfig(cfg); err != nil {
		return nil, err
	}

	holder := &NotificationConfigHolder{}
	holder.current.Store(cfg)

	if fileLoaded {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated NotificationConfig
			if err := v.UnmarshalKey("notification", &updated); err != nil {
				log.Warn("notification config reload failed", zap.Error(err))
				return
			}
			updated = normalizeNotificationConfig(updated)
			if err := validateNotificationConfig(updated); err != nil {
				log.Warn("invalid notification config ignored", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("notification config reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

func (h *NotificationConfigHolder) Get() NotificationConfig {
	return h.current.Load().(NotificationConfig)
}

// IsReviewerRole reports whether members with role receive submission notifications.
func (c NotificationConfig) IsReviewerRole(role string) bool {
	role = strings.ToUpper(strings.TrimSpace(role))
	for _, candidate := range c.ReviewerRoles {
		if candidate == role {
			return true
		}
	}
	return false
}

func normalizeNotificationConfig(cfg NotificationConfig) NotificationConfig {
	defaults := DefaultNotificationConfig()

	roles := make([]string, 0, len(cfg.ReviewerRoles))
	for _, role := range cfg.ReviewerRoles {
		role = strings.ToUpper(strings.TrimSpace(role))
		if role != "" {
			roles = append(roles, role)
		}
	}
	cfg.ReviewerRoles = roles

	subjects := make(map[string]string, len(defaults.Subjects))
	for key, value := range defaults.Subjects {
		subjects[key] = value
	}
	for key, value := range cfg.Subjects {
		if strings.TrimSpace(value) != "" {
			subjects[strings.ToLower(strings.TrimSpace(key))] = value
		}
	}
	cfg.Subjects = subjects

	if cfg.Dispatch.Interval <= 0 {
		cfg.Dispatch.Interval = defaults.Dispatch.Interval
	}
	if cfg.Dispatch.BatchSize <= 0 {
		cfg.Dispatch.BatchSize = defaults.Dispatch.BatchSize
	}
	if cfg.Dispatch.LockTTL <= 0 {
		cfg.Dispatch.LockTTL = defaults.Dispatch.LockTTL
	}
	if cfg.Dispatch.ClaimTimeout <= 0 {
		cfg.Dispatch.ClaimTimeout = defaults.Dispatch.ClaimTimeout
	}
	return cfg
}

func validateNotificationConfig(cfg NotificationConfig) error {
	if len(cfg.ReviewerRoles) == 0 {
		return errors.New("notification.reviewerRoles cannot be empty")
	}
	if cfg.Dispatch.BatchSize > 500 {
		return errors.New("notification.dispatch.batchSize cannot exceed 500")
	}
	return nil
}
