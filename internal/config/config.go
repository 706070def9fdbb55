package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/emirozbir/micro-triage/internal/assess"
	"github.com/emirozbir/micro-triage/internal/correlate"
	"github.com/emirozbir/micro-triage/internal/engine"
	"github.com/emirozbir/micro-triage/internal/rules"
	"github.com/emirozbir/micro-triage/internal/scoring"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Engine       EngineConfig       `mapstructure:"engine"`
	Assessor     assess.Config      `mapstructure:"assessor"`
	Rules        map[string]any     `mapstructure:"rules"`
	Scoring      scoring.Config     `mapstructure:"scoring"`
	Notify       NotifyConfig       `mapstructure:"notify"`
	AlertManager AlertManagerConfig `mapstructure:"alertmanager"`
	Kubernetes   KubernetesConfig   `mapstructure:"kubernetes"`
	Agent        AgentConfig        `mapstructure:"agent"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type DatabaseConfig struct {
	// Path of the SQLite archive. Empty disables archiving.
	Path      string        `mapstructure:"path"`
	Retention time.Duration `mapstructure:"retention"`
}

type EngineConfig struct {
	Source            string        `mapstructure:"source"`
	CorrelationWindow time.Duration `mapstructure:"correlation_window"`
}

type NotifyConfig struct {
	// Enabled turns on dispatch of ticket-worthy alerts after each batch.
	Enabled bool         `mapstructure:"enabled"`
	Slack   SlackConfig  `mapstructure:"slack"`
	GitHub  GitHubConfig `mapstructure:"github"`
	Email   EmailConfig  `mapstructure:"email"`
}

type SlackConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Channel    string        `mapstructure:"channel"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type GitHubConfig struct {
	Token   string        `mapstructure:"token"`
	Owner   string        `mapstructure:"owner"`
	Repo    string        `mapstructure:"repo"`
	APIURL  string        `mapstructure:"api_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// EmailConfig configures SMTP delivery of alert mails and the daily digest.
// Port 465 uses implicit TLS, any other port STARTTLS.
type EmailConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	To       []string      `mapstructure:"to"`
	Timeout  time.Duration `mapstructure:"timeout"`

	// DigestInterval between digest mails sent by the poller. Zero disables
	// the digest.
	DigestInterval time.Duration `mapstructure:"digest_interval"`
}

// Configured reports whether mail can actually be delivered.
func (e EmailConfig) Configured() bool {
	return e.Username != "" && e.Password != "" && len(e.To) > 0
}

type AlertManagerConfig struct {
	URL          string        `mapstructure:"url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type KubernetesConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Kubeconfig    string `mapstructure:"kubeconfig"`
	Context       string `mapstructure:"context"`
	Namespace     string `mapstructure:"namespace"`
	LabelSelector string `mapstructure:"label_selector"`
}

type AgentConfig struct {
	MaxParallelNotifications int `mapstructure:"max_parallel_notifications"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("database.path", "./triage.db")
	v.SetDefault("database.retention", "720h")

	v.SetDefault("engine.source", "selenium")
	v.SetDefault("engine.correlation_window", correlate.DefaultWindow.String())

	a := assess.DefaultConfig()
	v.SetDefault("assessor.frequency_window", a.FrequencyWindow.String())
	v.SetDefault("assessor.exceeded_threshold", a.ExceededThreshold)
	v.SetDefault("assessor.storm_threshold", a.StormThreshold)
	v.SetDefault("assessor.slow_response_seconds", a.SlowResponseSeconds)
	v.SetDefault("assessor.threshold_response_seconds", a.ThresholdResponseSeconds)
	known := make(map[string]any, len(a.KnownIssues))
	for activity, schedule := range a.KnownIssues {
		known[activity] = schedule
	}
	v.SetDefault("assessor.known_issues", known)
	v.SetDefault("assessor.maintenance_window.weekday", int(a.MaintenanceWindow.Weekday))
	v.SetDefault("assessor.maintenance_window.start_hour", a.MaintenanceWindow.StartHour)
	v.SetDefault("assessor.maintenance_window.end_hour", a.MaintenanceWindow.EndHour)

	s := scoring.DefaultConfig()
	v.SetDefault("scoring.critical_services", s.CriticalServices)
	v.SetDefault("scoring.ticket_threshold", s.TicketThreshold)

	v.SetDefault("notify.slack.timeout", "10s")
	v.SetDefault("notify.github.api_url", "https://api.github.com")
	v.SetDefault("notify.github.owner", "")
	v.SetDefault("notify.github.repo", "")
	v.SetDefault("notify.github.timeout", "10s")
	v.SetDefault("notify.email.host", "smtp.gmail.com")
	v.SetDefault("notify.email.port", 465)
	v.SetDefault("notify.email.to", []string{})
	v.SetDefault("notify.email.timeout", "15s")
	v.SetDefault("notify.email.digest_interval", "24h")

	v.SetDefault("alertmanager.poll_interval", "30s")
	v.SetDefault("kubernetes.label_selector", "")

	v.SetDefault("agent.max_parallel_notifications", 4)
}

// Default returns the built-in configuration, ignoring files and the
// environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Sprintf("invalid default configuration: %v", err))
	}
	return &config
}

func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Read from environment variables, SERVER_PORT for server.port
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// Override with environment variables if set
	if url := os.Getenv("SLACK_WEBHOOK_URL"); url != "" {
		config.Notify.Slack.WebhookURL = url
	}
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		config.Notify.GitHub.Token = token
	}
	if owner := os.Getenv("GITHUB_REPO_OWNER"); owner != "" {
		config.Notify.GitHub.Owner = owner
	}
	if repo := os.Getenv("GITHUB_REPO_NAME"); repo != "" {
		config.Notify.GitHub.Repo = repo
	}
	if user := os.Getenv("EMAIL_USER"); user != "" {
		config.Notify.Email.Username = user
	}
	if password := os.Getenv("EMAIL_PASSWORD"); password != "" {
		config.Notify.Email.Password = password
	}
	if to := os.Getenv("EMAIL_RECIPIENTS"); to != "" {
		config.Notify.Email.To = strings.Split(to, ",")
	}
	if url := os.Getenv("ALERTMANAGER_URL"); url != "" {
		config.AlertManager.URL = url
	}

	return &config, nil
}

// Pipeline assembles the engine configuration. A malformed rules section
// yields the default rules together with the decoding error; unknown rule
// keys are dropped and reported with rules.ErrUnknownRule. The caller is
// expected to log either.
func (c *Config) Pipeline() (engine.Config, error) {
	cfg := engine.Config{
		Source:            c.Engine.Source,
		CorrelationWindow: c.Engine.CorrelationWindow,
		Assessor:          c.Assessor,
		Scoring:           c.Scoring,
	}

	ruleCfg, err := rules.FromMap(c.Rules)
	cfg.Rules = ruleCfg
	if ruleCfg.FrequencyThreshold > 0 {
		cfg.Assessor.ExceededThreshold = ruleCfg.FrequencyThreshold
	}
	return cfg, err
}
