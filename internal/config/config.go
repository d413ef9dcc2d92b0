package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "OPENACK"

const (
	ServiceSend  = "send"
	ServiceFetch = "fetch"
)

// Config holds the settings of one service. Every key can be set with an
// OPENACK_ prefixed environment variable or the matching flag.
type Config struct {
	MessagesRoot   string `mapstructure:"messages_root"`
	PeopleFile     string `mapstructure:"people_file"`
	AgentIDsFile   string `mapstructure:"agent_ids_file"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	LogLevel       string `mapstructure:"log_level"`
	LokiURL        string `mapstructure:"loki_url"`
	LokiEnabled    bool   `mapstructure:"loki_enabled"`
	TransactionLog string `mapstructure:"transaction_log"`
	MaxUploadMB    int64  `mapstructure:"max_upload_mb"`

	NotifySMTPHost     string `mapstructure:"notify_smtp_host"`
	NotifySMTPPort     int    `mapstructure:"notify_smtp_port"`
	NotifySMTPUsername string `mapstructure:"notify_smtp_username"`
	NotifySMTPPassword string `mapstructure:"notify_smtp_password"`
	NotifyFrom         string `mapstructure:"notify_from"`
	NotifyDomain       string `mapstructure:"notify_domain"`
	NotifyDKIMKeyFile  string `mapstructure:"notify_dkim_key_file"`
	NotifyDKIMSelector string `mapstructure:"notify_dkim_selector"`
}

func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func DefaultPort(service string) int {
	if service == ServiceFetch {
		return 9090
	}
	return 8080
}

// flag name -> config key
var flagKeys = map[string]string{
	"messages-root":   "messages_root",
	"people-file":     "people_file",
	"agent-ids-file":  "agent_ids_file",
	"host":            "host",
	"port":            "port",
	"log-level":       "log_level",
	"transaction-log": "transaction_log",
}

// RegisterFlags attaches the service flags to cmd. Flags only override the
// environment when they are set explicitly.
func RegisterFlags(cmd *cobra.Command, service string) {
	flags := cmd.Flags()
	flags.String("messages-root", "/messages", "Root directory of all mailboxes")
	flags.String("people-file", "/var/lib/openack/people.yml", "YAML file listing valid agent names")
	flags.String("host", "0.0.0.0", "Listen host")
	flags.Int("port", DefaultPort(service), "Listen port")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")

	switch service {
	case ServiceSend:
		flags.String("transaction-log", "transactions.log", "Append-only delivery log, empty to disable")
	case ServiceFetch:
		flags.String("agent-ids-file", "/var/lib/openack/agent_ids.yml", "YAML file mapping agent ids to names")
	}
}

// Load merges defaults, OPENACK_* environment variables and explicitly set
// flags of cmd, in increasing order of precedence.
func Load(cmd *cobra.Command, service string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("messages_root", "/messages")
	v.SetDefault("people_file", "/var/lib/openack/people.yml")
	v.SetDefault("agent_ids_file", "")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", DefaultPort(service))
	v.SetDefault("log_level", "info")
	v.SetDefault("loki_url", "http://localhost:3100/loki/api/v1/push")
	v.SetDefault("loki_enabled", false)
	v.SetDefault("transaction_log", "")
	v.SetDefault("max_upload_mb", 32)
	v.SetDefault("notify_smtp_host", "")
	v.SetDefault("notify_smtp_port", 587)
	v.SetDefault("notify_smtp_username", "")
	v.SetDefault("notify_smtp_password", "")
	v.SetDefault("notify_from", "")
	v.SetDefault("notify_domain", "")
	v.SetDefault("notify_dkim_key_file", "")
	v.SetDefault("notify_dkim_selector", "mail")

	switch service {
	case ServiceSend:
		v.SetDefault("transaction_log", "transactions.log")
	case ServiceFetch:
		v.SetDefault("agent_ids_file", "/var/lib/openack/agent_ids.yml")
	}

	if cmd != nil {
		flags := cmd.Flags()
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("could not bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("could not decode configuration: %w", err)
	}

	if cfg.MessagesRoot == "" {
		return Config{}, fmt.Errorf("messages root is empty")
	}
	if cfg.PeopleFile == "" {
		return Config{}, fmt.Errorf("people file is empty")
	}
	if service == ServiceFetch && cfg.AgentIDsFile == "" {
		return Config{}, fmt.Errorf("agent ids file is empty")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.MaxUploadMB <= 0 {
		return Config{}, fmt.Errorf("invalid max upload size %d", cfg.MaxUploadMB)
	}

	return cfg, nil
}
