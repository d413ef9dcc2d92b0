package app

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/OliverSchlueter/goutils/sloki"
	"github.com/OliverSchlueter/openack/internal/apidocs"
	"github.com/OliverSchlueter/openack/internal/config"
	"github.com/OliverSchlueter/openack/internal/directory"
	"github.com/OliverSchlueter/openack/internal/directory/database/yamlfile"
	"github.com/OliverSchlueter/openack/internal/fetchhandler"
	"github.com/OliverSchlueter/openack/internal/fetching"
	"github.com/OliverSchlueter/openack/internal/journal"
	"github.com/OliverSchlueter/openack/internal/mailbox"
	"github.com/OliverSchlueter/openack/internal/mailbox/database/filesystem"
	"github.com/OliverSchlueter/openack/internal/notify"
	"github.com/OliverSchlueter/openack/internal/sendhandler"
	"github.com/OliverSchlueter/openack/internal/sending"
	"github.com/OliverSchlueter/openack/internal/server"
)

// SetupLogging installs the sloki handler as default slog logger.
func SetupLogging(cfg config.Config, service string) {
	lokiService := sloki.NewService(sloki.Configuration{
		URL:          cfg.LokiURL,
		Service:      "openack-" + service,
		ConsoleLevel: ParseLevel(cfg.LogLevel),
		LokiLevel:    slog.LevelInfo,
		EnableLoki:   cfg.LokiEnabled,
	})
	slog.SetDefault(slog.New(lokiService))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func NewSendServer(cfg config.Config) (*server.Server, error) {
	roster, err := directory.Load(yamlfile.NewDB(yamlfile.Configuration{
		PeopleFile: cfg.PeopleFile,
	}))
	if err != nil {
		return nil, fmt.Errorf("could not load people directory: %w", err)
	}

	notifier, err := newNotifier(cfg)
	if err != nil {
		return nil, err
	}

	ms := mailbox.NewStore(mailbox.Configuration{
		DB: filesystem.NewDB(cfg.MessagesRoot),
	})

	ss := sending.NewService(sending.Configuration{
		Roster:   roster,
		Mailbox:  ms,
		Journal:  journal.New(cfg.TransactionLog),
		Notifier: notifier,
	})

	docs, err := apidocs.New(config.ServiceSend)
	if err != nil {
		return nil, err
	}

	slog.Info("Loaded people directory", slog.Int("people", len(roster.People())), slog.String("file", cfg.PeopleFile))

	return server.NewServer(server.Configuration{
		Name: config.ServiceSend,
		Addr: cfg.Addr(),
		Handlers: []server.Registrar{
			sendhandler.New(ss, roster, cfg.MaxUploadMB<<20),
			docs,
		},
		Closers: []server.Closer{notifier},
	}), nil
}

func NewFetchServer(cfg config.Config) (*server.Server, error) {
	roster, err := directory.Load(yamlfile.NewDB(yamlfile.Configuration{
		PeopleFile:   cfg.PeopleFile,
		AgentIDsFile: cfg.AgentIDsFile,
	}))
	if err != nil {
		return nil, fmt.Errorf("could not load people directory: %w", err)
	}

	ms := mailbox.NewStore(mailbox.Configuration{
		DB: filesystem.NewDB(cfg.MessagesRoot),
	})

	fetchService := fetching.NewService(fetching.Configuration{
		Roster:  roster,
		Mailbox: ms,
	})

	docs, err := apidocs.New(config.ServiceFetch)
	if err != nil {
		return nil, err
	}

	return server.NewServer(server.Configuration{
		Name: config.ServiceFetch,
		Addr: cfg.Addr(),
		Handlers: []server.Registrar{
			fetchhandler.New(fetchService),
			docs,
		},
	}), nil
}

func newNotifier(cfg config.Config) (notify.Notifier, error) {
	if cfg.NotifySMTPHost == "" {
		return notify.Noop{}, nil
	}

	var signing *notify.DKIM
	if cfg.NotifyDKIMKeyFile != "" {
		key, err := notify.LoadDKIMKey(cfg.NotifyDKIMKeyFile)
		if err != nil {
			return nil, fmt.Errorf("could not load DKIM key: %w", err)
		}
		signing = &notify.DKIM{Selector: cfg.NotifyDKIMSelector, Signer: key}
	}

	n, err := notify.NewSMTP(notify.Configuration{
		Host:     cfg.NotifySMTPHost,
		Port:     cfg.NotifySMTPPort,
		Username: cfg.NotifySMTPUsername,
		Password: cfg.NotifySMTPPassword,
		From:     cfg.NotifyFrom,
		Domain:   cfg.NotifyDomain,
		DKIM:     signing,
	})
	if err != nil {
		return nil, fmt.Errorf("could not set up notifications: %w", err)
	}
	slog.Info("Delivery notifications enabled", slog.String("smtp_host", cfg.NotifySMTPHost), slog.Bool("dkim", signing != nil))
	return n, nil
}
