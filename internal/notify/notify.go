package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/OliverSchlueter/goutils/sloki"
	"github.com/wneessen/go-mail"
)

// Notification describes one completed delivery.
type Notification struct {
	From        string
	To          string
	Key         string
	SentAt      time.Time
	Body        string
	Attachments int
}

// Notifier is told about every successful delivery. Notify must not block the
// caller on network I/O. Close waits for accepted notifications until ctx is
// done; later calls to Notify are dropped.
type Notifier interface {
	Notify(n Notification)
	Close(ctx context.Context) error
}

type Noop struct{}

func (Noop) Notify(Notification) {}

func (Noop) Close(context.Context) error { return nil }

type Configuration struct {
	Host     string
	Port     int
	Username string
	Password string
	// From is the envelope and header sender of notification mails.
	From string
	// Domain is appended to agent names to form recipient addresses.
	Domain  string
	Timeout time.Duration
	// Workers is the number of concurrent SMTP sessions.
	Workers int
	// QueueSize bounds the notifications waiting for a worker. Notify drops
	// notifications while the queue is full.
	QueueSize int
	// DKIM signs outgoing notices when set.
	DKIM *DKIM
}

// SMTP mails a short notice to <agent>@Domain for every delivery.
type SMTP struct {
	host     string
	port     int
	username string
	password string
	from     string
	domain   string
	timeout  time.Duration
	dkim     *DKIM

	queue   chan Notification
	workers sync.WaitGroup
	mu      sync.Mutex
	closed  bool

	// deliver is replaced in tests.
	deliver func(ctx context.Context, n Notification) error
}

func NewSMTP(cfg Configuration) (*SMTP, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is empty")
	}
	if cfg.From == "" || cfg.Domain == "" {
		return nil, fmt.Errorf("notification sender and domain are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	var signing *DKIM
	if cfg.DKIM != nil {
		d := *cfg.DKIM
		if err := d.validate(cfg.From); err != nil {
			return nil, err
		}
		signing = &d
	}

	s := &SMTP{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		domain:   cfg.Domain,
		timeout:  cfg.Timeout,
		dkim:     signing,
		queue:    make(chan Notification, cfg.QueueSize),
	}
	s.deliver = s.send

	s.workers.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go s.work()
	}

	return s, nil
}

func (s *SMTP) Notify(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		slog.Warn("Dropping delivery notification, notifier is closed", slog.String("to", n.To), slog.String("key", n.Key))
		return
	}

	select {
	case s.queue <- n:
	default:
		slog.Warn("Dropping delivery notification, queue is full", slog.String("to", n.To), slog.String("key", n.Key))
	}
}

// Close stops accepting notifications and waits until the queued ones are
// sent or ctx is done.
func (s *SMTP) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notifications still pending: %w", ctx.Err())
	}
}

func (s *SMTP) work() {
	defer s.workers.Done()

	for n := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		if err := s.deliver(ctx, n); err != nil {
			slog.Warn("Failed to send delivery notification", slog.String("to", n.To), slog.String("key", n.Key), sloki.WrapError(err))
		}
		cancel()
	}
}

func (s *SMTP) send(ctx context.Context, n Notification) error {
	m, err := s.buildMsg(n)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(s.port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if s.username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.username),
			mail.WithPassword(s.password),
		)
	}

	c, err := mail.NewClient(s.host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create mail client: %w", err)
	}

	return c.DialAndSendWithContext(ctx, m)
}

func (s *SMTP) buildMsg(n Notification) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(s.from); err != nil {
		return nil, fmt.Errorf("failed to set From address: %w", err)
	}
	if err := m.To(n.To + "@" + s.domain); err != nil {
		return nil, fmt.Errorf("failed to set To address: %w", err)
	}

	m.Subject(fmt.Sprintf("New message from %s", n.From))
	m.SetBodyString(mail.TypeTextPlain, noticeBody(n))

	if s.dkim != nil {
		if err := s.dkim.sign(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func noticeBody(n Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s sent you a message at %s.\n\n", n.From, n.SentAt.UTC().Format(time.RFC3339))
	b.WriteString(n.Body)
	b.WriteString("\n")
	if n.Attachments > 0 {
		fmt.Fprintf(&b, "\n%d attachment(s) are waiting in your inbox.\n", n.Attachments)
	}
	fmt.Fprintf(&b, "\nEntry: %s\n", n.Key)
	return b.String()
}
