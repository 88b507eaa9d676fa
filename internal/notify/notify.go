// Package notify delivers customer emails. Delivery is best effort: failures are logged and
// never reported to the caller.
package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"bookstore/internal/config"
)

var ErrRateLimited = errors.New("notification rate limit exceeded")

// Message is an email addressed to a user by id.
type Message struct {
	UserID  uuid.UUID
	Subject string
	Body    string
}

// Sender delivers a single email.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Directory resolves a user's registered email address.
type Directory interface {
	Email(ctx context.Context, userID uuid.UUID) (string, error)
}

// SMTPSender sends mail through an SMTP relay.
type SMTPSender struct {
	host string
	addr string
	from string
	auth smtp.Auth
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	s := &SMTPSender{
		host: cfg.Host,
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		from: cfg.From,
	}
	if cfg.Username != "" {
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return s
}

// Send delivers one email. The whole SMTP exchange is bounded by ctx.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", s.addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("set smtp deadline: %w", err)
		}
	}
	// Unblocks pending reads when ctx is cancelled without a deadline.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := s.deliver(conn, to, subject, body); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("smtp send to %s: %w", to, ctxErr)
		}
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

func (s *SMTPSender) deliver(conn net.Conn, to, subject, body string) error {
	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if s.auth != nil {
		if err := c.Auth(s.auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if err := c.Mail(s.from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	msg := strings.Join([]string{
		"From: " + s.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}
	return c.Quit()
}

// LogSender writes emails to the log instead of sending them.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, to, subject, body string) error {
	log.Printf("email to=%s subject=%q", to, subject)
	return nil
}

// Dispatcher resolves recipients and sends messages through a circuit breaker and a rate limiter.
// It is safe for concurrent use.
type Dispatcher struct {
	directory Directory
	sender    Sender
	breaker   *gobreaker.CircuitBreaker
	limiter   *rate.Limiter
	timeout   time.Duration
}

// NewDispatcher creates a dispatcher sending at most perMinute emails per minute; zero means
// unlimited.
func NewDispatcher(directory Directory, sender Sender, perMinute int) *Dispatcher {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	burst := perMinute
	if burst < 1 {
		burst = 1
	}

	return &Dispatcher{
		directory: directory,
		sender:    sender,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "smtp",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Printf("Circuit breaker %s: %s -> %s", name, from, to)
			},
		}),
		limiter: rate.NewLimiter(limit, burst),
		timeout: 10 * time.Second,
	}
}

// Dispatch sends every message, logging and discarding failures.
func (d *Dispatcher) Dispatch(ctx context.Context, messages ...Message) {
	for _, msg := range messages {
		if err := d.send(ctx, msg); err != nil {
			log.Printf("Failed to notify user %s (%q): %v", msg.UserID, msg.Subject, err)
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, msg Message) error {
	if !d.limiter.Allow() {
		return ErrRateLimited
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	to, err := d.directory.Email(ctx, msg.UserID)
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}

	_, err = d.breaker.Execute(func() (interface{}, error) {
		return nil, d.sender.Send(ctx, to, msg.Subject, msg.Body)
	})
	return err
}
