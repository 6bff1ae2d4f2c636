// Package audit is the structured security event log. Every
// authentication and authorization decision, success or failure, is
// recorded with actor, target, reason code and request metadata. The
// sink never blocks the response path: stdout logging is synchronous
// and cheap, broker publication is fire-and-forget.
package audit

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/polytech-superapp/campus-sso/internal/utils"
)

// Sink writes audit events as JSON lines and mirrors them to a durable
// RabbitMQ queue when a broker URL is configured.
type Sink struct {
	logger *log.Logger
	queue  string
	events chan []byte
}

// New builds a sink. amqpURL may be empty, in which case events go to
// stdout only. The publisher goroutine drops events when the broker is
// down or the buffer is full; the local log line is the system of
// record.
func New(amqpURL string) *Sink {
	s := &Sink{
		logger: log.New(os.Stdout, "", 0),
		queue:  "audit.events",
	}
	if amqpURL != "" {
		s.events = make(chan []byte, 256)
		go s.publishLoop(amqpURL)
	}
	return s
}

// NewWithOutput builds a sink writing to w instead of stdout, without a
// broker. Tests use it to capture the event stream.
func NewWithOutput(w io.Writer) *Sink {
	return &Sink{logger: log.New(w, "", 0), queue: "audit.events"}
}

// Event records one audit event. Fields must be JSON-serializable.
func (s *Sink) Event(event string, fields map[string]any) {
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"event": event,
	}
	for k, v := range fields {
		entry[k] = v
	}
	data, err := json.Marshal(entry)
	if err != nil {
		s.logger.Printf(`{"event":"audit_marshal_failed","source_event":%q}`, event)
		return
	}
	s.logger.Println(string(data))
	if s.events != nil {
		select {
		case s.events <- data:
		default: // buffer full, drop rather than block the response
		}
	}
}

// publishLoop drains the event buffer into the audit queue, redialing
// the broker after any failure.
func (s *Sink) publishLoop(url string) {
	var (
		conn *amqp.Connection
		ch   *amqp.Channel
	)
	reset := func() {
		if ch != nil {
			_ = ch.Close()
			ch = nil
		}
		if conn != nil {
			_ = conn.Close()
			conn = nil
		}
	}
	for body := range s.events {
		if ch == nil {
			var err error
			conn, err = amqp.Dial(url)
			if err != nil {
				log.Printf("audit: rabbitmq dial failed: %v", err)
				continue
			}
			ch, err = conn.Channel()
			if err != nil {
				log.Printf("audit: rabbitmq channel failed: %v", err)
				reset()
				continue
			}
			if _, err := ch.QueueDeclare(s.queue, true, false, false, false, nil); err != nil {
				log.Printf("audit: queue declare failed: %v", err)
				reset()
				continue
			}
		}
		err := ch.Publish("", s.queue, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
		if err != nil {
			log.Printf("audit: publish failed: %v", err)
			reset()
		}
	}
}

// RequestContext extracts caller metadata from the request: client IP
// (preferring the first X-Forwarded-For hop) and user agent.
func RequestContext(c echo.Context) map[string]any {
	ip := c.RealIP()
	if fwd := c.Request().Header.Get("X-Forwarded-For"); fwd != "" {
		ip = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return map[string]any{
		"client_ip":  ip,
		"user_agent": c.Request().UserAgent(),
	}
}

// TokenActor describes a user principal from decoded access claims.
func TokenActor(claims utils.AccessClaims) map[string]any {
	return map[string]any{
		"actor_account_id": claims.AccountID,
		"actor_username":   claims.Username,
		"actor_app":        claims.App,
		"actor_role":       claims.Role,
	}
}

// ServiceActor describes a service caller resolved from its pre-shared
// secret.
func ServiceActor(caller string) map[string]any {
	return map[string]any{"actor_service": caller}
}

// Merge folds several field maps into one; later maps win.
func Merge(maps ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
