package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	"github.com/noah-isme/sma-exam-engine/pkg/clock"
	"github.com/noah-isme/sma-exam-engine/pkg/jobs"
)

// eventPublisher hands events to the dispatcher after a transaction commits.
type eventPublisher interface {
	Publish(ctx context.Context, event models.NotificationEvent)
}

// reminderScheduler defers exam reminders until shortly before a slot starts.
type reminderScheduler interface {
	Schedule(job jobs.Job, when time.Time) error
	Cancel(jobID string) bool
}

// NotificationSink delivers one event to one destination.
type NotificationSink interface {
	Name() string
	Deliver(ctx context.Context, event models.NotificationEvent) error
}

type sinkDelivery struct {
	Sink  string
	Event models.NotificationEvent
}

// NotificationDispatcher fans events out to sinks through a bounded retrying queue.
// Each sink gets its own job so a failing sink is retried without re-sending to the others.
type NotificationDispatcher struct {
	queue   *jobs.Queue
	sinks   map[string]NotificationSink
	metrics *MetricsService
	clock   clock.Clock
	logger  *zap.Logger
}

// NewNotificationDispatcher builds a dispatcher over the given sinks. Call Start before publishing.
func NewNotificationDispatcher(cfg jobs.QueueConfig, sinks []NotificationSink, metrics *MetricsService, clk clock.Clock, logger *zap.Logger) *NotificationDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.System{}
	}
	cfg.Logger = logger
	d := &NotificationDispatcher{sinks: make(map[string]NotificationSink, len(sinks)), metrics: metrics, clock: clk, logger: logger}
	for _, sink := range sinks {
		if sink != nil {
			d.sinks[sink.Name()] = sink
		}
	}
	cfg.GiveUp = d.abandon
	d.queue = jobs.NewQueue("notifications", d.handle, cfg)
	return d
}

func (d *NotificationDispatcher) abandon(job jobs.Job, err error) {
	delivery, ok := job.Payload.(sinkDelivery)
	if !ok {
		return
	}
	d.logger.Warn("notification abandoned",
		zap.String("event_id", delivery.Event.ID),
		zap.String("event_type", string(delivery.Event.EventType)),
		zap.String("entity_id", delivery.Event.EntityID),
		zap.String("sink", delivery.Sink),
		zap.Int("attempts", job.Attempt),
		zap.Error(err))
}

// Start launches the delivery workers.
func (d *NotificationDispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop drains nothing and stops the workers; undelivered jobs are dropped.
func (d *NotificationDispatcher) Stop() {
	d.queue.Stop()
}

// Publish enqueues the event for every sink. It never blocks and never fails the caller.
func (d *NotificationDispatcher) Publish(ctx context.Context, event models.NotificationEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = d.clock.Now()
	}
	if event.Details == nil {
		event.Details = map[string]interface{}{}
	}
	for _, name := range d.sinkNames() {
		job := jobs.Job{
			ID:      event.ID + ":" + name,
			Type:    string(event.EventType),
			Payload: sinkDelivery{Sink: name, Event: event},
		}
		if err := d.queue.TryEnqueue(job); err != nil {
			d.metrics.ObserveNotification(name, err)
			d.logger.Warn("notification dropped",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.EventType)),
				zap.String("sink", name),
				zap.Error(err))
		}
	}
}

// Enqueue lets the reminder scheduler hand over due events.
func (d *NotificationDispatcher) Enqueue(job jobs.Job) error {
	event, ok := job.Payload.(models.NotificationEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID)
	}
	event.Timestamp = time.Time{}
	d.Publish(context.Background(), event)
	return nil
}

func (d *NotificationDispatcher) sinkNames() []string {
	names := make([]string, 0, len(d.sinks))
	for name := range d.sinks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *NotificationDispatcher) handle(ctx context.Context, job jobs.Job) error {
	delivery, ok := job.Payload.(sinkDelivery)
	if !ok {
		d.logger.Error("malformed notification job", zap.String("job_id", job.ID))
		return nil
	}
	sink, ok := d.sinks[delivery.Sink]
	if !ok {
		return nil
	}
	err := sink.Deliver(ctx, delivery.Event)
	d.metrics.ObserveNotification(delivery.Sink, err)
	return err
}

// LogSink writes events to the structured log.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a log sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Name implements NotificationSink.
func (s *LogSink) Name() string { return "log" }

// Deliver implements NotificationSink.
func (s *LogSink) Deliver(_ context.Context, event models.NotificationEvent) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.EventType)),
		zap.String("entity_type", event.EntityType),
		zap.String("entity_id", event.EntityID),
		zap.Time("timestamp", event.Timestamp),
		zap.Any("details", event.Details),
	}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", *event.ActorID))
	}
	s.logger.Info("notification", fields...)
	return nil
}

type outboxAppender interface {
	Append(ctx context.Context, record *models.OutboxRecord) error
}

// OutboxSink persists events to the notification_events table for downstream relays.
type OutboxSink struct {
	repo outboxAppender
}

// NewOutboxSink creates an outbox sink.
func NewOutboxSink(repo outboxAppender) *OutboxSink {
	return &OutboxSink{repo: repo}
}

// Name implements NotificationSink.
func (s *OutboxSink) Name() string { return "outbox" }

// Deliver implements NotificationSink.
func (s *OutboxSink) Deliver(ctx context.Context, event models.NotificationEvent) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("encode event details: %w", err)
	}
	return s.repo.Append(ctx, &models.OutboxRecord{
		ID:         event.ID,
		EventType:  string(event.EventType),
		EntityType: event.EntityType,
		EntityID:   event.EntityID,
		ActorID:    event.ActorID,
		Details:    details,
		OccurredAt: event.Timestamp,
	})
}

// mailSender is satisfied by *sendgrid.Client.
type mailSender interface {
	Send(email *sgmail.SGMailV3) (*rest.Response, error)
}

// EmailSinkConfig configures staff alert e-mails.
type EmailSinkConfig struct {
	APIKey     string
	From       string
	FromName   string
	Recipients []string
	Events     []models.EventType
}

// EmailSink mails staff alerts through SendGrid. Events outside its set are ignored.
type EmailSink struct {
	sender     mailSender
	from       *sgmail.Email
	recipients []string
	events     map[models.EventType]struct{}
}

// NewEmailSink returns nil when no API key or recipient is configured.
func NewEmailSink(cfg EmailSinkConfig) *EmailSink {
	if cfg.APIKey == "" || len(cfg.Recipients) == 0 {
		return nil
	}
	return newEmailSink(sendgrid.NewSendClient(cfg.APIKey), cfg)
}

func newEmailSink(sender mailSender, cfg EmailSinkConfig) *EmailSink {
	events := cfg.Events
	if len(events) == 0 {
		events = []models.EventType{models.EventLowPerformanceAlert, models.EventEvaluationDue}
	}
	set := make(map[models.EventType]struct{}, len(events))
	for _, e := range events {
		set[e] = struct{}{}
	}
	return &EmailSink{
		sender:     sender,
		from:       sgmail.NewEmail(cfg.FromName, cfg.From),
		recipients: cfg.Recipients,
		events:     set,
	}
}

// Name implements NotificationSink.
func (s *EmailSink) Name() string { return "email" }

// Deliver implements NotificationSink.
func (s *EmailSink) Deliver(_ context.Context, event models.NotificationEvent) error {
	if _, ok := s.events[event.EventType]; !ok {
		return nil
	}
	p := sgmail.NewPersonalization()
	p.Subject = emailSubject(event)
	for _, to := range s.recipients {
		p.AddTos(sgmail.NewEmail("", to))
	}
	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", emailBody(event)))

	res, err := s.sender.Send(m)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid send: status %d", res.StatusCode)
	}
	return nil
}

func emailSubject(event models.NotificationEvent) string {
	title := strings.ReplaceAll(string(event.EventType), "_", " ")
	return fmt.Sprintf("[Exams] %s: %s %s", title, event.EntityType, event.EntityID)
}

func emailBody(event models.NotificationEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Event: %s\nEntity: %s %s\nAt: %s\n", event.EventType, event.EntityType, event.EntityID, event.Timestamp.Format(time.RFC3339))
	keys := make([]string, 0, len(event.Details))
	for k := range event.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, event.Details[k])
	}
	return b.String()
}
