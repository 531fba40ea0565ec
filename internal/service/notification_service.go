package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/dentvid-api/pkg/jobs"
	"github.com/noah-isme/dentvid-api/pkg/mailer"
)

const jobTypeEmail = "email"

type emailJob struct {
	Template string
	Message  mailer.Message
}

// notifier is what account and video flows use to send email.
type notifier interface {
	Notify(ctx context.Context, to, template string, data mailer.Data)
}

// NotificationService renders templated email and delivers it off the
// request path through a bounded in-memory queue.
type NotificationService struct {
	sender   mailer.Sender
	renderer *mailer.Renderer
	queue    *jobs.Queue
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewNotificationService builds the service and its delivery queue. Retries
// happen inside the sender, so queue requeueing is disabled.
func NewNotificationService(sender mailer.Sender, renderer *mailer.Renderer, queueCfg jobs.QueueConfig, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{sender: sender, renderer: renderer, metrics: metrics, logger: logger}
	queueCfg.MaxRetries = 0
	queueCfg.Logger = logger
	s.queue = jobs.NewQueue("notifications", s.deliver, queueCfg)
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Notify renders template for to and queues it. It never blocks and never
// fails the caller: render or queue errors are logged.
func (s *NotificationService) Notify(_ context.Context, to, template string, data mailer.Data) {
	msg, err := s.renderer.Render(template, to, data)
	if err != nil {
		s.logger.Error("failed to render email", zap.String("template", template), zap.Error(err))
		return
	}
	if err := s.queue.TryEnqueue(jobs.Job{Type: jobTypeEmail, Payload: emailJob{Template: template, Message: msg}}); err != nil {
		s.metrics.ObserveEmail(template, err)
		s.logger.Warn("failed to queue email", zap.String("template", template), zap.String("to", to), zap.Error(err))
	}
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(emailJob)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID)
	}
	err := s.sender.Send(ctx, payload.Message)
	s.metrics.ObserveEmail(payload.Template, err)
	if err != nil {
		s.logger.Error("email delivery failed",
			zap.String("job_id", job.ID),
			zap.String("template", payload.Template),
			zap.String("to", payload.Message.To),
			zap.Error(err),
		)
		return nil
	}
	s.logger.Debug("email delivered", zap.String("template", payload.Template), zap.String("to", payload.Message.To))
	return nil
}
