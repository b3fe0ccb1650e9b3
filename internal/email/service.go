// Package email relays queued notifications to the recipient's mailbox.
package email

import (
	"context"
	"encoding/json"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/hospital-intake/internal/model"
	"github.com/jwalitptl/hospital-intake/internal/repository"
	"github.com/jwalitptl/hospital-intake/internal/service/notification"
	"github.com/jwalitptl/hospital-intake/pkg/errors"
	"github.com/jwalitptl/hospital-intake/pkg/logger"
	"github.com/jwalitptl/hospital-intake/pkg/messaging"
)

type Service interface {
	SendCustom(ctx context.Context, to string, subject string, content string) error
}

// Sender is satisfied by *gomail.Dialer.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type smtpService struct {
	sender Sender
	from   string
}

func NewSMTPService(cfg Config) Service {
	return NewService(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.From)
}

func NewService(sender Sender, from string) Service {
	return &smtpService{sender: sender, from: from}
}

func (s *smtpService) SendCustom(ctx context.Context, to string, subject string, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", content)
	if err := s.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// Relay consumes notification.created events from the broker and mails them
// to doctors that have an address on file.
type Relay struct {
	mail          Service
	doctors       repository.DoctorRepository
	notifications repository.NotificationRepository
	logger        *logger.Logger
}

func NewRelay(mail Service, doctors repository.DoctorRepository, notifications repository.NotificationRepository, log *logger.Logger) *Relay {
	return &Relay{mail: mail, doctors: doctors, notifications: notifications, logger: log}
}

// Run subscribes to channel and returns once the subscription is live.
func (r *Relay) Run(ctx context.Context, broker messaging.MessageBroker, channel string) error {
	return broker.Subscribe(ctx, channel, func(raw []byte) error {
		return r.Handle(ctx, raw)
	})
}

// Handle processes one broker message. Events of other types are ignored.
// A recipient without an email address keeps the in-app copy only, which
// counts as delivered.
func (r *Relay) Handle(ctx context.Context, raw []byte) error {
	var msg messaging.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	if msg.Type != model.EventNotificationCreated {
		return nil
	}
	var p notification.Payload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return fmt.Errorf("failed to decode notification payload: %w", err)
	}

	doctor, err := r.doctors.Get(ctx, p.RecipientID)
	switch {
	case errors.Is(err, errors.NotFoundError):
		r.logger.Debug("recipient has no mailbox", "notification_id", p.NotificationID.String())
		return r.mark(ctx, p, model.NotificationStatusSent)
	case err != nil:
		return fmt.Errorf("failed to look up recipient: %w", err)
	case doctor.Email == "":
		return r.mark(ctx, p, model.NotificationStatusSent)
	}

	if err := r.mail.SendCustom(ctx, doctor.Email, p.Title, p.Message); err != nil {
		r.logger.Error(err, "notification email failed",
			"notification_id", p.NotificationID.String(),
			"recipient_id", p.RecipientID.String())
		if markErr := r.mark(ctx, p, model.NotificationStatusFailed); markErr != nil {
			return markErr
		}
		return err
	}
	return r.mark(ctx, p, model.NotificationStatusSent)
}

func (r *Relay) mark(ctx context.Context, p notification.Payload, status model.NotificationStatus) error {
	if err := r.notifications.MarkStatus(ctx, p.NotificationID, status); err != nil {
		return fmt.Errorf("failed to mark notification %s: %w", status, err)
	}
	return nil
}
