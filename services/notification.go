package services

import (
	"bytes"
	"net/http"
	"os"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/platevoice/plate_api/model"
)

// NotificationService fans domain events out to plate owners. Delivery is
// best effort and fire-and-forget: a dead webhook never blocks or fails
// the write path that raised the event.
type NotificationService struct {
	context.DefaultService

	webhookURL string
	client     *http.Client
}

const NOTIFICATION_SVC = "notification_svc"

func (svc NotificationService) Id() string {
	return NOTIFICATION_SVC
}

func (svc *NotificationService) Configure(ctx *context.Context) error {
	svc.webhookURL = os.Getenv("NOTIFY_WEBHOOK_URL")
	svc.client = &http.Client{Timeout: 5 * time.Second}
	return svc.DefaultService.Configure(ctx)
}

func (svc *NotificationService) Start() error {
	if svc.webhookURL == "" {
		log.Info("Notification webhook not configured, events are log-only")
	}
	return nil
}

type notificationEvent struct {
	Event     string    `json:"event"`
	Plate     string    `json:"plate"`
	MessageID string    `json:"message_id"`
	Urgency   string    `json:"urgency"`
	Level     string    `json:"level,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NotifyNewMessage signals a plate owner that a message arrived.
func (svc *NotificationService) NotifyNewMessage(message *model.Message) {
	svc.dispatch(notificationEvent{
		Event:     "message.received",
		Plate:     message.Plate,
		MessageID: message.ID,
		Urgency:   message.Urgency,
		Timestamp: time.Now(),
	})
}

// NotifyEscalation signals that a message climbed the escalation ladder.
func (svc *NotificationService) NotifyEscalation(message *model.Message, escalation *model.Escalation) {
	svc.dispatch(notificationEvent{
		Event:     "message.escalated",
		Plate:     message.Plate,
		MessageID: message.ID,
		Urgency:   message.Urgency,
		Level:     string(escalation.Level),
		Timestamp: time.Now(),
	})
}

func (svc *NotificationService) dispatch(event notificationEvent) {
	log.WithFields(log.Fields{
		"event":      event.Event,
		"plate":      event.Plate,
		"message_id": event.MessageID,
		"level":      event.Level,
	}).Info("Notification event")

	if svc.webhookURL == "" || svc.client == nil {
		return
	}

	go func() {
		payload, err := sonic.Marshal(event)
		if err != nil {
			log.WithError(err).Warn("Failed to encode notification payload")
			return
		}

		resp, err := svc.client.Post(svc.webhookURL, "application/json", bytes.NewReader(payload))
		if err != nil {
			log.WithError(err).Warn("Notification webhook delivery failed")
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			log.WithField("status", resp.StatusCode).Warn("Notification webhook rejected event")
		}
	}()
}
