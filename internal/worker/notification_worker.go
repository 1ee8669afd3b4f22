package worker

import (
	"github.com/spec-kit/ticket-bot/internal/events"
	"github.com/spec-kit/ticket-bot/internal/kafka"
	"github.com/spec-kit/ticket-bot/internal/service"
)

// StartNotificationWorker registers the event consumers. A nil producer
// leaves the Kafka sink off.
func StartNotificationWorker(dispatcher events.Dispatcher, notificationService *service.NotificationService, producer *kafka.Producer) {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if producer != nil && dispatcher != nil {
		producer.Register(dispatcher)
	}
}
