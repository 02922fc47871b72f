// Package notify публикует широковещательные уведомления в RabbitMQ.
// Доставкой занимается внешний воркер; публикация fire-and-forget,
// ошибки логируются и не пробрасываются вызывающему.
package notify

import (
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/course-marketplace/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/course-marketplace/internal/lib/sl"
)

// Message — полезная нагрузка уведомления.
type Message struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Service публикует уведомления в exchange notifications.
type Service struct {
	channel *amqp.Channel
	log     *slog.Logger
}

// New создает новый экземпляр Service.
func New(channel *amqp.Channel, log *slog.Logger) *Service {
	return &Service{
		channel: channel,
		log:     log,
	}
}

// NotifyAll отправляет уведомление всем пользователям. Сбой публикации
// не влияет на вызывающую операцию.
func (s *Service) NotifyAll(title, body string, data map[string]string) {
	msg := Message{Title: title, Body: body, Data: data}
	if err := rabbitmq.PublishMessage(s.channel, rabbitmq.NotificationsExchange, "broadcast", msg); err != nil {
		s.log.Error("failed to publish notification", sl.Err(err), slog.String("title", title))
		return
	}
	s.log.Info("notification published", slog.String("title", title))
}
