package notification

import (
	"context"

	"cart-discounts/internal/logger"

	"github.com/sirupsen/logrus"
)

// LogProvider пишет письма в лог вместо отправки. Используется в разработке.
type LogProvider struct {
	log *logger.Logger
}

// NewLogProvider создаёт провайдера, пишущего в лог.
func NewLogProvider(log *logger.Logger) *LogProvider {
	return &LogProvider{log: log}
}

// Name возвращает имя провайдера.
func (p *LogProvider) Name() string {
	return ProviderLog
}

// Deliver записывает письмо в лог.
func (p *LogProvider) Deliver(ctx context.Context, msg *Message) error {
	p.log.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("Email delivered to log")
	p.log.WithField("to", msg.To).Debug(msg.Text)
	return nil
}
