package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"cart-discounts/internal/config"
	"cart-discounts/internal/logger"
	"cart-discounts/internal/models"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Producer публикует события рассылки в Kafka.
type Producer struct {
	producer sarama.SyncProducer
	log      *logger.Logger
	topics   *config.Topics
}

// NewProducer создает синхронного продюсера Kafka.
func NewProducer(cfg *config.KafkaConfig, log *logger.Logger) (*Producer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Retry.Max = 3
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.Partitioner = sarama.NewHashPartitioner
	saramaCfg.Net.DialTimeout = 5 * time.Second

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	log.WithField("brokers", cfg.Brokers).Info("Kafka producer created")

	return &Producer{
		producer: producer,
		log:      log,
		topics:   &cfg.Topics,
	}, nil
}

// PublishDiscountCodeIssued публикует событие о выпуске кода.
func (p *Producer) PublishDiscountCodeIssued(code *models.DiscountCode, source models.TriggerSource) error {
	return p.publishCodeEvent(models.EventTypeDiscountCodeIssued, code, source)
}

// PublishDiscountCodeEmailed публикует событие об отправке письма с кодом.
func (p *Producer) PublishDiscountCodeEmailed(code *models.DiscountCode, source models.TriggerSource) error {
	return p.publishCodeEvent(models.EventTypeDiscountCodeEmailed, code, source)
}

// PublishScanCompleted публикует итоги прогона рассылки.
func (p *Producer) PublishScanCompleted(summary *models.ScanSummary) error {
	event, err := newEvent(models.EventTypeScanCompleted, summary)
	if err != nil {
		return err
	}
	return p.publishEvent(p.topics.DiscountEvents, event)
}

func (p *Producer) publishCodeEvent(eventType models.EventType, code *models.DiscountCode, source models.TriggerSource) error {
	event, err := newEvent(eventType, models.DiscountCodeEventData{
		UserID:  code.UserID,
		Code:    code.Code,
		Percent: code.Percent,
		Source:  source,
	})
	if err != nil {
		return err
	}
	return p.publishEvent(p.topics.DiscountEvents, event)
}

func newEvent(eventType models.EventType, payload interface{}) (models.Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return models.Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return models.Event{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}

func (p *Producer) publishEvent(topic string, event models.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.ID.String()),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.log.WithError(err).WithFields(logrus.Fields{
			"topic":      topic,
			"event_type": event.Type,
		}).Error("Failed to publish event")
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.log.WithFields(logrus.Fields{
		"topic":      topic,
		"event_type": event.Type,
		"event_id":   event.ID,
		"partition":  partition,
		"offset":     offset,
	}).Debug("Event published")
	return nil
}

// Close закрывает продюсера.
func (p *Producer) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
