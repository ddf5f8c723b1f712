// Package notify delivers verification messages to customers.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"restaurant-api/internal/util"
)

var ErrGatewayUnavailable = errors.New("sms gateway unavailable")

// LogSender stands in for an SMS gateway: it waits a random latency, fails
// a configured fraction of sends and logs the rest.
type LogSender struct {
	failureRate float64
	minLatency  time.Duration
	maxLatency  time.Duration
	logger      *zap.Logger
	rand        func() float64
}

func NewLogSender(failureRate float64, minLatency, maxLatency time.Duration, logger *zap.Logger) *LogSender {
	if maxLatency < minLatency {
		maxLatency = minLatency
	}
	return &LogSender{
		failureRate: failureRate,
		minLatency:  minLatency,
		maxLatency:  maxLatency,
		logger:      logger,
		rand:        rand.Float64,
	}
}

func (s *LogSender) Send(ctx context.Context, phone, message string) error {
	delay := s.minLatency + time.Duration(s.rand()*float64(s.maxLatency-s.minLatency))
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if s.failureRate > 0 && s.rand() < s.failureRate {
		return ErrGatewayUnavailable
	}

	s.logger.Info("SMS sent",
		util.String("phone", util.MaskPhone(phone)),
		util.Duration("latency", delay),
		util.Int("length", len(message)),
	)
	return nil
}

// Producer is the subset of the Kafka producer the sender needs.
type Producer interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

type outboundSMS struct {
	Phone     string    `json:"phone"`
	Message   string    `json:"message"`
	Purpose   string    `json:"purpose"`
	CreatedAt time.Time `json:"created_at"`
}

// KafkaSender queues messages for an external SMS dispatcher.
type KafkaSender struct {
	producer Producer
	topic    string
	now      func() time.Time
}

func NewKafkaSender(producer Producer, topic string) *KafkaSender {
	return &KafkaSender{producer: producer, topic: topic, now: time.Now}
}

func (s *KafkaSender) Send(ctx context.Context, phone, message string) error {
	payload, err := json.Marshal(outboundSMS{
		Phone:     phone,
		Message:   message,
		Purpose:   "otp",
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode sms: %w", err)
	}

	headers := map[string]string{"content-type": "application/json", "purpose": "otp"}
	if err := s.producer.ProduceMessage(ctx, s.topic, []byte(phone), payload, headers); err != nil {
		return fmt.Errorf("failed to queue sms: %w", err)
	}
	return nil
}
