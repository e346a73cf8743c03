package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"zero-entropy-be/internal/dto"
	"zero-entropy-be/internal/pkg/logger"
	"zero-entropy-be/pkg/rag"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v5"
)

const consumerModule = "INGEST_CONSUMER"

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// Indexer embeds and stores one ingestion job.
type Indexer interface {
	Index(ctx context.Context, job dto.IngestJob) (int, error)
}

type consumerService struct {
	subscriber  message.Subscriber
	topicName   string
	indexer     Indexer
	logger      logger.ILogger
	maxAttempts uint
	retryDelay  time.Duration
}

func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	indexer Indexer,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		subscriber:  subscriber,
		topicName:   topicName,
		indexer:     indexer,
		logger:      log,
		maxAttempts: 3,
		retryDelay:  500 * time.Millisecond,
	}
}

// Consume subscribes to the ingestion topic and processes messages until ctx
// is done. It returns once the subscription is established.
func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	cs.logger.Info(consumerModule, "Consumer started", map[string]interface{}{"topic": cs.topicName})
	return nil
}

// processMessage always acks. Embedding failures are retried here with a
// backoff; a gochannel Nack would redeliver immediately and spin.
func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	var job dto.IngestJob
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		cs.logger.Error(consumerModule, "Failed to unmarshal ingest job", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err.Error(),
		})
		return
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cs.retryDelay
	n, err := backoff.Retry(ctx, func() (int, error) {
		n, err := cs.indexer.Index(ctx, job)
		if errors.Is(err, rag.ErrInput) {
			return 0, backoff.Permanent(err)
		}
		return n, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(cs.maxAttempts))
	if err != nil {
		cs.logger.Error(consumerModule, "Failed to index document", map[string]interface{}{
			"document_id": job.DocumentId,
			"type":        job.Kind,
			"session_id":  job.SessionId,
			"error":       err.Error(),
		})
		return
	}

	cs.logger.Info(consumerModule, "Document indexed", map[string]interface{}{
		"document_id": job.DocumentId,
		"type":        job.Kind,
		"chunks":      n,
	})
}
