package service

import (
	"context"
	"encoding/json"

	"zero-entropy-be/internal/dto"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// IPublisherService queues knowledge for background embedding.
type IPublisherService interface {
	PublishIngest(ctx context.Context, job dto.IngestJob) error
}

type publisherService struct {
	topicName string
	publisher message.Publisher
}

func NewPublisherService(topicName string, publisher message.Publisher) IPublisherService {
	return &publisherService{
		topicName: topicName,
		publisher: publisher,
	}
}

func (ps *publisherService) PublishIngest(ctx context.Context, job dto.IngestJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(context.WithoutCancel(ctx))
	msg.Metadata.Set("document_id", job.DocumentId)
	msg.Metadata.Set("type", job.Kind)

	return ps.publisher.Publish(ps.topicName, msg)
}
