package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	syncdomain "vectorsync-backend/internal/sync/domain"
	"vectorsync-backend/internal/sync/usecase"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// EventIngester hands a decoded change notification to the engine
type EventIngester interface {
	Ingest(ctx context.Context, evt *syncdomain.WebhookEvent, source string) (usecase.IngestResult, error)
}

// Outcome tells the receive loop whether to acknowledge a message
type Outcome int

const (
	OutcomeAck Outcome = iota
	OutcomeNack
)

// Config for the Pub/Sub ingester
type Config struct {
	ProjectID    string
	TopicName    string
	Subscription string // Defaults to TopicName + "-sub"
	// Credentials is a service account file path or the JSON document itself
	Credentials string
}

// Service receives content change notifications from a Pub/Sub subscription. Messages
// carry the same JSON as the webhook endpoint.
type Service struct {
	pubsubClient *pubsub.Client
	ingester     EventIngester
	topicName    string
	subName      string
	logger       *slog.Logger
}

func NewService(ctx context.Context, cfg Config, ingester EventIngester, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var opts []option.ClientOption
	if creds := strings.TrimSpace(cfg.Credentials); creds != "" {
		if strings.HasPrefix(creds, "{") {
			opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
		} else {
			opts = append(opts, option.WithCredentialsFile(creds))
		}
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	subName := cfg.Subscription
	if subName == "" {
		subName = cfg.TopicName + "-sub" // Convention: topic-sub
	}

	return &Service{
		pubsubClient: client,
		ingester:     ingester,
		topicName:    cfg.TopicName,
		subName:      subName,
		logger:       logger.With("component", "pubsub"),
	}, nil
}

// Start blocks receiving messages until ctx is done. The subscription is created on the
// topic when it does not exist yet.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("starting notification service", "topic", s.topicName, "subscription", s.subName)

	sub, err := s.ensureSubscription(ctx)
	if err != nil {
		return err
	}

	s.logger.Info("listening for messages", "subscription", s.subName)
	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if s.HandleMessage(ctx, msg.Data) == OutcomeAck {
			msg.Ack()
		} else {
			msg.Nack()
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to receive messages: %w", err)
	}
	return nil
}

func (s *Service) ensureSubscription(ctx context.Context) (*pubsub.Subscription, error) {
	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check subscription: %w", err)
	}
	if exists {
		return sub, nil
	}

	if s.topicName == "" {
		return nil, fmt.Errorf("subscription %s does not exist and no topic is configured", s.subName)
	}
	topic := s.pubsubClient.Topic(s.topicName)
	topicExists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check topic: %w", err)
	}
	if !topicExists {
		return nil, fmt.Errorf("topic %s does not exist, cannot create subscription", s.topicName)
	}

	sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	s.logger.Info("created subscription", "subscription", s.subName)
	return sub, nil
}

// HandleMessage decodes and ingests one message. Poison messages are acknowledged so
// they are never redelivered; a full or closed queue asks Pub/Sub to redeliver later.
func (s *Service) HandleMessage(ctx context.Context, data []byte) Outcome {
	var evt syncdomain.WebhookEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		s.logger.Warn("dropping undecodable message", "error", err)
		return OutcomeAck
	}

	result, err := s.ingester.Ingest(ctx, &evt, syncdomain.SourcePubSub)
	return decide(result, err, s.logger)
}

func decide(result usecase.IngestResult, err error, logger *slog.Logger) Outcome {
	if err == nil {
		logger.Debug("message handled", "result", result)
		return OutcomeAck
	}
	if errors.Is(err, syncdomain.ErrMalformedEvent) {
		return OutcomeAck
	}
	logger.Warn("message not accepted, requesting redelivery", "error", err)
	return OutcomeNack
}

// Close releases the Pub/Sub client
func (s *Service) Close() error {
	return s.pubsubClient.Close()
}
