package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/collab-service/internal/config"
	"github.com/spec-kit/collab-service/internal/events"
	"github.com/spec-kit/collab-service/internal/persistence"
)

// NotificationService forwards collaboration events to external sinks.
// Delivery is fire-and-forget: a sink failure is logged and never blocks
// the update path.
type NotificationService struct {
	dispatcher events.Dispatcher
	redis      *persistence.Redis
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, redis *persistence.Redis, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		redis:      redis,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to engine events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventRoomCreated, n.handleEvent)
	n.dispatcher.Subscribe(events.EventParticipantJoined, n.handleEvent)
	n.dispatcher.Subscribe(events.EventParticipantLeft, n.handleEvent)
	n.dispatcher.Subscribe(events.EventFieldUpdated, n.handleEvent)
}

func (n *NotificationService) handleEvent(ctx context.Context, event events.Event) error {
	n.publishToRedis(event)
	n.sendWebhookStub(event)
	return nil
}

func (n *NotificationService) publishToRedis(event events.Event) {
	if n.redis == nil || n.cfg.EventsChannel == "" {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.Warn("marshal event for notification", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := n.redis.Publish(ctx, n.cfg.EventsChannel, payload); err != nil {
		n.logger.Debug("notification publish failed",
			zap.String("channel", n.cfg.EventsChannel),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}

func (n *NotificationService) sendWebhookStub(event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("room_id", event.RoomID),
		zap.String("event_type", string(event.Type)))
}
