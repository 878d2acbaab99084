package service

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/studiofoundry/backstage"
)

// ProgressService fans progress events out over redis pub/sub. Every
// event goes out on the operation's own channel and on the channel of
// its subject (the entity or account id), which the caller holds
// before dispatch. Pub/sub has no replay, so subscribing by subject
// before issuing the mutation is the way to see the first step.
type ProgressService struct {
	rdb *redis.Client
}

func NewProgressService(redisClient *redis.Client) *ProgressService {
	return &ProgressService{
		rdb: redisClient,
	}
}

func ProgressChannel(operationID string) string {
	return "progress:" + operationID
}

func (s *ProgressService) Publish(ctx context.Context, event backstage.ProgressEvent) error {

	jsonstr, err := json.Marshal(event)
	if err != nil {
		return err
	}

	channels := []string{ProgressChannel(event.OperationID)}
	if event.Subject != "" && event.Subject != event.OperationID {
		channels = append(channels, ProgressChannel(event.Subject))
	}

	for _, channel := range channels {
		if err := s.rdb.Publish(ctx, channel, jsonstr).Err(); err != nil {
			return err
		}
	}

	return nil
}

// Subscribe returns a channel of events for one progress key, either
// an operation id or a subject id, plus a cancel func. The channel
// closes when the final event arrives or the context ends.
func (s *ProgressService) Subscribe(ctx context.Context, id string) (<-chan backstage.ProgressEvent, func()) {

	pubsub := s.rdb.Subscribe(ctx, ProgressChannel(id))
	events := make(chan backstage.ProgressEvent)

	go func() {
		defer close(events)
		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				return
			}

			var event backstage.ProgressEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}

			select {
			case events <- event:
			case <-ctx.Done():
				return
			}

			if event.Final {
				return
			}
		}
	}()

	return events, func() { pubsub.Close() }
}
