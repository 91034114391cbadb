package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"

	"github.com/crm-insights/server/internal/agent/model"
	errx "github.com/crm-insights/server/internal/core/error"
	logx "github.com/crm-insights/server/pkg/logger"
)

type RedisTranscriptRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisTranscriptRepository(rdb redis.Cmdable, ttl time.Duration) *RedisTranscriptRepository {
	return &RedisTranscriptRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisTranscriptRepository) transcriptKey(conversationID string) string {
	return fmt.Sprintf("transcript:%s:messages", conversationID)
}

func (r *RedisTranscriptRepository) Append(ctx context.Context, conversationID string, messages ...*schema.Message) error {
	if len(messages) == 0 {
		return nil
	}
	rows := make([]any, 0, len(messages))
	for _, m := range messages {
		b, err := json.Marshal(m)
		if err != nil {
			logx.Error().Err(err).Str("conversationID", conversationID).Msg("failed to marshal message")
			return fmt.Errorf("marshal message: %w", err)
		}
		rows = append(rows, b)
	}
	key := r.transcriptKey(conversationID)

	pipe := r.rdb.TxPipeline()
	pipe.RPush(ctx, key, rows...)
	// extend TTL on touch
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to append transcript to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisTranscriptRepository) Load(ctx context.Context, conversationID string) (*model.Transcript, error) {
	key := r.transcriptKey(conversationID)

	rows, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &model.Transcript{ConversationID: conversationID, Messages: []*schema.Message{}}, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load transcript from redis")
		return nil, errx.WrapRedis(err)
	}

	msgs := make([]*schema.Message, 0, len(rows))
	for i, s := range rows {
		var m schema.Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			logx.Error().Err(err).Str("conversationID", conversationID).Int("index", i).Msg("failed to unmarshal message")
			return nil, fmt.Errorf("unmarshal message at index %d: %w", i, err)
		}
		msgs = append(msgs, &m)
	}
	return &model.Transcript{ConversationID: conversationID, Messages: msgs}, nil
}

func (r *RedisTranscriptRepository) Clear(ctx context.Context, conversationID string) error {
	key := r.transcriptKey(conversationID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete transcript from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisTranscriptRepository) Count(ctx context.Context, conversationID string) (int, error) {
	key := r.transcriptKey(conversationID)
	n, err := r.rdb.LLen(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to get transcript length from redis")
		return 0, errx.WrapRedis(err)
	}
	return int(n), nil
}

var _ model.TranscriptRepository = (*RedisTranscriptRepository)(nil)
