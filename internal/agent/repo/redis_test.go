package repo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/crm-insights/server/internal/core/error"
)

// fakeRedis answers list commands from memory through client hooks, so the
// client never opens a connection.
type fakeRedis struct {
	mu      sync.Mutex
	lists   map[string][]string
	expires map[string]any
	seen    []string
	fail    error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{lists: map[string][]string{}, expires: map[string]any{}}
}

func (f *fakeRedis) client(t *testing.T) *redis.Client {
	t.Helper()
	c := redis.NewClient(&redis.Options{Addr: "fake:6379"})
	c.AddHook(f)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func (f *fakeRedis) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("fake redis does not dial")
	}
}

func (f *fakeRedis) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.fail != nil {
			cmd.SetErr(f.fail)
			return f.fail
		}
		f.apply(cmd)
		return cmd.Err()
	}
}

func (f *fakeRedis) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.fail != nil {
			for _, cmd := range cmds {
				cmd.SetErr(f.fail)
			}
			return f.fail
		}
		for _, cmd := range cmds {
			f.apply(cmd)
		}
		return nil
	}
}

func argString(v any) string {
	switch vv := v.(type) {
	case string:
		return vv
	case []byte:
		return string(vv)
	default:
		return fmt.Sprint(vv)
	}
}

// apply executes one command; callers hold mu.
func (f *fakeRedis) apply(cmd redis.Cmder) {
	name := cmd.Name()
	f.seen = append(f.seen, name)
	args := cmd.Args()

	switch name {
	case "rpush":
		key := argString(args[1])
		for _, v := range args[2:] {
			f.lists[key] = append(f.lists[key], argString(v))
		}
		cmd.(*redis.IntCmd).SetVal(int64(len(f.lists[key])))
	case "expire":
		f.expires[argString(args[1])] = args[2]
		cmd.(*redis.BoolCmd).SetVal(true)
	case "lrange":
		rows := append([]string(nil), f.lists[argString(args[1])]...)
		cmd.(*redis.StringSliceCmd).SetVal(rows)
	case "llen":
		cmd.(*redis.IntCmd).SetVal(int64(len(f.lists[argString(args[1])])))
	case "del":
		key := argString(args[1])
		_, ok := f.lists[key]
		delete(f.lists, key)
		if ok {
			cmd.(*redis.IntCmd).SetVal(1)
		} else {
			cmd.(*redis.IntCmd).SetVal(0)
		}
	}
}

func TestRedisTranscriptRepository(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	r := NewRedisTranscriptRepository(fake.client(t), time.Hour)

	require.NoError(t, r.Append(ctx, "c1", schema.UserMessage("hi"), schema.AssistantMessage("hello", nil)))
	require.NoError(t, r.Append(ctx, "c1"))
	require.NoError(t, r.Append(ctx, "c1", schema.UserMessage("bye")))

	assert.Len(t, fake.lists["transcript:c1:messages"], 3)
	assert.EqualValues(t, 3600, fake.expires["transcript:c1:messages"])
	assert.Contains(t, fake.seen, "rpush")
	assert.Contains(t, fake.seen, "expire")

	n, err := r.Count(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	tr, err := r.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", tr.ConversationID)
	require.Len(t, tr.Messages, 3)
	assert.Equal(t, schema.Assistant, tr.Messages[1].Role)
	assert.Equal(t, "bye", tr.Messages[2].Content)

	require.NoError(t, r.Clear(ctx, "c1"))
	tr, err = r.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, tr.Messages)
}

func TestRedisTranscriptRepositoryWithoutTTL(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	r := NewRedisTranscriptRepository(fake.client(t), 0)

	require.NoError(t, r.Append(ctx, "c1", schema.UserMessage("hi")))
	assert.NotContains(t, fake.seen, "expire")
}

func TestRedisTranscriptRepositoryCorruptRow(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	fake.lists["transcript:c1:messages"] = []string{`{"role":"user","content":"ok"}`, "not json"}
	r := NewRedisTranscriptRepository(fake.client(t), time.Hour)

	_, err := r.Load(ctx, "c1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index 1")
}

func TestRedisTranscriptRepositoryUnavailable(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	fake.fail = errors.New("connection refused")
	r := NewRedisTranscriptRepository(fake.client(t), time.Hour)

	err := r.Append(ctx, "c1", schema.UserMessage("hi"))
	require.Error(t, err)
	status, msg := errx.Resolve(err)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, errx.RedisErrorMessage, msg)

	_, err = r.Load(ctx, "c1")
	require.Error(t, err)

	_, err = r.Count(ctx, "c1")
	require.Error(t, err)

	require.Error(t, r.Clear(ctx, "c1"))
}
