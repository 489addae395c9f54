package redishost

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ggoodman/editor-mcp-go/sessions"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

const (
	defaultAddr   = "localhost:6379"
	defaultPrefix = "editor-mcp:sessions:"

	// payloadField is the stream entry field holding the encoded message.
	payloadField = "d"
	readBatch    = 16
	readBlock    = 500 * time.Millisecond
	// retireFor bounds the retired marker when no stream TTL is configured.
	retireFor = time.Hour
)

// publishScript appends to the stream unless the session has been retired.
// KEYS: stream, retired marker. ARGV: maxlen, field, payload, ttl (ms).
var publishScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
	return false
end
local id
if tonumber(ARGV[1]) > 0 then
	id = redis.call('XADD', KEYS[1], 'MAXLEN', '~', ARGV[1], '*', ARGV[2], ARGV[3])
else
	id = redis.call('XADD', KEYS[1], '*', ARGV[2], ARGV[3])
end
if tonumber(ARGV[4]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[4])
end
return id
`)

// Config is populated from the environment by NewFromEnv or from the yaml
// config file by the CLI.
type Config struct {
	RedisAddr string        `env:"REDIS_ADDR,default=localhost:6379" yaml:"addr"`
	KeyPrefix string        `env:"SESSIONS_KEY_PREFIX,default=editor-mcp:sessions:" yaml:"key_prefix"`
	MaxLen    int64         `env:"SESSIONS_STREAM_MAXLEN,default=1024" yaml:"stream_maxlen"`
	StreamTTL time.Duration `env:"SESSIONS_STREAM_TTL,default=1h" yaml:"stream_ttl"`
}

// Host keeps one Redis stream per session.
type Host struct {
	client *redis.Client
	cfg    Config
}

// New connects to Redis and fails fast when it is unreachable.
func New(cfg Config) (*Host, error) {
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = defaultAddr
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultPrefix
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	return &Host{client: client, cfg: cfg}, nil
}

func NewFromEnv() (*Host, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode redis host config: %w", err)
	}
	return New(cfg)
}

func (h *Host) Close() error { return h.client.Close() }

func (h *Host) key(sessionID string) string { return h.cfg.KeyPrefix + "stream:" + sessionID }

func (h *Host) retiredKey(sessionID string) string { return h.cfg.KeyPrefix + "retired:" + sessionID }

func (h *Host) PublishSession(ctx context.Context, sessionID string, data []byte) (string, error) {
	key := h.key(sessionID)
	id, err := publishScript.Run(ctx, h.client,
		[]string{key, h.retiredKey(sessionID)},
		h.cfg.MaxLen, payloadField, data, h.cfg.StreamTTL.Milliseconds(),
	).Text()
	switch {
	case errors.Is(err, redis.Nil):
		return "", fmt.Errorf("%w: %s", sessions.ErrSessionClosed, sessionID)
	case err != nil:
		return "", fmt.Errorf("xadd %s: %w", key, err)
	}
	return id, nil
}

func (h *Host) SubscribeSession(ctx context.Context, sessionID string, lastEventID string, handler sessions.MessageHandlerFunction) error {
	key := h.key(sessionID)
	retired, err := h.client.Exists(ctx, h.retiredKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("exists %s: %w", h.retiredKey(sessionID), err)
	}
	if retired > 0 {
		return fmt.Errorf("%w: %s", sessions.ErrSessionClosed, sessionID)
	}
	cursor, err := h.resolveCursor(ctx, key, lastEventID)
	if err != nil {
		return err
	}

	for ctx.Err() == nil {
		streams, err := h.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{key, cursor},
			Count:   readBatch,
			Block:   readBlock,
		}).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			return fmt.Errorf("xread %s: %w", key, err)
		}
		for _, s := range streams {
			for _, m := range s.Messages {
				cursor = m.ID
				if err := handler(ctx, m.ID, payloadOf(m)); err != nil {
					return err
				}
			}
		}
	}
	return ctx.Err()
}

// resolveCursor returns the id XREAD continues after. A live subscription
// starts after the current tail; a resume cursor must still be retained.
func (h *Host) resolveCursor(ctx context.Context, key, lastEventID string) (string, error) {
	if lastEventID != "" {
		msgs, err := h.client.XRange(ctx, key, lastEventID, lastEventID).Result()
		if err != nil {
			return "", fmt.Errorf("xrange %s: %w", key, err)
		}
		if len(msgs) == 0 {
			return "", fmt.Errorf("%w: %s", sessions.ErrUnknownEventID, lastEventID)
		}
		return lastEventID, nil
	}
	tail, err := h.client.XRevRangeN(ctx, key, "+", "-", 1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("xrevrange %s: %w", key, err)
	}
	if len(tail) == 0 {
		return "0-0", nil
	}
	return tail[0].ID, nil
}

func payloadOf(m redis.XMessage) []byte {
	switch v := m.Values[payloadField].(type) {
	case string:
		return []byte(v)
	case []byte:
		return v
	default:
		return []byte(fmt.Sprint(v))
	}
}

// CleanupSession deletes the stream and retires the id even when ctx is
// already cancelled, since it runs while the owning request unwinds.
func (h *Host) CleanupSession(ctx context.Context, sessionID string) error {
	ctx = context.WithoutCancel(ctx)
	ttl := h.cfg.StreamTTL
	if ttl <= 0 {
		ttl = retireFor
	}
	pipe := h.client.TxPipeline()
	pipe.Set(ctx, h.retiredKey(sessionID), 1, ttl)
	pipe.Del(ctx, h.key(sessionID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cleanup %s: %w", sessionID, err)
	}
	return nil
}

var _ sessions.SessionHost = (*Host)(nil)
