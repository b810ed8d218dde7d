package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	redisKeyPrefix      = "doc:"
	redisUpdateAttempts = 3
)

// RedisBackend shares documents between devices. Every change is announced
// on a pub/sub channel so all connected processes see it. A change that
// was stored but could not be announced is logged, handed to local
// subscribers and not reported as a failed write.
type RedisBackend struct {
	log     *zap.Logger
	client  *redis.Client
	channel string
	pubsub  *redis.PubSub
	mu      sync.Mutex
	broker  *broker
	wg      sync.WaitGroup
}

type redisChange struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value,omitempty"`
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	Buffer   int
	Logger   *zap.Logger
}

func OpenRedis(ctx context.Context, opts RedisOptions) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	b, err := NewRedisBackend(ctx, client, opts.Channel, opts.Buffer)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if opts.Logger != nil {
		b.log = opts.Logger
	}
	return b, nil
}

func NewRedisBackend(ctx context.Context, client *redis.Client, channel string, buffer int) (*RedisBackend, error) {
	if channel == "" {
		channel = "mooncove:changes"
	}
	ps := client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}
	r := &RedisBackend{
		log:     zap.NewNop(),
		client:  client,
		channel: channel,
		pubsub:  ps,
		broker:  newBroker(buffer),
	}
	r.wg.Add(1)
	go r.listen(ps.Channel())
	return r, nil
}

func (r *RedisBackend) listen(msgs <-chan *redis.Message) {
	defer r.wg.Done()
	for msg := range msgs {
		var change redisChange
		if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
			continue
		}
		r.mu.Lock()
		r.broker.publish(Snapshot{Path: change.Path, Value: change.Value})
		r.mu.Unlock()
	}
}

func (r *RedisBackend) Read(ctx context.Context, path string, out any) error {
	clean, err := CleanPath(path)
	if err != nil {
		return err
	}
	raw, err := r.client.Get(ctx, redisKeyPrefix+clean).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("read %s: %w", clean, err)
	}
	return decode(raw, out)
}

func (r *RedisBackend) Write(ctx context.Context, path string, value any) error {
	clean, err := CleanPath(path)
	if err != nil {
		return err
	}
	raw, err := encode(value)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, redisKeyPrefix+clean, []byte(raw), 0).Err(); err != nil {
		return fmt.Errorf("write %s: %w", clean, err)
	}
	r.announce(ctx, clean, raw)
	return nil
}

func (r *RedisBackend) Update(ctx context.Context, path string, fields map[string]any) error {
	clean, err := CleanPath(path)
	if err != nil {
		return err
	}
	key := redisKeyPrefix + clean
	var merged json.RawMessage
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		merged, err = mergeFields(current, fields)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, []byte(merged), 0)
			return nil
		})
		return err
	}
	for attempt := 0; attempt < redisUpdateAttempts; attempt++ {
		err = r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("update %s: %w", clean, err)
		}
		r.announce(ctx, clean, merged)
		return nil
	}
	return fmt.Errorf("update %s: %w", clean, err)
}

func (r *RedisBackend) Delete(ctx context.Context, path string) error {
	clean, err := CleanPath(path)
	if err != nil {
		return err
	}
	keys, err := r.keysUnder(ctx, clean)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return ErrNotFound
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", clean, err)
	}
	for _, key := range keys {
		r.announce(ctx, strings.TrimPrefix(key, redisKeyPrefix), nil)
	}
	return nil
}

func (r *RedisBackend) List(ctx context.Context, prefix string) (map[string]json.RawMessage, error) {
	clean, err := CleanPath(prefix)
	if err != nil {
		return nil, err
	}
	keys, err := r.keysUnder(ctx, clean)
	if err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", clean, err)
	}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		out[strings.TrimPrefix(keys[i], redisKeyPrefix)] = json.RawMessage(s)
	}
	return out, nil
}

func (r *RedisBackend) Subscribe(ctx context.Context, path string) (*Subscription, error) {
	clean, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	docs, err := r.List(ctx, clean)
	if err != nil {
		return nil, err
	}
	return r.broker.add(ctx, clean, snapshotsOf(docs))
}

func (r *RedisBackend) Close() error {
	r.broker.close()
	err := r.pubsub.Close()
	r.wg.Wait()
	if cerr := r.client.Close(); err == nil {
		err = cerr
	}
	return err
}

// announce publishes a stored change. When the publish fails only this
// process hears about it.
func (r *RedisBackend) announce(ctx context.Context, path string, raw json.RawMessage) {
	payload, err := json.Marshal(redisChange{Path: path, Value: raw})
	if err == nil {
		err = r.client.Publish(ctx, r.channel, payload).Err()
	}
	if err == nil {
		return
	}
	r.log.Warn("announce change failed", zap.String("path", path), zap.Error(err))
	r.mu.Lock()
	r.broker.publish(Snapshot{Path: path, Value: raw})
	r.mu.Unlock()
}

// keysUnder scans for the document key at root and every key below it.
func (r *RedisBackend) keysUnder(ctx context.Context, root string) ([]string, error) {
	exact := redisKeyPrefix + root
	keys := make([]string, 0)
	n, err := r.client.Exists(ctx, exact).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}
	if n > 0 {
		keys = append(keys, exact)
	}
	// SCAN may return a key more than once
	seen := map[string]struct{}{exact: {}}
	iter := r.client.Scan(ctx, 0, escapeGlob(exact)+"/*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if under(strings.TrimPrefix(key, redisKeyPrefix), root) {
			keys = append(keys, key)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
