package serverstate

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const redisKey = "worldsrv:state"

// RedisStore persists server state in Redis so that restarts and external
// observers share one view of readiness.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore connects to the given Redis URL (or bare host:port) and
// initializes the state key to not_ready if it does not exist yet.
func NewRedisStore(addr string) (*RedisStore, error) {
	opts, err := parseRedisURL(addr)
	if err != nil {
		return nil, err
	}
	c := redis.NewUniversalClient(opts)
	ctx := context.Background()
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	b, _ := json.Marshal(State{Status: "not_ready"})
	if err := c.SetNX(ctx, redisKey, b, 0).Err(); err != nil {
		return nil, err
	}
	return &RedisStore{client: c}, nil
}

// parseRedisURL supports single-node, multi-host, and sentinel deployments.
// An addr without a scheme is treated as a plain host:port.
func parseRedisURL(addr string) (*redis.UniversalOptions, error) {
	if !strings.Contains(addr, "://") {
		return &redis.UniversalOptions{Addrs: []string{addr}}, nil
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, err
	}

	opts := &redis.UniversalOptions{Addrs: strings.Split(u.Host, ",")}
	if u.User != nil {
		opts.Username = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			opts.Password = pw
		}
	}

	db := func(s string) error {
		if s == "" {
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("redis: invalid db: %v", err)
		}
		opts.DB = n
		return nil
	}

	q := u.Query()
	switch u.Scheme {
	case "redis", "rediss":
		sel := strings.TrimPrefix(u.Path, "/")
		if sel == "" {
			sel = q.Get("db")
		}
		if err := db(sel); err != nil {
			return nil, err
		}
		if u.Scheme == "rediss" {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	case "redis-sentinel", "rediss-sentinel":
		opts.MasterName = strings.TrimPrefix(u.Path, "/")
		if err := db(q.Get("db")); err != nil {
			return nil, err
		}
		if v := q.Get("sentinel_username"); v != "" {
			opts.SentinelUsername = v
		}
		if v := q.Get("sentinel_password"); v != "" {
			opts.SentinelPassword = v
		}
		if u.Scheme == "rediss-sentinel" {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	default:
		return nil, fmt.Errorf("redis: invalid URL scheme: %s", u.Scheme)
	}
	return opts, nil
}

func (r *RedisStore) Load() State {
	b, err := r.client.Get(context.Background(), redisKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return State{Status: "not_ready"}
		}
		return State{Status: "unknown"}
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return State{Status: "unknown"}
	}
	return st
}

func (r *RedisStore) Store(s State) {
	b, err := json.Marshal(s)
	if err != nil {
		return
	}
	_ = r.client.Set(context.Background(), redisKey, b, 0).Err()
}
