package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fleettrack/internal/config"
	"fleettrack/internal/domain"
)

// RedisStore mirrors live tracker state for dashboards that read outside
// this process, resolves WebSocket auth tokens and relays alerts to
// out-of-process consumers. The in-memory registry stays authoritative;
// mirror failures never fail ingestion.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// MirrorState writes the tracker's live snapshot as a hash with a short
// TTL and updates the fleet GEO set, in one pipeline round trip.
func (r *RedisStore) MirrorState(ctx context.Context, snap domain.TrackerSnapshot) error {
	stateData := map[string]interface{}{
		"tracker_id":  snap.TrackerID,
		"lat":         snap.Lat,
		"lng":         snap.Lng,
		"speed_kmh":   snap.SpeedKmh,
		"heading_deg": snap.HeadingDeg,
		"online":      snap.Online,
		"last_seen":   snap.LastSeen.Unix(),
		"timestamp":   snap.Timestamp.Unix(),
	}

	stateKey := fmt.Sprintf("tracker:%s:state", snap.TrackerID)

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, stateKey, stateData)
	pipe.Expire(ctx, stateKey, 30*time.Second)
	pipe.GeoAdd(ctx, "fleet:geo", &redis.GeoLocation{
		Name:      snap.TrackerID,
		Longitude: snap.Lng,
		Latitude:  snap.Lat,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// GetToken resolves a connection token to the identity it was issued for.
// Empty identity means the token is unknown.
func (r *RedisStore) GetToken(ctx context.Context, token string) (string, error) {
	key := fmt.Sprintf("ws:auth:%s", token)
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get token failed: %w", err)
	}
	return val, nil
}

// PublishAlert relays an alert to the fleet alerts channel for
// out-of-process consumers (notification workers, dashboards).
func (r *RedisStore) PublishAlert(ctx context.Context, a domain.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	return r.client.Publish(ctx, "fleet:alerts", payload).Err()
}
