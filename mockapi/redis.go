package mockapi

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"taskboard/domain"
)

// RedisStorage keeps each user's tasks in a hash keyed by task id.
type RedisStorage struct {
	client *redis.Client
}

// NewRedisStorage creates a storage backed by client.
func NewRedisStorage(client *redis.Client) *RedisStorage {
	return &RedisStorage{client: client}
}

// ParseRedisOptions accepts a redis:// URL or an Azure style
// "host:port,password=...,ssl=true" connection string.
func ParseRedisOptions(conn string) (*redis.Options, error) {
	if conn == "" {
		return nil, fmt.Errorf("empty redis connection string")
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(strings.TrimSpace(kv[1]), "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}

func tasksKey(userID string) string {
	return "tasks:" + userID
}

func (r *RedisStorage) ListTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	raw, err := r.client.HGetAll(ctx, tasksKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	tasks := make([]domain.Task, 0, len(raw))
	for id, data := range raw {
		var t domain.Task
		if err := sonic.ConfigStd.UnmarshalFromString(data, &t); err != nil {
			return nil, fmt.Errorf("decode task %s: %w", id, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (r *RedisStorage) GetTask(ctx context.Context, userID, taskID string) (domain.Task, error) {
	data, err := r.client.HGet(ctx, tasksKey(userID), taskID).Bytes()
	if err == redis.Nil {
		return domain.Task{}, ErrTaskNotFound
	}
	if err != nil {
		return domain.Task{}, err
	}
	var t domain.Task
	if err := sonic.ConfigStd.Unmarshal(data, &t); err != nil {
		return domain.Task{}, fmt.Errorf("decode task %s: %w", taskID, err)
	}
	return t, nil
}

func (r *RedisStorage) PutTask(ctx context.Context, task domain.Task) error {
	data, err := sonic.ConfigStd.Marshal(task)
	if err != nil {
		return err
	}
	return r.client.HSet(ctx, tasksKey(task.UserID), task.ID, data).Err()
}

func (r *RedisStorage) DeleteTask(ctx context.Context, userID, taskID string) error {
	n, err := r.client.HDel(ctx, tasksKey(userID), taskID).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *RedisStorage) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
