/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TopicPrefix namespaces the redis channels used for show rooms.
const TopicPrefix = "petshow:"

func Topic(room string) string {
	return TopicPrefix + room
}

type RedisOptions struct {
	Addr     string
	Password string
	Room     string
}

// Redis is a Channel over redis pub/sub. Redis echoes a publisher's own
// frames back to it; callers already ignore their own announcements.
type Redis struct {
	client *redis.Client
	sub    *redis.PubSub
	topic  string

	mu      sync.Mutex
	handler Handler

	done chan struct{}
}

func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}

	r, err := subscribe(ctx, client, Topic(opts.Room))
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	return r, nil
}

func subscribe(ctx context.Context, client *redis.Client, topic string) (*Redis, error) {
	sub := client.Subscribe(ctx, topic)

	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	r := &Redis{
		client: client,
		sub:    sub,
		topic:  topic,
		done:   make(chan struct{}),
	}

	go r.pump(sub.Channel())

	return r, nil
}

func (r *Redis) pump(msgs <-chan *redis.Message) {
	defer close(r.done)

	for msg := range msgs {
		r.mu.Lock()
		h := r.handler
		r.mu.Unlock()

		if h != nil {
			h([]byte(msg.Payload))
		}
	}
}

func (r *Redis) Send(ctx context.Context, data []byte) error {
	select {
	case <-r.done:
		return ErrClosed
	default:
	}

	return r.client.Publish(ctx, r.topic, data).Err()
}

func (r *Redis) OnMessage(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handler = h
}

func (r *Redis) Close() error {
	err := r.sub.Close()
	<-r.done

	if cerr := r.client.Close(); err == nil {
		err = cerr
	}

	return err
}
