package messaging

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"speed-service/internal/logger"
	"speed-service/internal/types"

	"github.com/redis/go-redis/v9"
)

// Redis keys and channels
const (
	SpeedHash       = "speed"
	SpeedChannel    = "speed"
	SensorChannel   = "speed-sensors"
	EventCommandKey = "speed:event"
	SpeedStream     = "events:speed"
)

type Callbacks struct {
	EventCallback func(int) error // raw sensor event code
}

type RedisClient struct {
	client    *redis.Client
	callbacks Callbacks
	logger    *logger.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewRedisClient(addr string, l *logger.Logger, callbacks Callbacks) *RedisClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   0,
		}),
		callbacks: callbacks,
		logger:    l,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (r *RedisClient) SetCallbacks(callbacks Callbacks) {
	r.callbacks = callbacks
}

func (r *RedisClient) Connect() error {
	r.logger.Infof("Attempting to connect to Redis at %s", r.client.Options().Addr)

	if err := r.client.Ping(r.ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	r.logger.Infof("Successfully connected to Redis")
	return nil
}

// StartListening starts the sensor event listeners. Events arrive either
// published on the sensor channel or pushed onto the event command list.
func (r *RedisClient) StartListening() error {
	r.logger.Infof("Starting Redis listeners")

	pubsub := r.client.Subscribe(r.ctx, SensorChannel)
	r.logger.Infof("Subscribed to Redis channel: %s", SensorChannel)

	r.wg.Add(2)
	go r.redisListener(pubsub)
	go r.listCommandListener(EventCommandKey, r.handleEventPayload)

	return nil
}

func (r *RedisClient) listCommandListener(key string, handler func(string) error) {
	defer r.wg.Done()
	r.logger.Infof("Starting list command listener for %s", key)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Infof("Context cancelled, exiting %s listener", key)
			return
		default:
			// BRPOP with a short timeout so cancellation is noticed
			result, err := r.client.BRPop(r.ctx, 5*time.Second, key).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				if errors.Is(err, context.Canceled) {
					r.logger.Infof("Context cancelled, exiting %s listener", key)
					return
				}
				r.logger.Warnf("Error reading from %s list: %v", key, err)
				time.Sleep(time.Second)
				continue
			}

			if len(result) >= 2 { // BRPOP returns [key, value]
				value := result[1]
				r.logger.Debugf("Received command from %s: %s", key, value)
				if err := handler(value); err != nil {
					r.logger.Warnf("Error handling %s command: %v", key, err)
				}
			}
		}
	}
}

func (r *RedisClient) redisListener(pubsub *redis.PubSub) {
	defer r.wg.Done()
	defer pubsub.Close()

	r.logger.Infof("Starting Redis message listener")
	channel := pubsub.Channel()

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Infof("Context cancelled, exiting listener")
			return
		case msg, ok := <-channel:
			if !ok || msg == nil {
				r.logger.Errorf("Redis subscription closed, sensor channel no longer served")
				return
			}

			r.logger.Debugf("Received Redis message: channel=%s payload=%s", msg.Channel, msg.Payload)

			if msg.Channel == SensorChannel {
				if err := r.handleEventPayload(msg.Payload); err != nil {
					r.logger.Warnf("Error handling sensor message: %v", err)
				}
			}
		}
	}
}

// handleEventPayload parses an integer event code and forwards it.
func (r *RedisClient) handleEventPayload(value string) error {
	if r.callbacks.EventCallback == nil {
		return nil
	}
	code, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid event code %q: %w", value, err)
	}
	return r.callbacks.EventCallback(code)
}

func formatActiveEvents(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

// PublishSpeed atomically stores the controller snapshot and notifies subscribers.
func (r *RedisClient) PublishSpeed(s types.Snapshot) error {
	r.logger.Debugf("Publishing speed: %d (mode=%s)", s.Speed, s.Mode)

	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, SpeedHash, map[string]interface{}{
		"speed":           s.Speed,
		"mode":            s.Mode,
		"state":           string(s.State),
		"active-events":   formatActiveEvents(s.ActiveEvents),
		"turbo-used":      strconv.FormatBool(s.TurboUsed),
		"session":         s.Session,
		"speed:timestamp": s.Timestamp.Format(time.RFC3339),
	})
	pipe.Publish(r.ctx, SpeedChannel, "speed")
	if _, err := pipe.Exec(r.ctx); err != nil {
		r.logger.Warnf("Failed to publish speed: %v", err)
		return err
	}
	return nil
}

// ReportTurboUsed appends the one-shot turbo activation to the event stream.
func (r *RedisClient) ReportTurboUsed(session string, speed int) error {
	r.logger.Infof("Reporting emergency turbo: session=%s speed=%d", session, speed)

	pipe := r.client.Pipeline()
	pipe.XAdd(r.ctx, &redis.XAddArgs{
		Stream: SpeedStream,
		MaxLen: 1000,
		Values: map[string]interface{}{
			"group":   "speed",
			"event":   "emergency-turbo",
			"session": session,
			"speed":   speed,
			"ts":      time.Now().Unix(),
		},
	})
	pipe.Publish(r.ctx, SpeedChannel, "turbo")

	if _, err := pipe.Exec(r.ctx); err != nil {
		r.logger.Warnf("Failed to report emergency turbo: %v", err)
		return err
	}
	return nil
}

func (r *RedisClient) Close() error {
	r.logger.Infof("Closing Redis client")
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Infof("All Redis goroutines finished")
	case <-time.After(5 * time.Second):
		r.logger.Warnf("Timeout waiting for Redis goroutines to finish")
	}

	return r.client.Close()
}
