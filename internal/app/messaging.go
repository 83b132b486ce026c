package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nsqio/go-nsq"
	"github.com/segmentio/kafka-go"
	"github.com/shandysiswandi/queuetick/internal/pkg/config"
	"github.com/shandysiswandi/queuetick/internal/pkg/messaging"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

const pubsubScope = "https://www.googleapis.com/auth/pubsub"

// factoryOptions maps the messaging.* config keys onto driver configs.
func factoryOptions(ctx context.Context, cfg config.Config) (messaging.FactoryOptions, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.GetString("messaging.driver")))

	opts := messaging.FactoryOptions{
		NSQ: messaging.NSQConfig{
			ProducerAddr:         cfg.GetString("messaging.nsq.producer_addr"),
			ConsumerNSQDAddrs:    cfg.GetArray("messaging.nsq.consumer_nsqd_addrs"),
			ConsumerLookupdAddrs: cfg.GetArray("messaging.nsq.consumer_lookupd_addrs"),
			ProducerConfig: func() *nsq.Config {
				c := nsq.NewConfig()
				if v := cfg.GetSecond("messaging.nsq.producer_config.dial_timeout_seconds"); v > 0 {
					c.DialTimeout = v
				}
				if v := cfg.GetSecond("messaging.nsq.producer_config.write_timeout_seconds"); v > 0 {
					c.WriteTimeout = v
				}
				return c
			}(),
			ConsumerConfig: func() *nsq.Config {
				c := nsq.NewConfig()
				if v := cfg.GetInt("messaging.nsq.consumer_config.max_in_flight"); v > 0 {
					c.MaxInFlight = v
				}
				if v := cfg.GetUint16("messaging.nsq.consumer_config.max_attempts"); v > 0 {
					c.MaxAttempts = v
				}
				if v := cfg.GetSecond("messaging.nsq.consumer_config.lookupd_poll_interval_seconds"); v > 0 {
					c.LookupdPollInterval = v
				}
				if v := cfg.GetSecond("messaging.nsq.consumer_config.default_requeue_delay_seconds"); v > 0 {
					c.DefaultRequeueDelay = v
				}
				return c
			}(),
		},
		NATS: messaging.NATSConfig{
			URL: cfg.GetString("messaging.nats.url"),
			Options: []nats.Option{
				nats.Name(cfg.GetString("messaging.nats.name")),
				nats.MaxReconnects(orDefault(cfg.GetInt("messaging.nats.max_reconnects"), nats.DefaultMaxReconnect)),
				nats.Timeout(orDefault(cfg.GetSecond("messaging.nats.timeout_seconds"), nats.DefaultTimeout)),
				nats.ReconnectWait(orDefault(cfg.GetSecond("messaging.nats.reconnect_wait_seconds"), nats.DefaultReconnectWait)),
				nats.PingInterval(orDefault(cfg.GetSecond("messaging.nats.ping_interval_seconds"), nats.DefaultPingInterval)),
				nats.MaxPingsOutstanding(orDefault(cfg.GetInt("messaging.nats.max_pings_outstanding"), nats.DefaultMaxPingOut)),
				nats.RetryOnFailedConnect(cfg.GetBool("messaging.nats.retry_on_failed_connect")),
			},
		},
		Kafka: messaging.KafkaConfig{
			Brokers: cfg.GetArray("messaging.kafka.brokers"),
			Dialer: &kafka.Dialer{
				ClientID:  cfg.GetString("messaging.kafka.client_id"),
				Timeout:   orDefault(cfg.GetSecond("messaging.kafka.dial_timeout_seconds"), 10*time.Second),
				DualStack: true,
			},
		},
		PubSub: messaging.PubSubConfig{
			ProjectID: strings.TrimSpace(cfg.GetString("messaging.pubsub.project_id")),
		},
		AMQP: messaging.AMQPConfig{
			URL:      cfg.GetString("messaging.amqp.url"),
			Durable:  cfg.GetBool("messaging.amqp.durable"),
			Prefetch: cfg.GetInt("messaging.amqp.prefetch"),
		},
		Redis: messaging.RedisConfig{
			URL:         cfg.GetString("messaging.redis.url"),
			Prefix:      cfg.GetString("messaging.redis.prefix"),
			PollTimeout: cfg.GetSecond("messaging.redis.poll_timeout_seconds"),
			InstanceID:  strings.TrimSpace(cfg.GetString("messaging.redis.instance_id")),
		},
		MQTT: messaging.MQTTConfig{
			Broker:    cfg.GetString("messaging.mqtt.broker"),
			ClientID:  cfg.GetString("messaging.mqtt.client_id"),
			Username:  cfg.GetString("messaging.mqtt.username"),
			Password:  cfg.GetString("messaging.mqtt.password"),
			QoS:       byte(cfg.GetUint("messaging.mqtt.qos")),
			KeepAlive: cfg.GetSecond("messaging.mqtt.keep_alive_seconds"),
		},
		Memory: messaging.MemoryConfig{
			QueueSize: cfg.GetInt("messaging.memory.queue_size"),
		},
	}

	if driver == messaging.DriverGooglePubSub {
		clientOpts, err := pubsubClientOptions(ctx, cfg)
		if err != nil {
			return messaging.FactoryOptions{}, err
		}
		opts.PubSub.ClientOptions = clientOpts
	}

	return opts, nil
}

func pubsubClientOptions(ctx context.Context, cfg config.Config) ([]option.ClientOption, error) {
	var opts []option.ClientOption

	if v := strings.TrimSpace(cfg.GetString("messaging.pubsub.endpoint")); v != "" {
		opts = append(opts, option.WithEndpoint(v))
	}
	if cfg.GetBool("messaging.pubsub.without_auth") {
		return append(opts, option.WithoutAuthentication()), nil
	}

	if v := strings.TrimSpace(cfg.GetString("messaging.pubsub.credentials_file")); v != "" {
		// #nosec G304 -- path is from trusted config file.
		credsJSON, err := os.ReadFile(v)
		if err != nil {
			return nil, fmt.Errorf("read pubsub credentials file: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, credsJSON, pubsubScope)
		if err != nil {
			return nil, fmt.Errorf("parse pubsub credentials file: %w", err)
		}
		opts = append(opts, option.WithCredentials(creds))
	}

	return opts, nil
}

func retryConfig(cfg config.Config) messaging.RetryConfig {
	rc := messaging.DefaultRetryConfig
	if v := cfg.GetInt("messaging.retry.max_attempts"); v > 0 {
		rc.MaxAttempts = v
	}
	if v := cfg.GetInt64("messaging.retry.base_delay_ms"); v > 0 {
		rc.BaseDelay = time.Duration(v) * time.Millisecond
	}
	if v := cfg.GetInt64("messaging.retry.max_delay_ms"); v > 0 {
		rc.MaxDelay = time.Duration(v) * time.Millisecond
	}
	return rc
}

func orDefault[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}
