package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"chainscore/pkg/message"
)

var (
	logLevel  = flag.String("log-level", "info", "日志级别 (debug, info, warn, error)")
	logFormat = flag.String("log-format", "json", "日志格式 (json or text)")
)

// TelemetryCollector 消费遥测样本流并写入 InfluxDB
type TelemetryCollector struct {
	redisClient     *redis.Client
	influxClient    influxdb2.Client
	writeAPI        api.WriteAPI
	consumerGroup   string
	consumerName    string
	stream          string
	logger          *logrus.Logger
	ctx             context.Context
	cancel          context.CancelFunc
	processedMsgIDs map[string]bool // 按消息ID幂等处理
}

// Config 收集器配置
type Config struct {
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	InfluxDB struct {
		URL    string `mapstructure:"url"`
		Token  string `mapstructure:"token"`
		Org    string `mapstructure:"org"`
		Bucket string `mapstructure:"bucket"`
	} `mapstructure:"influxdb"`

	Consumer struct {
		Group string `mapstructure:"group"`
		Name  string `mapstructure:"name"`
	} `mapstructure:"consumer"`
}

func main() {
	flag.Parse()

	logger := logrus.New()
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal("Invalid log level")
	}
	logger.SetLevel(level)

	switch *logFormat {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{})
	default:
		logger.Fatal("Invalid log format")
	}

	config, err := loadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	collector, err := NewTelemetryCollector(config, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create telemetry collector")
	}
	defer collector.Close()

	if err := collector.Start(); err != nil {
		logger.WithError(err).Fatal("Failed to start collector")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down telemetry collector...")
	collector.Stop()
}

func loadConfig() (*Config, error) {
	viper.SetConfigName("telemetry_collector")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("influxdb.url", "http://localhost:8086")
	viper.SetDefault("influxdb.token", "")
	viper.SetDefault("influxdb.org", "chainscore")
	viper.SetDefault("influxdb.bucket", "telemetry")
	viper.SetDefault("consumer.group", "telemetry_collectors")
	viper.SetDefault("consumer.name", "telemetry_collector_1")

	viper.SetEnvPrefix("TELEMETRY_COLLECTOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// NewTelemetryCollector 创建收集器并验证 Redis 与 InfluxDB 连接
func NewTelemetryCollector(config *Config, logger *logrus.Logger) (*TelemetryCollector, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	influxClient := influxdb2.NewClient(config.InfluxDB.URL, config.InfluxDB.Token)

	health, err := influxClient.Health(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}
	if health.Status != "pass" {
		return nil, fmt.Errorf("InfluxDB health check failed: %s", health.Status)
	}

	writeAPI := influxClient.WriteAPI(config.InfluxDB.Org, config.InfluxDB.Bucket)

	runCtx, runCancel := context.WithCancel(context.Background())

	return &TelemetryCollector{
		redisClient:     redisClient,
		influxClient:    influxClient,
		writeAPI:        writeAPI,
		consumerGroup:   config.Consumer.Group,
		consumerName:    config.Consumer.Name,
		stream:          message.StreamName("telemetry_sample"),
		logger:          logger,
		ctx:             runCtx,
		cancel:          runCancel,
		processedMsgIDs: make(map[string]bool),
	}, nil
}

// Start 创建消费组并启动消费循环
func (c *TelemetryCollector) Start() error {
	c.logger.Info("Starting telemetry collector...")

	err := c.redisClient.XGroupCreateMkStream(c.ctx, c.stream, c.consumerGroup, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group for stream %s: %w", c.stream, err)
	}

	go c.consumeMessages()
	go c.handleWriteErrors()

	c.logger.WithFields(logrus.Fields{
		"consumer_group": c.consumerGroup,
		"consumer_name":  c.consumerName,
		"stream":         c.stream,
	}).Info("Telemetry collector started successfully")

	return nil
}

// Stop 停止消费并刷新挂起的写入
func (c *TelemetryCollector) Stop() {
	c.logger.Info("Stopping telemetry collector...")
	c.cancel()
	c.writeAPI.Flush()
	c.logger.Info("Telemetry collector stopped")
}

// Close 关闭底层连接
func (c *TelemetryCollector) Close() {
	if c.redisClient != nil {
		c.redisClient.Close()
	}
	if c.influxClient != nil {
		c.influxClient.Close()
	}
}

func (c *TelemetryCollector) consumeMessages() {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			result, err := c.redisClient.XReadGroup(c.ctx, &redis.XReadGroupArgs{
				Group:    c.consumerGroup,
				Consumer: c.consumerName,
				Streams:  []string{c.stream, ">"},
				Count:    10,
				Block:    time.Second,
			}).Result()

			if err != nil {
				if err == redis.Nil || c.ctx.Err() != nil {
					continue
				}
				c.logger.WithError(err).Warn("Failed to read from stream")
				time.Sleep(time.Second)
				continue
			}

			for _, stream := range result {
				for _, msg := range stream.Messages {
					c.processMessage(stream.Stream, msg)
				}
			}
		}
	}
}

// processMessage 验证信封并写入 InfluxDB，重复消息直接确认
func (c *TelemetryCollector) processMessage(stream string, msg redis.XMessage) {
	raw, ok := msg.Values["message"].(string)
	if !ok {
		c.logger.WithField("msg_id", msg.ID).Warn("Message missing payload field, skipping")
		c.ack(stream, msg.ID)
		return
	}

	envelope, err := message.FromJSON(raw)
	if err != nil {
		c.logger.WithError(err).WithField("msg_id", msg.ID).Warn("Malformed envelope, skipping")
		c.ack(stream, msg.ID)
		return
	}

	if err := envelope.Validate(); err != nil {
		c.logger.WithError(err).WithField("msg_id", msg.ID).Warn("Envelope failed validation, skipping")
		c.ack(stream, msg.ID)
		return
	}

	if c.processedMsgIDs[envelope.Header.MessageID] {
		c.ack(stream, msg.ID)
		return
	}

	var sample message.TelemetryPayload
	if err := json.Unmarshal(envelope.Payload, &sample); err != nil {
		c.logger.WithError(err).WithField("msg_id", msg.ID).Warn("Malformed telemetry payload, skipping")
		c.ack(stream, msg.ID)
		return
	}

	point := influxdb2.NewPointWithMeasurement("request_sample").
		AddTag("service", sample.Service).
		AddTag("operation", sample.Operation).
		AddTag("producer", envelope.Header.Producer).
		AddTag("env", envelope.Metadata.Env).
		AddField("latency_ms", sample.LatencyMs).
		AddField("success", sample.Success).
		SetTime(time.Unix(sample.Timestamp, 0))
	if sample.ErrorCode != "" {
		point.AddTag("error_code", sample.ErrorCode)
	}

	c.writeAPI.WritePoint(point)
	c.processedMsgIDs[envelope.Header.MessageID] = true

	// 幂等表只为最近的消息去重，防止无界增长
	if len(c.processedMsgIDs) > 100000 {
		c.processedMsgIDs = make(map[string]bool)
	}

	c.ack(stream, msg.ID)
}

func (c *TelemetryCollector) ack(stream, msgID string) {
	if err := c.redisClient.XAck(c.ctx, stream, c.consumerGroup, msgID).Err(); err != nil && c.ctx.Err() == nil {
		c.logger.WithError(err).WithField("msg_id", msgID).Warn("Failed to ack message")
	}
}

func (c *TelemetryCollector) handleWriteErrors() {
	errorsCh := c.writeAPI.Errors()
	for {
		select {
		case <-c.ctx.Done():
			return
		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			c.logger.WithError(err).Warn("InfluxDB write failed")
		}
	}
}
