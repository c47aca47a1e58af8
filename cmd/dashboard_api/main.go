package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"chainscore/pkg/client"
	"chainscore/pkg/config"
	"chainscore/pkg/executor"
	"chainscore/pkg/logger"
	"chainscore/pkg/telemetry"
	"chainscore/pkg/validate"
)

var (
	logLevel   = flag.String("log-level", "info", "日志级别 (debug, info, warn, error)")
	logFormat  = flag.String("log-format", "text", "日志格式 (json or text)")
	configPath = flag.String("config", "", "配置文件路径 (例如 ./config/dashboard_api.yaml)")
)

// Config 服务配置
type Config struct {
	Server struct {
		Port string `mapstructure:"port"`
		Mode string `mapstructure:"mode"` // debug, release, test
	} `mapstructure:"server"`

	Services struct {
		ConfigURL string            `mapstructure:"config_url"`
		BaseURLs  map[string]string `mapstructure:"base_urls"`
	} `mapstructure:"services"`

	Push struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"push"`

	Redis struct {
		Enabled  bool   `mapstructure:"enabled"`
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
}

func main() {
	flag.Parse()

	logger.Init(logger.Config{Level: *logLevel, Format: *logFormat})
	log := logger.WithComponent("DashboardAPI")

	cfg, err := loadConfig()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	clientCfg := config.Default()
	if cfg.Services.ConfigURL != "" {
		clientCfg.Services.ConfigURL = cfg.Services.ConfigURL
	}
	if len(cfg.Services.BaseURLs) > 0 {
		clientCfg.Services.BaseURLs = cfg.Services.BaseURLs
	}
	if cfg.Push.URL != "" {
		clientCfg.Push.URL = cfg.Push.URL
	}

	var opts []client.Option
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.WithError(err).Warn("Redis unreachable, telemetry reporting disabled")
		} else {
			opts = append(opts, client.WithReporter(telemetry.NewRedisReporter(redisClient, "dashboard_api")))
		}
		cancel()
	}

	dataClient, err := client.New(context.Background(), clientCfg, opts...)
	if err != nil {
		log.WithError(err).Fatal("Failed to create data client")
	}
	defer dataClient.Close()

	scheduler := startSummaryJob(dataClient, log)
	defer scheduler.Stop()

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, dataClient)

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Infof("Dashboard API listening on :%s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down dashboard API...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Graceful shutdown failed")
	}
}

func loadConfig() (*Config, error) {
	if *configPath != "" {
		viper.SetConfigFile(*configPath)
	} else {
		viper.SetConfigName("dashboard_api")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	}

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")

	viper.SetEnvPrefix("DASHBOARD_API")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// startSummaryJob 启动每分钟一次的运行摘要日志任务
func startSummaryJob(dataClient *client.Client, log *logrus.Entry) *cron.Cron {
	printer := message.NewPrinter(language.English)
	scheduler := cron.New()

	_, err := scheduler.AddFunc("@every 1m", func() {
		stats := dataClient.Stats("", "")
		status := dataClient.Health()
		log.WithFields(logrus.Fields{
			"healthy":        status.IsHealthy,
			"degraded":       status.DegradedServices,
			"requests":       printer.Sprintf("%d", stats.TotalRequests),
			"success_rate":   fmt.Sprintf("%.2f", stats.SuccessRate),
			"avg_latency":    stats.AverageLatency.String(),
			"throughput_qps": fmt.Sprintf("%.3f", stats.Throughput),
		}).Info("Runtime summary")
	})
	if err != nil {
		log.WithError(err).Warn("Failed to schedule summary job")
	}

	scheduler.Start()
	return scheduler
}

func registerRoutes(router *gin.Engine, dataClient *client.Client) {
	api := router.Group("/api/v1")

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, dataClient.Health())
	})

	api.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, dataClient.Stats(c.Query("service"), c.Query("operation")))
	})

	api.GET("/score/:address", func(c *gin.Context) {
		score, err := dataClient.GetCreditScore(c.Request.Context(), c.Param("address"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, score)
	})

	api.GET("/profile/:address", func(c *gin.Context) {
		profile, err := dataClient.GetProfile(c.Request.Context(), c.Param("address"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, profile)
	})

	api.GET("/prices", func(c *gin.Context) {
		symbols := strings.Split(c.Query("symbols"), ",")
		prices, err := dataClient.GetBatchPrices(c.Request.Context(), symbols)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, prices)
	})

	api.GET("/behavior/:address", func(c *gin.Context) {
		analysis, err := dataClient.GetBehaviorAnalysis(c.Request.Context(), c.Param("address"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, analysis)
	})

	api.GET("/tx/:hash", func(c *gin.Context) {
		tx, err := dataClient.GetTransaction(c.Request.Context(), c.Param("hash"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, tx)
	})
}

// writeError 把数据访问层的类型化错误映射为 HTTP 响应
func writeError(c *gin.Context, err error) {
	var apiErr *executor.APIError
	if errors.As(err, &apiErr) {
		status := http.StatusBadGateway
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			status = apiErr.StatusCode
		}
		c.JSON(status, gin.H{"error": string(apiErr.Code), "message": apiErr.UserMessage})
		return
	}

	var validationErr *validate.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "VALIDATION_FAILED", "message": validationErr.Error()})
		return
	}

	var syntheticErr *validate.SyntheticDataError
	if errors.As(err, &syntheticErr) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "SYNTHETIC_DATA", "message": syntheticErr.Error()})
		return
	}

	var unavailableErr *validate.SourceUnavailableError
	if errors.As(err, &unavailableErr) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "SOURCE_UNAVAILABLE", "message": unavailableErr.Error()})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL", "message": "unexpected error"})
}
