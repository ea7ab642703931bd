/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5001"
)

const (
	BackoffConstant    = "constant"
	BackoffExponential = "exponential"
)

// Default cycle schedules. The dequeue schedule is a safety net behind the enqueue wake-up.
const (
	ScheduleOff                 = "off"
	DefaultDequeueSchedule      = "@every 1m"
	DefaultCleanupSchedule      = "@hourly"
	DefaultRequeueStaleSchedule = "@every 5m"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"PAYQ_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"PAYQ_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"PAYQ_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"PAYQ_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"PAYQ_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"PAYQ_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"PAYQ_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"PAYQ_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"PAYQ_REDIS_SKIP_TLS_VERIFY"`
}

type BackoffConfig struct {
	Policy            string `json:"policy" envconfig:"PAYQ_QUEUE_BACKOFF_POLICY"`
	InitialIntervalMs int    `json:"initial_interval_ms" envconfig:"PAYQ_QUEUE_BACKOFF_INITIAL_INTERVAL_MS"`
	MaxIntervalMs     int    `json:"max_interval_ms" envconfig:"PAYQ_QUEUE_BACKOFF_MAX_INTERVAL_MS"`
}

// QueueConfig controls how the payment queue is drained.
type QueueConfig struct {
	BatchSize            int           `json:"batch_size" envconfig:"PAYQ_QUEUE_BATCH_SIZE"`
	MaxSendAttempts      int           `json:"max_send_attempts" envconfig:"PAYQ_QUEUE_MAX_SEND_ATTEMPTS"`
	MaxRetries           int           `json:"max_retries" envconfig:"PAYQ_QUEUE_MAX_RETRIES"`
	MaxConcurrentSends   int           `json:"max_concurrent_sends" envconfig:"PAYQ_QUEUE_MAX_CONCURRENT_SENDS"`
	RetentionSeconds     int           `json:"retention_seconds" envconfig:"PAYQ_QUEUE_RETENTION_SECONDS"`
	StaleThresholdSec    int           `json:"stale_threshold_sec" envconfig:"PAYQ_QUEUE_STALE_THRESHOLD_SEC"`
	StaleRecoveryEnabled bool          `json:"stale_recovery_enabled" envconfig:"PAYQ_QUEUE_STALE_RECOVERY_ENABLED"`
	Backoff              BackoffConfig `json:"backoff"`
	MaintenanceQueue     string        `json:"maintenance_queue" envconfig:"PAYQ_QUEUE_MAINTENANCE_QUEUE"`
	WebhookQueue         string        `json:"webhook_queue" envconfig:"PAYQ_QUEUE_WEBHOOK_QUEUE"`
	MonitoringPort       string        `json:"monitoring_port" envconfig:"PAYQ_QUEUE_MONITORING_PORT"`
}

// ProcessorConfig holds the payment processor credentials and endpoints.
type ProcessorConfig struct {
	SecretKey               string `json:"secret_key" envconfig:"PAYQ_PROCESSOR_SECRET_KEY"`
	BaseURL                 string `json:"base_url" envconfig:"PAYQ_PROCESSOR_BASE_URL"`
	APIVersion              string `json:"api_version" envconfig:"PAYQ_PROCESSOR_API_VERSION"`
	FinancialAccountID      string `json:"financial_account_id" envconfig:"PAYQ_PROCESSOR_FINANCIAL_ACCOUNT_ID"`
	WebhookSecret           string `json:"webhook_secret" envconfig:"PAYQ_PROCESSOR_WEBHOOK_SECRET"`
	WebhookToleranceSeconds int    `json:"webhook_tolerance_seconds" envconfig:"PAYQ_PROCESSOR_WEBHOOK_TOLERANCE_SECONDS"`
	TimeoutSeconds          int    `json:"timeout_seconds" envconfig:"PAYQ_PROCESSOR_TIMEOUT_SECONDS"`
	PaymentCacheTTLSeconds  int    `json:"payment_cache_ttl_seconds" envconfig:"PAYQ_PROCESSOR_PAYMENT_CACHE_TTL_SECONDS"`
}

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret" envconfig:"PAYQ_AUTH_JWT_SECRET"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"PAYQ_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"PAYQ_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"PAYQ_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

// ScheduleConfig holds cron specs for the periodic queue cycles. Empty specs get defaults;
// ScheduleOff disables a cycle.
type ScheduleConfig struct {
	Dequeue      string `json:"dequeue" envconfig:"PAYQ_SCHEDULE_DEQUEUE"`
	Cleanup      string `json:"cleanup" envconfig:"PAYQ_SCHEDULE_CLEANUP"`
	RequeueStale string `json:"requeue_stale" envconfig:"PAYQ_SCHEDULE_REQUEUE_STALE"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"PAYQ_NOTIFICATION_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url" envconfig:"PAYQ_NOTIFICATION_WEBHOOK_URL"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type Configuration struct {
	ProjectName     string           `json:"project_name" envconfig:"PAYQ_PROJECT_NAME"`
	EnableTelemetry bool             `json:"enable_telemetry" envconfig:"PAYQ_ENABLE_TELEMETRY"`
	Server          ServerConfig     `json:"server"`
	DataSource      DataSourceConfig `json:"data_source"`
	Redis           RedisConfig      `json:"redis"`
	Queue           QueueConfig      `json:"queue"`
	Processor       ProcessorConfig  `json:"processor"`
	Auth            AuthConfig       `json:"auth"`
	Schedule        ScheduleConfig   `json:"schedule"`
	Notification    Notification     `json:"notification"`
	RateLimit       RateLimitConfig  `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("payq", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called payq.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Payq Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Processor.BaseURL = strings.TrimRight(strings.TrimSpace(cnf.Processor.BaseURL), "/")

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if err := cnf.Queue.addDefaults(); err != nil {
		return err
	}
	cnf.Processor.addDefaults()

	cnf.Schedule.addDefaults()
	if err := cnf.Schedule.validate(); err != nil {
		return err
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

func (q *QueueConfig) addDefaults() error {
	if q.BatchSize <= 0 {
		q.BatchSize = 10
	}
	if q.MaxRetries <= 0 {
		q.MaxRetries = 3
	}
	if q.MaxSendAttempts <= 0 {
		q.MaxSendAttempts = q.MaxRetries
	}
	if q.MaxConcurrentSends <= 0 {
		q.MaxConcurrentSends = q.BatchSize
	}
	if q.RetentionSeconds <= 0 {
		q.RetentionSeconds = 86400
	}
	if q.StaleThresholdSec <= 0 {
		q.StaleThresholdSec = 900
	}
	if q.MaintenanceQueue == "" {
		q.MaintenanceQueue = "payq_maintenance"
	}
	if q.WebhookQueue == "" {
		q.WebhookQueue = "payq_webhook_queue"
	}
	if q.MonitoringPort == "" {
		q.MonitoringPort = "5004"
	}

	q.Backoff.Policy = strings.ToLower(strings.TrimSpace(q.Backoff.Policy))
	switch q.Backoff.Policy {
	case "":
		q.Backoff.Policy = BackoffConstant
	case BackoffConstant, BackoffExponential:
	default:
		return errors.New("queue backoff policy must be constant or exponential")
	}
	if q.Backoff.InitialIntervalMs < 0 || q.Backoff.MaxIntervalMs < 0 {
		return errors.New("queue backoff intervals cannot be negative")
	}
	if q.Backoff.MaxIntervalMs == 0 {
		q.Backoff.MaxIntervalMs = 30000
	}
	return nil
}

func (p *ProcessorConfig) addDefaults() {
	if p.WebhookToleranceSeconds <= 0 {
		p.WebhookToleranceSeconds = 300
	}
	if p.TimeoutSeconds <= 0 {
		p.TimeoutSeconds = 30
	}
	if p.PaymentCacheTTLSeconds <= 0 {
		p.PaymentCacheTTLSeconds = 3600
	}
}

// SettlementRetention is how long a dequeued item is kept before cleanup may delete it.
func (q QueueConfig) SettlementRetention() time.Duration {
	return time.Duration(q.RetentionSeconds) * time.Second
}

// StaleThreshold is how long an item may sit in processing before it is considered abandoned.
func (q QueueConfig) StaleThreshold() time.Duration {
	return time.Duration(q.StaleThresholdSec) * time.Second
}

func (b BackoffConfig) InitialInterval() time.Duration {
	return time.Duration(b.InitialIntervalMs) * time.Millisecond
}

func (b BackoffConfig) MaxInterval() time.Duration {
	return time.Duration(b.MaxIntervalMs) * time.Millisecond
}

func (p ProcessorConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

func (p ProcessorConfig) WebhookTolerance() time.Duration {
	return time.Duration(p.WebhookToleranceSeconds) * time.Second
}

func (p ProcessorConfig) PaymentCacheTTL() time.Duration {
	return time.Duration(p.PaymentCacheTTLSeconds) * time.Second
}

func (s *ScheduleConfig) addDefaults() {
	if s.Dequeue == "" {
		s.Dequeue = DefaultDequeueSchedule
	}
	if s.Cleanup == "" {
		s.Cleanup = DefaultCleanupSchedule
	}
	if s.RequeueStale == "" {
		s.RequeueStale = DefaultRequeueStaleSchedule
	}
}

// Enabled reports whether spec names a schedule that should be registered.
func (s ScheduleConfig) Enabled(spec string) bool {
	return spec != "" && spec != ScheduleOff
}

func (s ScheduleConfig) validate() error {
	for name, spec := range map[string]string{"dequeue": s.Dequeue, "cleanup": s.Cleanup, "requeue_stale": s.RequeueStale} {
		if !s.Enabled(spec) {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return errors.New("invalid " + name + " schedule: " + err.Error())
		}
	}
	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
