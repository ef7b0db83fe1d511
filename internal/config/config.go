package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/arkade-os/marketd/internal/core/application"
	"github.com/arkade-os/marketd/internal/core/ports"
	"github.com/arkade-os/marketd/internal/infrastructure/db"
	alertmanager "github.com/arkade-os/marketd/internal/infrastructure/publisher/alertmanager"
	logpublisher "github.com/arkade-os/marketd/internal/infrastructure/publisher/log"
	redispublisher "github.com/arkade-os/marketd/internal/infrastructure/publisher/redis"
	watermillpublisher "github.com/arkade-os/marketd/internal/infrastructure/publisher/watermill"
	timescheduler "github.com/arkade-os/marketd/internal/infrastructure/scheduler/gocron"
	"github.com/btcsuite/btcd/btcutil"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var (
	supportedDbs = supportedType{
		"inmemory": {},
		"badger":   {},
		"sqlite":   {},
		"postgres": {},
		"redis":    {},
	}
	supportedPublishers = supportedType{
		"log":          {},
		"redis":        {},
		"alertmanager": {},
		"watermill":    {},
	}
)

type Config struct {
	Datadir  string
	LogLevel int

	DbType              string
	DbDir               string
	DbUrl               string
	RedisUrl            string
	RedisTxNumOfRetries int

	PublisherType   string
	AlertManagerURL string

	EnforceExpiryOnResolve bool

	OtelCollectorEndpoint string
	OtelPushInterval      int64

	repo       ports.RepoManager
	publisher  ports.EventPublisher
	subscriber message.Subscriber
	scheduler  ports.SchedulerService
	svc        application.Service
	ledgerSvc  application.LedgerService
}

func (c *Config) String() string {
	clone := *c
	clone.DbUrl = maskUrl(clone.DbUrl)
	clone.RedisUrl = maskUrl(clone.RedisUrl)
	json, err := json.MarshalIndent(clone, "", "  ")
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(json)
}

var (
	defaultDatadir                = btcutil.AppDataDir("marketd", false)
	defaultLogLevel               = 4
	defaultDbType                 = "badger"
	defaultPublisherType          = "log"
	defaultRedisTxNumOfRetries    = 10
	defaultEnforceExpiryOnResolve = true
	defaultOtelPushInterval       = 10 // seconds

	inProcessEventsBufferSize = int64(100)
)

// env returns a list of strings prefixed with `MARKETD_`.
// This is used as a syntax sugar for defining env vars.
func env(values ...string) []string {
	envs := make([]string, len(values))

	for i, value := range values {
		envs[i] = fmt.Sprintf("MARKETD_%s", value)
	}

	return envs
}

var (
	Datadir = &cli.StringFlag{
		Usage: "Directory to store data",
		Name:  "datadir", EnvVars: env("DATADIR"),
		Value: defaultDatadir,
	}

	LogLevel = &cli.IntFlag{
		Usage: "Logging level (0-6, where 6 is trace)",
		Name:  "log-level", EnvVars: env("LOG_LEVEL"),
		Value: defaultLogLevel,
	}

	DbType = &cli.StringFlag{
		Usage: "Database type (inmemory, badger, sqlite, postgres, redis)",
		Name:  "db-type", EnvVars: env("DB_TYPE"),
		Value: defaultDbType,
	}

	DbUrl = &cli.StringFlag{
		Usage: "Postgres connection url if MARKETD_DB_TYPE is set to postgres",
		Name:  "pg-db-url", EnvVars: env("PG_DB_URL"),
	}

	RedisUrl = &cli.StringFlag{
		Usage: "Redis connection url if either MARKETD_DB_TYPE or MARKETD_PUBLISHER_TYPE is set to redis",
		Name:  "redis-url", EnvVars: env("REDIS_URL"),
	}

	RedisTxNumOfRetries = &cli.IntFlag{
		Usage: "Maximum number of retries for Redis write operations in case of conflicts",
		Name:  "redis-num-of-retries", EnvVars: env("REDIS_NUM_OF_RETRIES"),
		Value: defaultRedisTxNumOfRetries,
	}

	PublisherType = &cli.StringFlag{
		Usage: "Market events publisher type (log, redis, alertmanager, watermill)",
		Name:  "publisher-type", EnvVars: env("PUBLISHER_TYPE"),
		Value: defaultPublisherType,
	}

	AlertManagerURL = &cli.StringFlag{
		Usage: "AlertManager url if MARKETD_PUBLISHER_TYPE is set to alertmanager",
		Name:  "alert-manager-url", EnvVars: env("ALERT_MANAGER_URL"),
	}

	EnforceExpiryOnResolve = &cli.BoolFlag{
		Usage: "Reject the resolution of markets that did not expire yet",
		Name:  "enforce-expiry-on-resolve", EnvVars: env("ENFORCE_EXPIRY_ON_RESOLVE"),
		Value: defaultEnforceExpiryOnResolve,
	}

	OtelCollectorEndpoint = &cli.StringFlag{
		Usage: "OpenTelemetry collector endpoint",
		Name:  "collector-endpoint", EnvVars: env("COLLECTOR_ENDPOINT"),
	}

	OtelPushInterval = &cli.IntFlag{
		Usage: "OpenTelemetry push interval in seconds",
		Name:  "otel-push-interval", EnvVars: env("OTEL_PUSH_INTERVAL"),
		Value: defaultOtelPushInterval,
	}
)

var Flags = []cli.Flag{
	Datadir,
	LogLevel,
	DbType,
	DbUrl,
	RedisUrl,
	RedisTxNumOfRetries,
	PublisherType,
	AlertManagerURL,
	EnforceExpiryOnResolve,
	OtelCollectorEndpoint,
	OtelPushInterval,
}

func LoadConfig(c *cli.Context) (*Config, error) {
	if err := initDatadir(c); err != nil {
		return nil, fmt.Errorf("failed to create datadir: %s", err)
	}

	dbPath := filepath.Join(c.String(Datadir.Name), "db")

	var dbUrl string
	if c.String(DbType.Name) == "postgres" {
		dbUrl = c.String(DbUrl.Name)
		if dbUrl == "" {
			return nil, fmt.Errorf("db type set to 'postgres' but db url is missing")
		}
	}

	var redisUrl string
	if c.String(DbType.Name) == "redis" || c.String(PublisherType.Name) == "redis" {
		redisUrl = c.String(RedisUrl.Name)
		if redisUrl == "" {
			return nil, fmt.Errorf("db or publisher type set to 'redis' but redis url is missing")
		}
	}

	var alertManagerUrl string
	if c.String(PublisherType.Name) == "alertmanager" {
		alertManagerUrl = c.String(AlertManagerURL.Name)
		if alertManagerUrl == "" {
			return nil, fmt.Errorf(
				"publisher type set to 'alertmanager' but alert manager url is missing",
			)
		}
	}

	return &Config{
		Datadir:                c.String(Datadir.Name),
		LogLevel:               c.Int(LogLevel.Name),
		DbType:                 c.String(DbType.Name),
		DbDir:                  dbPath,
		DbUrl:                  dbUrl,
		RedisUrl:               redisUrl,
		RedisTxNumOfRetries:    c.Int(RedisTxNumOfRetries.Name),
		PublisherType:          c.String(PublisherType.Name),
		AlertManagerURL:        alertManagerUrl,
		EnforceExpiryOnResolve: c.Bool(EnforceExpiryOnResolve.Name),
		OtelCollectorEndpoint:  c.String(OtelCollectorEndpoint.Name),
		OtelPushInterval:       c.Int64(OtelPushInterval.Name),
	}, nil
}

func initDatadir(c *cli.Context) error {
	datadir := c.String(Datadir.Name)
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0o755)
	}
	return nil
}

// Validate checks the config and opens the services it refers to.
func (c *Config) Validate() error {
	if !supportedDbs.supports(c.DbType) {
		return fmt.Errorf("db type not supported, please select one of: %s", supportedDbs)
	}
	if !supportedPublishers.supports(c.PublisherType) {
		return fmt.Errorf(
			"publisher type not supported, please select one of: %s",
			supportedPublishers,
		)
	}
	if c.LogLevel < int(log.PanicLevel) || c.LogLevel > int(log.TraceLevel) {
		return fmt.Errorf("invalid log level, must be in range [0, 6]")
	}
	if c.DbType == "redis" && c.RedisTxNumOfRetries <= 0 {
		return fmt.Errorf("invalid redis number of retries, must be greater than 0")
	}
	if len(c.OtelCollectorEndpoint) > 0 && c.OtelPushInterval <= 0 {
		return fmt.Errorf("invalid otel push interval, must be greater than 0")
	}
	if !c.EnforceExpiryOnResolve {
		log.Debugf("markets can be resolved before expiry")
	}

	if err := c.repoManager(); err != nil {
		return err
	}
	if err := c.publisherService(); err != nil {
		return err
	}
	if err := c.schedulerService(); err != nil {
		return err
	}
	return nil
}

func (c *Config) AppService() (application.Service, error) {
	if c.svc == nil {
		if err := c.appService(); err != nil {
			return nil, err
		}
	}
	return c.svc, nil
}

func (c *Config) LedgerService() (application.LedgerService, error) {
	if c.ledgerSvc == nil {
		if c.repo == nil {
			return nil, fmt.Errorf("repo manager not set")
		}
		c.ledgerSvc = application.NewLedgerService(c.repo)
	}
	return c.ledgerSvc, nil
}

// EventSubscriber returns the subscriber of the in-process event bus, nil unless the
// watermill publisher is selected.
func (c *Config) EventSubscriber() message.Subscriber {
	return c.subscriber
}

// OtelPushIntervalDuration returns the metrics push interval as a duration.
func (c *Config) OtelPushIntervalDuration() time.Duration {
	return time.Duration(c.OtelPushInterval) * time.Second
}

func (c *Config) repoManager() error {
	var dataStoreConfig []interface{}
	logger := log.New()

	switch c.DbType {
	case "inmemory":
	case "badger":
		dataStoreConfig = []interface{}{c.DbDir, logger}
	case "sqlite":
		dataStoreConfig = []interface{}{c.DbDir}
	case "postgres":
		dataStoreConfig = []interface{}{c.DbUrl, true}
	case "redis":
		dataStoreConfig = []interface{}{c.RedisUrl, c.RedisTxNumOfRetries}
	default:
		return fmt.Errorf("unknown db type")
	}

	svc, err := db.NewService(db.ServiceConfig{
		DataStoreType:   c.DbType,
		DataStoreConfig: dataStoreConfig,
	})
	if err != nil {
		return err
	}

	c.repo = svc
	return nil
}

func (c *Config) publisherService() error {
	var svc ports.EventPublisher
	var err error
	switch c.PublisherType {
	case "log":
		svc = logpublisher.NewService(log.StandardLogger())
	case "redis":
		svc, err = redispublisher.NewService(c.RedisUrl)
	case "alertmanager":
		svc, err = alertmanager.NewService(c.AlertManagerURL)
	case "watermill":
		svc, c.subscriber = watermillpublisher.NewInProcessService(inProcessEventsBufferSize)
	default:
		err = fmt.Errorf("unknown publisher type")
	}
	if err != nil {
		return err
	}

	c.publisher = svc
	return nil
}

func (c *Config) schedulerService() error {
	c.scheduler = timescheduler.NewScheduler()
	return nil
}

func (c *Config) appService() error {
	if c.repo == nil {
		return fmt.Errorf("repo manager not set")
	}

	svc, err := application.NewService(
		c.repo, c.publisher, c.scheduler, nil, c.EnforceExpiryOnResolve,
	)
	if err != nil {
		return err
	}

	c.svc = svc
	return nil
}

// maskUrl hides the password of the given url, if any.
func maskUrl(rawUrl string) string {
	u, err := url.Parse(rawUrl)
	if err != nil || u.User == nil {
		return rawUrl
	}
	if _, ok := u.User.Password(); !ok {
		return rawUrl
	}
	u.User = url.UserPassword(u.User.Username(), "xxxxxx")
	return u.String()
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	return strings.Join(types, " | ")
}

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}
