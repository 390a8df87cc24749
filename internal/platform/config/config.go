package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultShutdownTimeout   = 10 * time.Second
	defaultRequestTimeout    = 15 * time.Second
	defaultBcryptCost        = 12
	minBcryptCost            = 4
	maxBcryptCost            = 31
	defaultMailAPITimeout    = 5 * time.Second
	defaultQueueKey          = "registration:notifications"
	defaultQueueBlockTimeout = 5 * time.Second
)

// NotificationDriver はアクティベーションコードの配送方式です。
type NotificationDriver string

const (
	// NotificationDriverLog はコードをログに出力するだけの開発用ドライバーです。
	NotificationDriverLog NotificationDriver = "log"
	// NotificationDriverMailAPI は外部のメール API に送信します。
	NotificationDriverMailAPI NotificationDriver = "mailapi"
)

// Config はアプリケーション全体の設定を表現します。
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Log          LogConfig          `yaml:"log"`
	Security     SecurityConfig     `yaml:"security"`
	Notification NotificationConfig `yaml:"notification"`
	HTTP         HTTPConfig         `yaml:"http"`
}

// ServerConfig は gRPC / HTTP サーバーに関する設定です。
type ServerConfig struct {
	ListenAddr         string        `yaml:"listen_addr"`
	HTTPAddr           string        `yaml:"http_addr"`
	ShutdownTimeout    time.Duration `yaml:"-"`
	ShutdownTimeoutRaw string        `yaml:"shutdown_timeout"`
}

// DatabaseConfig は PostgreSQL 接続に関する設定です。
type DatabaseConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	SSLMode            string        `yaml:"ssl_mode"`
	MaxOpenConns       int           `yaml:"max_open_conns"`
	MaxIdleConns       int           `yaml:"max_idle_conns"`
	ConnMaxLifetime    time.Duration `yaml:"-"`
	ConnMaxIdleTime    time.Duration `yaml:"-"`
	ConnMaxLifetimeRaw string        `yaml:"conn_max_lifetime"`
	ConnMaxIdleTimeRaw string        `yaml:"conn_max_idle_time"`
}

// RedisConfig は通知キューに使う Redis の設定です。Addr が空の場合は使用しません。
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled は Redis が設定されているかどうかを返します。
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// LogConfig はロガーの設定です。
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SecurityConfig はパスワードハッシュに関する設定です。
type SecurityConfig struct {
	BcryptCost int `yaml:"bcrypt_cost"`
}

// NotificationConfig はコード配送の設定です。
type NotificationConfig struct {
	Driver     NotificationDriver `yaml:"driver"`
	MailAPIURL string             `yaml:"mail_api_url"`
	Timeout    time.Duration      `yaml:"-"`
	TimeoutRaw string             `yaml:"timeout"`
	Queue      QueueConfig        `yaml:"queue"`
}

// QueueConfig は Redis を使った非同期配送の設定です。
type QueueConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Key             string        `yaml:"key"`
	BlockTimeout    time.Duration `yaml:"-"`
	BlockTimeoutRaw string        `yaml:"block_timeout"`
}

// HTTPConfig は HTTP API の設定です。
type HTTPConfig struct {
	CORSAllowedOrigins []string      `yaml:"cors_allowed_origins"`
	RequestTimeout     time.Duration `yaml:"-"`
	RequestTimeoutRaw  string        `yaml:"request_timeout"`
}

// Load は指定されたパスから設定ファイルを読み込みます。
// 機密値は環境変数で上書きできます。
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	cfg.applyEnvOverrides(os.LookupEnv)

	if err := cfg.validateAndNormalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyEnvOverrides(lookup func(string) (string, bool)) {
	if v, ok := lookup("DATABASE_PASSWORD"); ok && v != "" {
		c.Database.Password = v
	}
	if v, ok := lookup("REDIS_PASSWORD"); ok && v != "" {
		c.Redis.Password = v
	}
	if v, ok := lookup("MAIL_API_URL"); ok && v != "" {
		c.Notification.MailAPIURL = v
	}
	if v, ok := lookup("BCRYPT_COST"); ok && v != "" {
		if cost, err := strconv.Atoi(v); err == nil {
			c.Security.BcryptCost = cost
		}
	}
}

func (c *Config) validateAndNormalize() error {
	if err := c.Server.validateAndNormalize(); err != nil {
		return err
	}

	db := &c.Database
	if err := db.validateAndNormalize(); err != nil {
		return err
	}

	if err := c.Log.validateAndNormalize(); err != nil {
		return err
	}

	if err := c.Security.validateAndNormalize(); err != nil {
		return err
	}

	if err := c.Notification.validateAndNormalize(c.Redis); err != nil {
		return err
	}

	if err := c.HTTP.validateAndNormalize(); err != nil {
		return err
	}

	return nil
}

func (s *ServerConfig) validateAndNormalize() error {
	if s.ListenAddr == "" {
		return fmt.Errorf("config: server.listen_addr must be set")
	}
	if s.HTTPAddr == "" {
		return fmt.Errorf("config: server.http_addr must be set")
	}

	timeout, err := parseDurationAllowEmpty(s.ShutdownTimeoutRaw)
	if err != nil {
		return fmt.Errorf("config: server.shutdown_timeout: %w", err)
	}
	if timeout == 0 {
		timeout = defaultShutdownTimeout
	}
	s.ShutdownTimeout = timeout

	return nil
}

func (d *DatabaseConfig) validateAndNormalize() error {
	if d.Host == "" {
		return fmt.Errorf("config: database.host must be set")
	}
	if d.Port == 0 {
		return fmt.Errorf("config: database.port must be set")
	}
	if d.User == "" {
		return fmt.Errorf("config: database.user must be set")
	}
	if d.Password == "" {
		return fmt.Errorf("config: database.password must be set")
	}
	if d.Name == "" {
		return fmt.Errorf("config: database.name must be set")
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}

	lifetime, err := parseDurationAllowEmpty(d.ConnMaxLifetimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_lifetime: %w", err)
	}
	d.ConnMaxLifetime = lifetime

	idleTime, err := parseDurationAllowEmpty(d.ConnMaxIdleTimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_idle_time: %w", err)
	}
	d.ConnMaxIdleTime = idleTime

	return nil
}

func (l *LogConfig) validateAndNormalize() error {
	if l.Level == "" {
		l.Level = "info"
	}
	switch l.Format {
	case "":
		l.Format = "json"
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format must be json or console, got %q", l.Format)
	}
	return nil
}

func (s *SecurityConfig) validateAndNormalize() error {
	if s.BcryptCost == 0 {
		s.BcryptCost = defaultBcryptCost
	}
	if s.BcryptCost < minBcryptCost || s.BcryptCost > maxBcryptCost {
		return fmt.Errorf("config: security.bcrypt_cost must be between %d and %d", minBcryptCost, maxBcryptCost)
	}
	return nil
}

func (n *NotificationConfig) validateAndNormalize(redis RedisConfig) error {
	switch n.Driver {
	case "":
		n.Driver = NotificationDriverLog
	case NotificationDriverLog:
	case NotificationDriverMailAPI:
		if n.MailAPIURL == "" {
			return fmt.Errorf("config: notification.mail_api_url must be set for the mailapi driver")
		}
		u, err := url.Parse(n.MailAPIURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config: notification.mail_api_url is not an absolute URL")
		}
	default:
		return fmt.Errorf("config: notification.driver must be log or mailapi, got %q", n.Driver)
	}

	timeout, err := parseDurationAllowEmpty(n.TimeoutRaw)
	if err != nil {
		return fmt.Errorf("config: notification.timeout: %w", err)
	}
	if timeout == 0 {
		timeout = defaultMailAPITimeout
	}
	n.Timeout = timeout

	q := &n.Queue
	if !q.Enabled {
		return nil
	}
	if !redis.Enabled() {
		return fmt.Errorf("config: notification.queue requires redis.addr")
	}
	if q.Key == "" {
		q.Key = defaultQueueKey
	}
	block, err := parseDurationAllowEmpty(q.BlockTimeoutRaw)
	if err != nil {
		return fmt.Errorf("config: notification.queue.block_timeout: %w", err)
	}
	if block == 0 {
		block = defaultQueueBlockTimeout
	}
	q.BlockTimeout = block

	return nil
}

func (h *HTTPConfig) validateAndNormalize() error {
	timeout, err := parseDurationAllowEmpty(h.RequestTimeoutRaw)
	if err != nil {
		return fmt.Errorf("config: http.request_timeout: %w", err)
	}
	if timeout == 0 {
		timeout = defaultRequestTimeout
	}
	h.RequestTimeout = timeout

	origins := h.CORSAllowedOrigins[:0]
	for _, o := range h.CORSAllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	h.CORSAllowedOrigins = origins

	return nil
}

func parseDurationAllowEmpty(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	return d, nil
}

// DSN は pgx 用の接続文字列を返します。ユーザー名とパスワードはエスケープされます。
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": []string{d.SSLMode}}.Encode(),
	}
	return u.String()
}
