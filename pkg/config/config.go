package config

import (
	"strconv"
	"time"

	"github.com/X9Cipher/alumni-portal-sub001/pkg"
	errprocess "github.com/X9Cipher/alumni-portal-sub001/pkg/err"

	"go.uber.org/zap"
)

var (
	presenceBackends = []string{"memory", "redis"}
	// empty fallback role is allowed, it rejects unknown recipients
	fallbackRoles = []string{"", "student", "alumni", "admin"}
)

// Messaging definition messaging_service YAML structure
type Messaging struct {
	Port     string         `mapstructure:"port"`
	MongoSQL DatabaseConfig `mapstructure:"mongo"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Presence PresenceConfig `mapstructure:"presence"`
	Identity IdentityConfig `mapstructure:"identity"`
	Socket   SocketConfig   `mapstructure:"messaging"`
}

// RedisConfig definition redis setting.
// Addr wins over sentinel discovery when both are set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	RedisDB  int    `mapstructure:"redis_db"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	URI           string `mapstructure:"uri"`
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// AuthConfig definition jwt setting
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	SocketTokenTTL time.Duration `mapstructure:"socket_token_ttl"`
	Issuer         string        `mapstructure:"issuer"`
}

// PresenceConfig selects the presence registry backend: "memory" or "redis".
type PresenceConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// IdentityConfig controls what happens when a user id is in none of the
// role collections. An empty FallbackRole rejects the send.
type IdentityConfig struct {
	FallbackRole string `mapstructure:"fallback_role"`
}

// SocketConfig definition websocket gateway limits
type SocketConfig struct {
	MaxContentLength int           `mapstructure:"max_content_length"`
	PingPeriod       time.Duration `mapstructure:"ping_period"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	StoreTimeout     time.Duration `mapstructure:"store_timeout"`
}

// MongoURI returns the configured connection string, building one from
// host/port/credentials when no uri is given.
func (d DatabaseConfig) MongoURI() string {
	if d.URI != "" {
		return d.URI
	}
	if d.User == "" {
		return "mongodb://" + d.Host + ":" + strconv.Itoa(d.Port)
	}
	return "mongodb://" + d.User + ":" + d.Password + "@" + d.Host + ":" + strconv.Itoa(d.Port)
}

// WithDefaults fills zero values with the service defaults.
func (m Messaging) WithDefaults() Messaging {
	if m.Port == "" {
		m.Port = "3001"
	}
	if m.MongoSQL.Database == "" {
		m.MongoSQL.Database = "alumni_portal"
	}
	if m.MongoSQL.RetryCount == 0 {
		m.MongoSQL.RetryCount = 5
	}
	if m.MongoSQL.RetryInterval == 0 {
		m.MongoSQL.RetryInterval = 2
	}
	if m.Auth.SocketTokenTTL == 0 {
		m.Auth.SocketTokenTTL = 15 * time.Minute
	}
	if m.Auth.Issuer == "" {
		m.Auth.Issuer = "alumni-portal"
	}
	if m.Presence.Backend == "" {
		m.Presence.Backend = "memory"
	}
	if m.Presence.TTL == 0 {
		m.Presence.TTL = 2 * time.Minute
	}
	if m.Socket.MaxContentLength == 0 {
		m.Socket.MaxContentLength = 5000
	}
	if m.Socket.PongWait == 0 {
		m.Socket.PongWait = 60 * time.Second
	}
	if m.Socket.PingPeriod == 0 {
		m.Socket.PingPeriod = (m.Socket.PongWait * 9) / 10
	}
	if m.Socket.WriteWait == 0 {
		m.Socket.WriteWait = 10 * time.Second
	}
	if m.Socket.StoreTimeout == 0 {
		m.Socket.StoreTimeout = 10 * time.Second
	}
	return m
}

// Validate rejects settings the service cannot run with.
func (m Messaging) Validate() error {
	if !pkg.Contains(presenceBackends, m.Presence.Backend) {
		return errprocess.Set("unknown presence backend", zap.String("backend", m.Presence.Backend))
	}
	if !pkg.Contains(fallbackRoles, m.Identity.FallbackRole) {
		return errprocess.Set("unknown identity fallback role", zap.String("role", m.Identity.FallbackRole))
	}
	if m.Socket.PingPeriod >= m.Socket.PongWait {
		return errprocess.Set("ping period must be shorter than pong wait",
			zap.Duration("ping_period", m.Socket.PingPeriod),
			zap.Duration("pong_wait", m.Socket.PongWait))
	}
	return nil
}
