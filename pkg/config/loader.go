package config

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvInfo service settings read from .env
type EnvInfo struct {
	// service name, also the YAML file name without extension
	MessagingService string

	MessagingServicePort string

	MessagingServiceYAMLPath string

	MessagingServiceLogPath string
}

// EnvConfig service settings loaded once at start-up
var (
	EnvConfig = initEnv()
	envConfig EnvInfo
	once      sync.Once
	env       string
)

func initEnv() EnvInfo {
	once.Do(func() {
		path, err := GetPath(".env", 5)
		if err != nil {
			log.Printf("Warning: Could not get .env path: %v", err)
		} else if err := godotenv.Load(path); err != nil {
			log.Printf("Warning: Could not load .env file: %v", err)
		}

		env = os.Getenv("ENV")

		envConfig = EnvInfo{
			MessagingService:         getenv("MESSAGING_SERVICE", "messaging_service"),
			MessagingServicePort:     os.Getenv("MESSAGING_SERVICE_PORT"),
			MessagingServiceYAMLPath: getenv("MESSAGING_SERVICE_YAML", "./configs"),
			MessagingServiceLogPath:  getenv("MESSAGING_SERVICE_LOG", "./logs"),
		}
	})

	return envConfig
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// IsProduction check run env
func IsProduction() bool {
	return env == "production"
}

// IsLocal check run env
func IsLocal() bool {
	return env == "local"
}

// Option adjusts the viper instance before the config is read.
type Option func(v *viper.Viper)

// WithDefault registers a default for key.
func WithDefault(key string, value interface{}) Option {
	return func(v *viper.Viper) {
		v.SetDefault(key, value)
	}
}

// LoadConfig loads <configPath>/<serviceName>.yaml into T and exits on failure.
func LoadConfig[T any](serviceName string, configPath string, opts ...Option) T {
	cfg, err := ReadConfig[T](serviceName, configPath, opts...)
	if err != nil {
		log.Fatalf("Error loading config file: %v", err)
	}
	return cfg
}

// ReadConfig loads <configPath>/<serviceName>.yaml into T. ${VAR}
// placeholders in the file are expanded from the environment, and
// environment variables override keys (dots replaced by underscores).
func ReadConfig[T any](serviceName string, configPath string, opts ...Option) (T, error) {
	var cfg T

	v := viper.New()
	v.SetConfigName(serviceName)
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for _, opt := range opts {
		opt(v)
	}

	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("read config %s: %w", serviceName, err)
	}

	rawConfig, err := os.ReadFile(v.ConfigFileUsed())
	if err != nil {
		return cfg, fmt.Errorf("read raw config file: %w", err)
	}

	expandedConfig := os.ExpandEnv(string(rawConfig))
	if err := v.ReadConfig(bytes.NewBufferString(expandedConfig)); err != nil {
		return cfg, fmt.Errorf("read expanded config: %w", err)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// GetRedisSetting get redis sentinel master name and addresses from the
// REDIS_SENTINEL*_IP / REDIS_SENTINEL*_PORT environment variables.
func GetRedisSetting() (string, []string) {
	var sentinelAddrs []string

	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key, value := parts[0], parts[1]

		if strings.HasPrefix(key, "REDIS_SENTINEL") && strings.HasSuffix(key, "_IP") {
			portKey := strings.Replace(key, "_IP", "_PORT", 1)
			if port := os.Getenv(portKey); port != "" {
				sentinelAddrs = append(sentinelAddrs, fmt.Sprintf("%s:%s", value, port))
			}
		}
	}
	sort.Strings(sentinelAddrs)

	masterName := os.Getenv("REDIS_MASTER_NAME")
	if masterName == "" {
		masterName = "mymaster"
	}

	return masterName, sentinelAddrs
}

// GetPath use fileName loop maxCount find file path
func GetPath(fileName string, maxCount int) (string, error) {
	path := "./" + fileName

	for i := 0; i < maxCount; i++ {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = "../" + path
	}
	return "", errors.New(fileName + " can't find path")
}
