package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Storage StorageConfig `mapstructure:"storage"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logger  LoggerConfig  `mapstructure:"logger"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"readTimeout"`
	WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	PublicDir       string        `mapstructure:"publicDir"`
	AllowedOrigins  []string      `mapstructure:"allowedOrigins"`
}

type AuthConfig struct {
	AdminEmail         string        `mapstructure:"adminEmail"`
	AdminPassword      string        `mapstructure:"adminPassword"`
	TokenTTL           time.Duration `mapstructure:"tokenTtl"`
	LoginRatePerSecond float64       `mapstructure:"loginRatePerSecond"`
	LoginBurst         int           `mapstructure:"loginBurst"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	BootstrapServers string `mapstructure:"bootstrapServers"`
	Topic            string `mapstructure:"topic"`
}

type StorageConfig struct {
	UploadsDir string `mapstructure:"uploadsDir"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("CROWDFLASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The config file is optional, defaults plus env are enough.
	_ = v.ReadInConfig()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.readTimeout", 10*time.Second)
	v.SetDefault("server.writeTimeout", 10*time.Second)
	v.SetDefault("server.shutdownTimeout", 30*time.Second)
	v.SetDefault("server.publicDir", "public")
	v.SetDefault("server.allowedOrigins", []string{
		"http://localhost:3000",
		"https://crowdflash-admin.netlify.app",
		"https://crowdflash-mobile.netlify.app",
	})

	v.SetDefault("auth.adminEmail", "admin@crowdflash.local")
	v.SetDefault("auth.adminPassword", "")
	v.SetDefault("auth.tokenTtl", 12*time.Hour)
	v.SetDefault("auth.loginRatePerSecond", 1.0)
	v.SetDefault("auth.loginBurst", 5)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.bootstrapServers", "localhost:9092")
	v.SetDefault("kafka.topic", "crowdflash-events")

	v.SetDefault("storage.uploadsDir", "public/uploads")

	v.SetDefault("metrics.namespace", "crowdflash")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}
