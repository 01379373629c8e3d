package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	ReservationEvents string `mapstructure:"reservation_events"`
	RideEvents        string `mapstructure:"ride_events"`
	WalletEvents      string `mapstructure:"wallet_events"`
}

// GatewayConfig 支付网关凭证。两项为空时运行在 mock 模式，
// 不对外发起真实支付请求。
type GatewayConfig struct {
	ShopID    string `mapstructure:"shop_id"`
	SecretKey string `mapstructure:"secret_key"`
}

type BusinessConfig struct {
	ReservationTTLMinutes int    `mapstructure:"reservation_ttl_minutes"`
	LevelStepAmount       string `mapstructure:"level_step_amount"`
	MaxRetryCount         int    `mapstructure:"max_retry_count"`
	SweeperIntervalSec    int    `mapstructure:"sweeper_interval_sec"`
	SweeperBatchSize      int    `mapstructure:"sweeper_batch_size"`
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	ApplyDefaults(config)
	GlobalConfig = config
	return config
}

// ApplyDefaults 补齐业务配置的缺省值。
func ApplyDefaults(c *Config) {
	if c.Business.ReservationTTLMinutes <= 0 {
		c.Business.ReservationTTLMinutes = 10
	}
	if c.Business.LevelStepAmount == "" {
		c.Business.LevelStepAmount = "150"
	}
	if c.Business.MaxRetryCount <= 0 {
		c.Business.MaxRetryCount = 3
	}
	if c.Business.SweeperIntervalSec <= 0 {
		c.Business.SweeperIntervalSec = 30
	}
	if c.Business.SweeperBatchSize <= 0 {
		c.Business.SweeperBatchSize = 100
	}
}
