// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"pricepoint/internal/pkg/logger"
	"pricepoint/internal/pkg/nacos"
)

type Config struct {
	App   AppConfig   `yaml:"app"`
	Infra InfraConfig `yaml:"infra"`
}

type AppConfig struct {
	Name             string `yaml:"name"`
	Port             int    `yaml:"port"`
	LogLevel         string `yaml:"logLevel"`
	MoneyScale       int32  `yaml:"moneyScale"`
	BatchConcurrency int    `yaml:"batchConcurrency"`
	RuleEngine       string `yaml:"ruleEngine"` // cel 或 jsonlogic
}

type InfraConfig struct {
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	MySQL     MySQLConfig     `yaml:"mysql"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
	Nacos     NacosConfig     `yaml:"nacos"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type MySQLConfig struct {
	Addr        string `yaml:"addr"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	Database    string `yaml:"database"`
	AutoMigrate bool   `yaml:"autoMigrate"`
}

type RedisConfig struct {
	Addrs    []string      `yaml:"addrs"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

type KafkaConfig struct {
	Brokers         []string `yaml:"brokers"`
	ResultTopic     string   `yaml:"resultTopic"`
	CampaignTopic   string   `yaml:"campaignTopic"`
	DeadLetterTopic string   `yaml:"deadLetterTopic"`
	ConsumerGroup   string   `yaml:"consumerGroup"`
}

type ZookeeperConfig struct {
	Servers        []string      `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"sessionTimeout"`
}

type NacosConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServerAddrs string `yaml:"serverAddrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
	DataID      string `yaml:"dataId"`
}

var (
	currentConfig     atomic.Pointer[Config]
	nacosConfigClient *nacos.ConfigCenter
)

// DefaultConfig 返回本地开发使用的默认配置
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:             "discount-service",
			Port:             8090,
			LogLevel:         "info",
			MoneyScale:       2,
			BatchConcurrency: 8,
			RuleEngine:       "cel",
		},
		Infra: InfraConfig{
			Jaeger: JaegerConfig{Endpoint: "http://localhost:14268/api/traces"},
			MySQL: MySQLConfig{
				Addr:     "localhost:3306",
				User:     "root",
				Database: "pricepoint",
			},
			Redis: RedisConfig{Addrs: []string{"localhost:6379"}, CacheTTL: 5 * time.Minute},
			Kafka: KafkaConfig{
				Brokers:         []string{"localhost:9092"},
				ResultTopic:     "discount-evaluated",
				CampaignTopic:   "campaign-updated",
				DeadLetterTopic: "campaign-updated-dlt",
				ConsumerGroup:   "discount-service-campaign-group",
			},
			Zookeeper: ZookeeperConfig{Servers: []string{"localhost:2181"}, SessionTimeout: 5 * time.Second},
			Nacos:     NacosConfig{ServerAddrs: "localhost:8848", Group: nacos.DefaultGroup, DataID: "discount-service.yaml"},
		},
	}
}

// GetCurrentConfig 返回当前生效的配置, 未初始化时返回默认配置
func GetCurrentConfig() *Config {
	if c := currentConfig.Load(); c != nil {
		return c
	}
	return DefaultConfig()
}

// Init 加载 .env、配置文件、环境变量覆盖以及可选的 Nacos 配置中心, 并初始化日志
func Init() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to load .env file")
	}

	cfg, err := LoadConfig(getEnv("CONFIG_PATH", ""))
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)

	if cfg.Infra.Nacos.Enabled {
		if err := overlayFromNacos(cfg); err != nil {
			return nil, err
		}
	}

	logger.Init(cfg.App.Name, cfg.App.LogLevel)
	currentConfig.Store(cfg)
	return cfg, nil
}

// LoadConfig 读取 yaml 配置文件, path 为空时使用默认配置
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.App.Name = getEnv("SERVICE_NAME", cfg.App.Name)
	cfg.App.LogLevel = getEnv("LOG_LEVEL", cfg.App.LogLevel)
	cfg.App.RuleEngine = getEnv("RULE_ENGINE", cfg.App.RuleEngine)
	if port, err := strconv.Atoi(getEnv("PORT", "")); err == nil {
		cfg.App.Port = port
	}
	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Infra.Jaeger.Endpoint)
	cfg.Infra.MySQL.Addr = getEnv("MYSQL_ADDR", cfg.Infra.MySQL.Addr)
	cfg.Infra.MySQL.User = getEnv("MYSQL_USER", cfg.Infra.MySQL.User)
	cfg.Infra.MySQL.Password = getEnv("MYSQL_PASSWORD", cfg.Infra.MySQL.Password)
	cfg.Infra.MySQL.Database = getEnv("MYSQL_DATABASE", cfg.Infra.MySQL.Database)
	if v := getEnv("REDIS_ADDRS", ""); v != "" {
		cfg.Infra.Redis.Addrs = strings.Split(v, ",")
	}
	if v := getEnv("KAFKA_BROKERS", ""); v != "" {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getEnv("ZOOKEEPER_SERVERS", ""); v != "" {
		cfg.Infra.Zookeeper.Servers = strings.Split(v, ",")
	}
	cfg.Infra.Nacos.ServerAddrs = getEnv("NACOS_SERVER_ADDRS", cfg.Infra.Nacos.ServerAddrs)
	cfg.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", cfg.Infra.Nacos.Namespace)
	cfg.Infra.Nacos.Group = getEnv("NACOS_GROUP", cfg.Infra.Nacos.Group)
	if enabled, err := strconv.ParseBool(getEnv("NACOS_ENABLED", "")); err == nil {
		cfg.Infra.Nacos.Enabled = enabled
	}
}

// overlayFromNacos 用配置中心的内容覆盖本地配置, 并监听后续变更
func overlayFromNacos(cfg *Config) error {
	serverConfigs, err := nacos.ParseServerConfigs(cfg.Infra.Nacos.ServerAddrs)
	if err != nil {
		return err
	}
	center, err := nacos.NewConfigCenter(serverConfigs, nacos.NewClientConfig(cfg.Infra.Nacos.Namespace), cfg.Infra.Nacos.Group)
	if err != nil {
		return err
	}
	nacosConfigClient = center

	content, err := center.Get(cfg.Infra.Nacos.DataID)
	if err != nil {
		return err
	}
	if content != "" {
		if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
			return errors.Wrap(err, "parse nacos config")
		}
	}

	return center.Watch(cfg.Infra.Nacos.DataID, func(data string) {
		next := *GetCurrentConfig()
		if err := yaml.Unmarshal([]byte(data), &next); err != nil {
			log.Error().Err(err).Msg("ignoring invalid nacos config update")
			return
		}
		logger.SetLevel(next.App.LogLevel)
		currentConfig.Store(&next)
	})
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
