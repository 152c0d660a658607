// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "configs/pricing.yaml"

// Config 是服务的完整配置。先读 YAML 文件，再用环境变量覆盖。
type Config struct {
	App     AppConfig     `yaml:"app"`
	Infra   InfraConfig   `yaml:"infra"`
	Pricing PricingConfig `yaml:"pricing"`
	Shopify ShopifyConfig `yaml:"shopify"`
}

type AppConfig struct {
	Name     string `yaml:"name"`
	Port     int    `yaml:"port"`
	Env      string `yaml:"env"`
	LogLevel string `yaml:"logLevel"`
}

type InfraConfig struct {
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Nacos     NacosConfig     `yaml:"nacos"`
	MySQL     MySQLConfig     `yaml:"mysql"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
}

type JaegerConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sampleRatio"`
}

type NacosConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServerAddrs string `yaml:"serverAddrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
	// RuleDataID 是定价规则集在配置中心的 dataId，为空时不从 Nacos 加载规则。
	RuleDataID string `yaml:"ruleDataId"`
}

type MySQLConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	MaxOpen  int    `yaml:"maxOpen"`
	MaxIdle  int    `yaml:"maxIdle"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addrs    string        `yaml:"addrs"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	RuleTTL  time.Duration `yaml:"ruleTTL"`
}

type KafkaConfig struct {
	Enabled             bool     `yaml:"enabled"`
	Brokers             []string `yaml:"brokers"`
	RecommendationTopic string   `yaml:"recommendationTopic"`
	BulkAdjustTopic     string   `yaml:"bulkAdjustTopic"`
	GroupID             string   `yaml:"groupId"`
}

type ZookeeperConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Servers        []string      `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"sessionTimeout"`
	LockTimeout    time.Duration `yaml:"lockTimeout"`
}

type PricingConfig struct {
	StaleAfter         time.Duration `yaml:"staleAfter"`
	MaxAlternatives    int           `yaml:"maxAlternatives"`
	InventoryReference int           `yaml:"inventoryReference"`
	Concurrency        int           `yaml:"concurrency"`
	RecommendationList int           `yaml:"recommendationListLimit"`
}

type ShopifyConfig struct {
	SyncEnabled  bool          `yaml:"syncEnabled"`
	ShopDomain   string        `yaml:"shopDomain"`
	APIVersion   string        `yaml:"apiVersion"`
	AccessToken  string        `yaml:"accessToken"`
	ClientID     string        `yaml:"clientId"`
	ClientSecret string        `yaml:"clientSecret"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Validate 只在启用同步时要求 Shopify 凭证完整。
func (s ShopifyConfig) Validate() error {
	if !s.SyncEnabled {
		return nil
	}
	var missing []string
	for name, v := range map[string]string{
		"SHOPIFY_SHOP_DOMAIN":   s.ShopDomain,
		"SHOPIFY_ACCESS_TOKEN":  s.AccessToken,
		"SHOPIFY_CLIENT_ID":     s.ClientID,
		"SHOPIFY_CLIENT_SECRET": s.ClientSecret,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return errors.Errorf("shopify sync enabled but missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// DefaultConfig 返回本地开发使用的默认配置。
func DefaultConfig() Config {
	return Config{
		App: AppConfig{Name: "pricing-service", Port: 8084, Env: "dev", LogLevel: "info"},
		Infra: InfraConfig{
			Jaeger: JaegerConfig{Endpoint: "http://localhost:14268/api/traces", SampleRatio: 1},
			Nacos:  NacosConfig{ServerAddrs: "localhost:8848", Group: "DEFAULT_GROUP", RuleDataID: "pricing-rules.yaml"},
			MySQL:  MySQLConfig{Host: "localhost", Port: 3306, User: "root", Database: "pricewise", MaxOpen: 20, MaxIdle: 5},
			Redis:  RedisConfig{Addrs: "localhost:6379", RuleTTL: 30 * time.Second},
			Kafka: KafkaConfig{
				Brokers:             []string{"localhost:9092"},
				RecommendationTopic: "pricing-recommendations",
				BulkAdjustTopic:     "price-bulk-adjust",
				GroupID:             "price-sync-worker",
			},
			Zookeeper: ZookeeperConfig{Servers: []string{"localhost:2181"}, SessionTimeout: 5 * time.Second, LockTimeout: 10 * time.Second},
		},
		Pricing: PricingConfig{StaleAfter: 24 * time.Hour, MaxAlternatives: 3, InventoryReference: 100, Concurrency: 8, RecommendationList: 50},
		Shopify: ShopifyConfig{APIVersion: "2024-01", Timeout: 10 * time.Second},
	}
}

var current atomic.Pointer[Config]

// Init 加载配置并设置为当前配置。加载失败时退回默认配置并记录告警。
func Init() *Config {
	cfg, err := Load(getEnv("CONFIG_PATH", defaultConfigPath))
	if err != nil {
		zlog.Warn().Err(err).Msg("⚠️ failed to load config file, falling back to defaults")
		d := DefaultConfig()
		applyEnv(&d)
		cfg = &d
	}
	current.Store(cfg)
	return cfg
}

// GetCurrentConfig 返回当前配置；未初始化时返回默认配置。
func GetCurrentConfig() *Config {
	if cfg := current.Load(); cfg != nil {
		return cfg
	}
	d := DefaultConfig()
	return &d
}

// Load 读取 YAML 配置文件并应用环境变量覆盖。文件不存在时只使用默认值和环境变量。
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	case os.IsNotExist(err):
		zlog.Info().Str("path", path).Msg("config file not found, using defaults and environment")
	default:
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	applyEnv(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.App.Port = getEnvInt("PORT", cfg.App.Port)
	cfg.App.LogLevel = getEnv("LOG_LEVEL", cfg.App.LogLevel)
	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Infra.Jaeger.Endpoint)

	cfg.Infra.Nacos.Enabled = getEnvBool("NACOS_ENABLED", cfg.Infra.Nacos.Enabled)
	cfg.Infra.Nacos.ServerAddrs = getEnv("NACOS_SERVER_ADDRS", cfg.Infra.Nacos.ServerAddrs)
	cfg.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", cfg.Infra.Nacos.Namespace)
	cfg.Infra.Nacos.Group = getEnv("NACOS_GROUP", cfg.Infra.Nacos.Group)

	cfg.Infra.MySQL.Enabled = getEnvBool("MYSQL_ENABLED", cfg.Infra.MySQL.Enabled)
	cfg.Infra.MySQL.Host = getEnv("MYSQL_HOST", cfg.Infra.MySQL.Host)
	cfg.Infra.MySQL.Port = getEnvInt("MYSQL_PORT", cfg.Infra.MySQL.Port)
	cfg.Infra.MySQL.User = getEnv("MYSQL_USER", cfg.Infra.MySQL.User)
	cfg.Infra.MySQL.Password = getEnv("MYSQL_PASSWORD", cfg.Infra.MySQL.Password)
	cfg.Infra.MySQL.Database = getEnv("MYSQL_DATABASE", cfg.Infra.MySQL.Database)

	cfg.Infra.Redis.Enabled = getEnvBool("REDIS_ENABLED", cfg.Infra.Redis.Enabled)
	cfg.Infra.Redis.Addrs = getEnv("REDIS_ADDRS", cfg.Infra.Redis.Addrs)
	cfg.Infra.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Infra.Redis.Password)

	cfg.Infra.Kafka.Enabled = getEnvBool("KAFKA_ENABLED", cfg.Infra.Kafka.Enabled)
	if v := getEnv("KAFKA_BROKERS", ""); v != "" {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}

	cfg.Infra.Zookeeper.Enabled = getEnvBool("ZK_ENABLED", cfg.Infra.Zookeeper.Enabled)
	if v := getEnv("ZK_SERVERS", ""); v != "" {
		cfg.Infra.Zookeeper.Servers = strings.Split(v, ",")
	}

	cfg.Shopify.SyncEnabled = getEnvBool("SHOPIFY_SYNC_ENABLED", cfg.Shopify.SyncEnabled)
	cfg.Shopify.ShopDomain = getEnv("SHOPIFY_SHOP_DOMAIN", cfg.Shopify.ShopDomain)
	cfg.Shopify.AccessToken = getEnv("SHOPIFY_ACCESS_TOKEN", cfg.Shopify.AccessToken)
	cfg.Shopify.ClientID = getEnv("SHOPIFY_CLIENT_ID", cfg.Shopify.ClientID)
	cfg.Shopify.ClientSecret = getEnv("SHOPIFY_CLIENT_SECRET", cfg.Shopify.ClientSecret)
}

// getEnv 从环境变量中读取配置，不存在时返回默认值。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		zlog.Warn().Str("key", key).Str("value", v).Msg("ignoring non-integer environment value")
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		zlog.Warn().Str("key", key).Str("value", v).Msg("ignoring non-boolean environment value")
		return fallback
	}
	return b
}
