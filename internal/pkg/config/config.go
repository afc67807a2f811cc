package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

var GlobalConfig *Config

// Config 全局配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Crypto   CryptoConfig   `mapstructure:"crypto"`
	Log      LogConfig      `mapstructure:"log"`
	Core     CoreConfig     `mapstructure:"core"`
	Trigger  TriggerConfig  `mapstructure:"trigger"`
	Repo     RepoConfig     `mapstructure:"repo"`
	DB       interface{}    // 数据库连接,运行时注入
}

// ServerConfig 服务配置
type ServerConfig struct {
	Name string `mapstructure:"name"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	LogLevel        string `mapstructure:"log_level"`         // SQL日志级别: silent/error/warn/info
}

// CryptoConfig 加密配置
type CryptoConfig struct {
	AESKey string `mapstructure:"aes_key"` // 32字节
}

// LogConfig 日志配置
type LogConfig struct {
	Level    string `mapstructure:"level"`  // debug, info, warn, error
	Format   string `mapstructure:"format"` // json, console
	Output   string `mapstructure:"output"` // stdout, file
	FilePath string `mapstructure:"file_path"`
}

// CoreConfig 轮询编排配置
type CoreConfig struct {
	ScanInterval     string `mapstructure:"scan_interval"`      // 全量对账扫描间隔
	PollInterval     string `mapstructure:"poll_interval"`      // 单实例状态轮询间隔
	WaveWaitInterval string `mapstructure:"wave_wait_interval"` // 波次等待循环间隔
	WaveTimeout      string `mapstructure:"wave_timeout"`       // 单波次等待超时
	LogTailLimit     int    `mapstructure:"log_tail_limit"`     // 日志拉取行数
}

// ParseDurations 解析各时间间隔(非法值取默认)
func (c *CoreConfig) ParseDurations() (scan, poll, waveWait, waveTimeout time.Duration) {
	scan = parseDurationOr(c.ScanInterval, 30*time.Second)
	poll = parseDurationOr(c.PollInterval, 10*time.Second)
	waveWait = parseDurationOr(c.WaveWaitInterval, 5*time.Second)
	waveTimeout = parseDurationOr(c.WaveTimeout, 30*time.Minute)
	return
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// TriggerConfig 部署触发服务配置
type TriggerConfig struct {
	BaseURL     string `mapstructure:"base_url"`     // TriggerService 地址
	Timeout     string `mapstructure:"timeout"`      // 请求超时(部署触发可能很长)
	RefreshCron string `mapstructure:"refresh_cron"` // 凭据prime状态刷新cron表达式
}

// RepoConfig 代码仓库平台配置
type RepoConfig struct {
	Platform string `mapstructure:"platform"` // 平台类型: gitea/gitlab/github
	BaseURL  string `mapstructure:"base_url"` // 平台地址(github可留空)
	Token    string `mapstructure:"token"`    // 访问令牌
}

// Load 加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// 设置配置文件路径
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// 读取环境变量
	v.AutomaticEnv()

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 解析配置
	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// 设置全局配置
	GlobalConfig = config

	return config, nil
}

// GetDSN 获取数据库DSN
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.Username,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}
