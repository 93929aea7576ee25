package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/moyu-x/carve-refinery/internal"
	"github.com/moyu-x/carve-refinery/pkg/rules"
)

// EnvPrefix 环境变量前缀，例如 CARVE_REFINERY_KEEP=jpg,png
const EnvPrefix = "CARVE_REFINERY"

type Config struct {
	Root    string
	Keep    string
	Exclude string
	Delete  bool

	Monitor struct {
		Interval   time.Duration
		LockMarker string `mapstructure:"lock_marker"`
	}
	Reorganize struct {
		Enabled   bool
		BatchSize int `mapstructure:"batch_size"`
		Dedupe    bool
		Sniff     bool
	}
	Logging struct {
		Level string
		File  string
		Audit bool
		Dir   string
	}
	History struct {
		Enabled bool
		Path    string
	}
}

var cfg Config

// Load 读取配置。file 为空时在默认位置查找 config.yaml，找不到则只使用默认值、环境变量和命令行参数
func Load(file string) (*Config, error) {
	// .env 只补充尚未设置的环境变量
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if file != "" {
		viper.SetConfigFile(file)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")

		viper.AddConfigPath("$HOME/.carve-refinery")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/carve-refinery")
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SetDefaults 注册所有默认值，AutomaticEnv 只能覆盖已知的键
func SetDefaults(v *viper.Viper) {
	v.SetDefault("root", "")
	v.SetDefault("keep", "")
	v.SetDefault("exclude", "")
	v.SetDefault("delete", true)
	v.SetDefault("monitor.interval", internal.DefaultPollInterval)
	v.SetDefault("monitor.lock_marker", "")
	v.SetDefault("reorganize.enabled", false)
	v.SetDefault("reorganize.batch_size", internal.DefaultBatchSize)
	v.SetDefault("reorganize.dedupe", false)
	v.SetDefault("reorganize.sniff", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.audit", false)
	v.SetDefault("logging.dir", "")
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", internal.DefaultHistoryPath)
}

func Get() *Config {
	return &cfg
}

// Rules 解析保留和排除列表。禁用删除时返回空规则，所有文件都保留
func (c *Config) Rules() rules.Rules {
	if !c.Delete {
		return rules.New(nil, nil)
	}
	return rules.Parse(c.Keep, c.Exclude)
}

// Validate 在开始处理前检查配置
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Root) == "" {
		return internal.ConfigError("未指定输出根目录")
	}
	if c.Delete && !rules.Parse(c.Keep, c.Exclude).Active() {
		return internal.ConfigError("启用删除时必须指定保留或排除的扩展名")
	}
	if c.Monitor.Interval <= 0 {
		return internal.ConfigError("轮询间隔必须大于 0: %s", c.Monitor.Interval)
	}
	if c.Reorganize.BatchSize <= 0 {
		return internal.ConfigError("每个子目录的文件数必须大于 0: %d", c.Reorganize.BatchSize)
	}
	return nil
}
