package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Logger     LoggerConfig
	Storage    StorageConfig
	Redis      RedisConfig
	Browser    BrowserConfig
	Automation AutomationConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LoggerConfig struct {
	Level string
	Env   string
}

// StorageConfig selects the durable snapshot backend for the answer bank.
// Backend is either "file" or "redis".
type StorageConfig struct {
	Backend string
	Path    string
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// BrowserConfig controls how the agent attaches to the driven browser.
// If ControlURL is empty a local browser is launched.
type BrowserConfig struct {
	ControlURL  string
	StartURL    string
	Headless    bool
	NavTimeout  time.Duration
	SettleDelay time.Duration
}

type AutomationConfig struct {
	ClickSettle        time.Duration // wait after clicking a question item before scanning inputs
	OptionSettle       time.Duration // wait between sequential multi-select clicks
	AdvanceDelay       time.Duration // wait before moving to the next question
	TransitionPolls    int           // poll budget while waiting for a page transition
	TransitionInterval time.Duration
	RetryDelay         time.Duration // backoff for transient "element not found" retries
	MaxRetries         int
	DataWaitTimeout    time.Duration // reload fallback when no quiz data arrives on a quiz page
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if os.Getenv("ENV") == "test" {
		viper.AddConfigPath("../../config")
		viper.AddConfigPath("../../")
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env cover everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:         viper.GetInt("server.port"),
			ReadTimeout:  viper.GetDuration("server.read_timeout") * time.Second,
			WriteTimeout: viper.GetDuration("server.write_timeout") * time.Second,
		},
		Logger: LoggerConfig{
			Level: viper.GetString("logger.level"),
			Env:   viper.GetString("logger.env"),
		},
		Storage: StorageConfig{
			Backend: viper.GetString("storage.backend"),
			Path:    viper.GetString("storage.path"),
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Browser: BrowserConfig{
			ControlURL:  viper.GetString("browser.control_url"),
			StartURL:    viper.GetString("browser.start_url"),
			Headless:    viper.GetBool("browser.headless"),
			NavTimeout:  viper.GetDuration("browser.nav_timeout"),
			SettleDelay: viper.GetDuration("browser.settle_delay"),
		},
		Automation: AutomationConfig{
			ClickSettle:        viper.GetDuration("automation.click_settle"),
			OptionSettle:       viper.GetDuration("automation.option_settle"),
			AdvanceDelay:       viper.GetDuration("automation.advance_delay"),
			TransitionPolls:    viper.GetInt("automation.transition_polls"),
			TransitionInterval: viper.GetDuration("automation.transition_interval"),
			RetryDelay:         viper.GetDuration("automation.retry_delay"),
			MaxRetries:         viper.GetInt("automation.max_retries"),
			DataWaitTimeout:    viper.GetDuration("automation.data_wait_timeout"),
		},
	}

	// Override with environment variables if set
	if port := os.Getenv("SERVER_PORT"); port != "" {
		config.Server.Port = viper.GetInt("SERVER_PORT")
	}
	if redisAddress := os.Getenv("REDIS_ADDRESS"); redisAddress != "" {
		config.Redis.Address = redisAddress
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		config.Redis.Password = redisPassword
	}
	if backend := os.Getenv("STORAGE_BACKEND"); backend != "" {
		config.Storage.Backend = backend
	}
	if path := os.Getenv("STORAGE_PATH"); path != "" {
		config.Storage.Path = path
	}
	if controlURL := os.Getenv("BROWSER_CONTROL_URL"); controlURL != "" {
		config.Browser.ControlURL = controlURL
	}

	return config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8090)
	viper.SetDefault("server.read_timeout", 10)
	viper.SetDefault("server.write_timeout", 10)
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.env", "development")
	viper.SetDefault("storage.backend", "file")
	viper.SetDefault("storage.path", "data/exam_store.json")
	viper.SetDefault("redis.address", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("browser.start_url", "https://studywisdomh5.zhihuishu.com/study/mastery")
	viper.SetDefault("browser.headless", false)
	viper.SetDefault("browser.nav_timeout", 30*time.Second)
	viper.SetDefault("browser.settle_delay", 2*time.Second)
	viper.SetDefault("automation.click_settle", 500*time.Millisecond)
	viper.SetDefault("automation.option_settle", 50*time.Millisecond)
	viper.SetDefault("automation.advance_delay", 1*time.Second)
	viper.SetDefault("automation.transition_polls", 20)
	viper.SetDefault("automation.transition_interval", 500*time.Millisecond)
	viper.SetDefault("automation.retry_delay", 2*time.Second)
	viper.SetDefault("automation.max_retries", 3)
	viper.SetDefault("automation.data_wait_timeout", 3*time.Second)
}
