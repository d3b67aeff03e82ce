package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/inconshreveable/log15"
	"gopkg.in/yaml.v2"
)

var ErrInvalidConfig = errors.New("invalid config")

const (
	DefaultCommandQueue      = "list.commands"
	DefaultReplyQueue        = "list.replies"
	DefaultLogLevel          = "debug"
	DefaultClientIdleSeconds = 10
)

type Config struct {
	AmqpUrl               string `yaml:"AMQP_SERVER_URL"`
	LogFilePath           string `yaml:"logFile"`
	LogLevel              string `yaml:"logLevel"`
	ClientsInputPath      string `yaml:"clientsInputPath"`
	ServerWaitTimeSeconds int64  `yaml:"serverWaitTimeSeconds"`
	ClientIdleSeconds     int64  `yaml:"clientIdleSeconds"`
	CommandQueue          string `yaml:"commandQueue"`
	ReplyQueue            string `yaml:"replyQueue"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return ParseConfig(data)
}

// ParseConfig substitutes environment variables in data, decodes it and
// applies the defaults.
func ParseConfig(data []byte) (*Config, error) {
	confContent := []byte(os.ExpandEnv(string(data)))

	config := &Config{}

	err := yaml.Unmarshal(confContent, config)
	if err != nil {
		return nil, err
	}

	config.setDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) setDefaults() {
	if c.CommandQueue == "" {
		c.CommandQueue = DefaultCommandQueue
	}

	if c.ReplyQueue == "" {
		c.ReplyQueue = DefaultReplyQueue
	}

	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}

	if c.ClientIdleSeconds == 0 {
		c.ClientIdleSeconds = DefaultClientIdleSeconds
	}
}

func (c *Config) Validate() error {
	if c.AmqpUrl == "" {
		return fmt.Errorf("%w: AMQP_SERVER_URL is required", ErrInvalidConfig)
	}

	if c.ServerWaitTimeSeconds < 0 {
		return fmt.Errorf("%w: serverWaitTimeSeconds must not be negative", ErrInvalidConfig)
	}

	if c.ClientIdleSeconds < 0 {
		return fmt.Errorf("%w: clientIdleSeconds must not be negative", ErrInvalidConfig)
	}

	if c.CommandQueue == c.ReplyQueue {
		return fmt.Errorf("%w: commandQueue and replyQueue must differ", ErrInvalidConfig)
	}

	if _, err := log15.LvlFromString(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return nil
}

// Level returns the parsed log level. Validate has already checked it.
func (c *Config) Level() log15.Lvl {
	lvl, err := log15.LvlFromString(c.LogLevel)
	if err != nil {
		return log15.LvlDebug
	}

	return lvl
}
