package meetup

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const ConfigFileName = "meetup.yaml"

const DefaultApiUrl = "https://api.meetup-ui.app"
const DefaultChatUrl = "wss://chat.meetup-ui.app/comments"
const DefaultPageSize = 10

type Config struct {
	Conf struct {
		ApiUrl   string `yaml:"apiUrl"`
		ChatUrl  string `yaml:"chatUrl"`
		PageSize int    `yaml:"pageSize"`
	}
}

func DefaultConfig() *Config {
	c := &Config{}
	c.Conf.ApiUrl = DefaultApiUrl
	c.Conf.ChatUrl = DefaultChatUrl
	c.Conf.PageSize = DefaultPageSize
	return c
}

// reads the config file at `path`, falling back to defaults when the file
// is absent. environment variables override file values.
func ReadConfig(path string) (*Config, error) {
	c := DefaultConfig()

	buf, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(buf, c); err != nil {
			return nil, fmt.Errorf("in config file: %w", err)
		}
	}

	if envApiUrl := os.Getenv("MEETUP_API_URL"); envApiUrl != "" {
		c.Conf.ApiUrl = envApiUrl
	}
	if envChatUrl := os.Getenv("MEETUP_CHAT_URL"); envChatUrl != "" {
		c.Conf.ChatUrl = envChatUrl
	}
	if envPageSize := os.Getenv("MEETUP_PAGE_SIZE"); envPageSize != "" {
		pageSize, err := strconv.Atoi(envPageSize)
		if err != nil {
			return nil, fmt.Errorf("MEETUP_PAGE_SIZE: %w", err)
		}
		c.Conf.PageSize = pageSize
	}

	if c.Conf.PageSize <= 0 {
		return nil, fmt.Errorf("pageSize must be positive, got %d", c.Conf.PageSize)
	}

	return c, nil
}
