package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	DB      DBConfig
	Session SessionConfig
	Chat    ChatConfig
}

type ServerConfig struct {
	Address string
}

type DBConfig struct {
	Host     string
	User     string
	Password string
	Name     string
	Port     int
}

type SessionConfig struct {
	TokenSecret string
	TTLHours    int
}

// ChatConfig holds the tenant table and the room-level knobs that must stay
// configuration, not code: the set of known platforms (the cross-platform
// broadcast set spans all of them) and the id of the announcement room that
// only release-capable roles may post in.
type ChatConfig struct {
	Platforms     []int
	ReleaseRoomID uint
}

// TTL returns the session lifetime extension applied on every validated use.
func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLHours) * time.Hour
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.SetDefault("server.address", ":5010")
	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.user", "calio")
	viper.SetDefault("db.name", "calio")
	viper.SetDefault("db.port", 5432)
	viper.SetDefault("session.ttlhours", 4)
	viper.SetDefault("session.tokensecret", "calio-dev-secret")
	viper.SetDefault("chat.platforms", []int{1, 41, 42, 43, 61, 81, 82})
	viper.SetDefault("chat.releaseroomid", 301)

	if err := viper.ReadInConfig(); err != nil {
		// A missing file is fine, the defaults above cover local runs.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
