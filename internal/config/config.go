package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel string `yaml:"log-level" env-default:"info"`
	HTTPPort string `yaml:"http-port" env-default:"8080"`
	Redis    Redis  `yaml:"redis"`
	Rooms    Rooms  `yaml:"rooms"`
}

type Redis struct {
	Enabled bool   `yaml:"enabled" env-default:"false"`
	Host    string `yaml:"host" env-default:"localhost"`
	Port    string `yaml:"port" env-default:"6379"`
}

// Rooms holds the lifecycle knobs of the room garbage collector.
type Rooms struct {
	GCInterval   time.Duration `yaml:"gc-interval" env-default:"10m"`
	MaxAge       time.Duration `yaml:"max-age" env-default:"2h"`
	AbandonedAge time.Duration `yaml:"abandoned-age" env-default:"10m"`
	WaitingAge   time.Duration `yaml:"waiting-age" env-default:"5m"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
