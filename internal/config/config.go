package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	Secret     string        `mapstructure:"secret"`
	Log        LogConfig     `mapstructure:"log"`
	DB         DBConfig      `mapstructure:"db"`
	Game       GameConfig    `mapstructure:"game"`
	Upload     UploadConfig  `mapstructure:"upload"`
	Relay      RelayConfig   `mapstructure:"relay"`
	Ranks      RanksConfig   `mapstructure:"ranks"`
	CORS       CORSConfig    `mapstructure:"cors"`
	Shutdown   time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// File, when set, also receives every entry as JSON.
	File string `mapstructure:"file"`
}

type DBConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// GameConfig holds the limits applied when a create-room request leaves them out.
type GameConfig struct {
	Capacity   int `mapstructure:"capacity"`
	MinMembers int `mapstructure:"min_members"`
	Rounds     int `mapstructure:"rounds"`
}

type UploadConfig struct {
	Dir      string `mapstructure:"dir"`
	BaseURL  string `mapstructure:"base_url"`
	MaxBytes int64  `mapstructure:"max_bytes"`
}

type RelayConfig struct {
	ReadLimit        int64         `mapstructure:"read_limit"`
	PingPeriod       time.Duration `mapstructure:"ping_period"`
	SendBuffer       int           `mapstructure:"send_buffer"`
	ChatLimit        int           `mapstructure:"chat_limit"`
	ChatInterval     time.Duration `mapstructure:"chat_interval"`
	DisconnectPolicy string        `mapstructure:"disconnect_policy"`
}

type RanksConfig struct {
	AllowPartial bool `mapstructure:"allow_partial"`
}

// CORSConfig lists browser origins allowed to call the API; "*" allows any.
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "change-me")
	v.SetDefault("shutdown_timeout", "5s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "rooms.db")
	v.SetDefault("db.max_open_conns", 10)

	v.SetDefault("game.capacity", 6)
	v.SetDefault("game.min_members", 2)
	v.SetDefault("game.rounds", 3)

	v.SetDefault("upload.dir", "./uploads")
	v.SetDefault("upload.base_url", "/uploads")
	v.SetDefault("upload.max_bytes", 5<<20)

	v.SetDefault("relay.read_limit", 32768)
	v.SetDefault("relay.ping_period", "54s")
	v.SetDefault("relay.send_buffer", 32)
	v.SetDefault("relay.chat_limit", 5)
	v.SetDefault("relay.chat_interval", "3s")
	v.SetDefault("relay.disconnect_policy", "keep")

	v.SetDefault("ranks.allow_partial", false)

	v.SetDefault("cors.allow_origins", []string{"*"})
}

func Load() (*Config, error) {
	// Same role as dotenv in the old deploy: seed the process env, never override it.
	if err := gotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg("failed to read .env")
	}

	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("ROOMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("db", cfg.DB.Driver).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	g := c.Game
	if g.Capacity < 1 || g.MinMembers < 1 || g.MinMembers > g.Capacity || g.Rounds < 1 {
		return fmt.Errorf("invalid game limits: capacity=%d min_members=%d rounds=%d", g.Capacity, g.MinMembers, g.Rounds)
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("invalid upload.max_bytes: %d", c.Upload.MaxBytes)
	}
	return nil
}
