package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Room     RoomConfig     `mapstructure:"room"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Client   ClientConfig   `mapstructure:"client"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	MonitorAddress string `mapstructure:"monitor_address"`
}

type DatabaseConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Driver   string         `mapstructure:"driver"` // "gorm" 或 "pq"
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type RoomConfig struct {
	MaxPlayers     int           `mapstructure:"max_players"`
	TickInterval   time.Duration `mapstructure:"tick_interval"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	BroadcastState bool          `mapstructure:"broadcast_state"`
}

type AuthConfig struct {
	JWTSecret  string `mapstructure:"jwt_secret"`
	AllowGuest bool   `mapstructure:"allow_guest"`
}

type ClientConfig struct {
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	WindowSize    int           `mapstructure:"window_size"`
}

func LoadConfig(path string) (config *Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	setDefaults()

	viper.AutomaticEnv()

	// 配置文件缺失时使用默认值启动
	if err = viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, err
		}
	}

	err = viper.Unmarshal(&config)
	return
}

func setDefaults() {
	viper.SetDefault("server.http_address", ":8080")
	viper.SetDefault("server.rpc_address", ":8081")
	viper.SetDefault("server.monitor_address", ":9090")
	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.driver", "gorm")
	viper.SetDefault("database.postgres.host", "localhost")
	viper.SetDefault("database.postgres.port", 5432)
	viper.SetDefault("database.postgres.user", "postgres")
	viper.SetDefault("database.postgres.dbname", "roomserver")
	viper.SetDefault("room.max_players", 8)
	viper.SetDefault("room.tick_interval", 100*time.Millisecond)
	viper.SetDefault("room.idle_timeout", 5*time.Minute)
	viper.SetDefault("room.broadcast_state", false)
	viper.SetDefault("auth.allow_guest", true)
	viper.SetDefault("client.probe_interval", time.Second)
	viper.SetDefault("client.window_size", 3)
}
