package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Station  StationConfig  `mapstructure:"station"`
	Modbus   ModbusConfig   `mapstructure:"modbus"`
	Motion   MotionConfig   `mapstructure:"motion"`
	Network  NetworkConfig  `mapstructure:"network"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Input    InputConfig    `mapstructure:"input"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Profiles ProfilesConfig `mapstructure:"profiles"`
}

type StationConfig struct {
	ID        string           `mapstructure:"id"`
	Name      string           `mapstructure:"name"`
	Actuators []ActuatorConfig `mapstructure:"actuators"`
}

// ActuatorConfig describes one physical unit on the station bus.
// A station with an empty actuator list is coordination-only.
type ActuatorConfig struct {
	Name    string `mapstructure:"name"`
	UnitID  uint8  `mapstructure:"unit_id"`
	Address string `mapstructure:"address"` // host:port of the Modbus gateway
	Profile string `mapstructure:"profile"` // register profile name, e.g. "azd"
}

type ModbusConfig struct {
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

type MotionConfig struct {
	OperationID     int           `mapstructure:"operation_id"`
	HomingRequired  bool          `mapstructure:"homing_required"`
	HomingTimeout   time.Duration `mapstructure:"homing_timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	StartGrace      time.Duration `mapstructure:"start_grace"`
	CompletionLimit time.Duration `mapstructure:"completion_limit"`
	LoopDelay       time.Duration `mapstructure:"loop_delay"`
	RetractOnStop   bool          `mapstructure:"retract_on_stop"`
	RetractVelocity int           `mapstructure:"retract_velocity"`
}

type NetworkConfig struct {
	ListenPort int      `mapstructure:"listen_port"`
	SendPort   int      `mapstructure:"send_port"`
	IsSender   bool     `mapstructure:"is_sender"`
	Peers      []string `mapstructure:"peers"` // peer station IPs
}

type NotifyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"` // downstream playback target, host:port
}

type InputConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type ProfilesConfig struct {
	SearchPaths []string `mapstructure:"search_paths"`
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	// Defaults setzen
	viper.SetDefault("modbus.default_timeout", "1s")
	viper.SetDefault("motion.operation_id", 0)
	viper.SetDefault("motion.homing_required", true)
	viper.SetDefault("motion.homing_timeout", "100s")
	viper.SetDefault("motion.poll_interval", "100ms")
	viper.SetDefault("motion.start_grace", "3s")
	viper.SetDefault("motion.completion_limit", "5m")
	viper.SetDefault("motion.loop_delay", "2s")
	viper.SetDefault("motion.retract_velocity", 1000)
	viper.SetDefault("network.listen_port", 9000)
	viper.SetDefault("network.send_port", 9000)
	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("server.shutdown_timeout", "30s")
	viper.SetDefault("profiles.search_paths", []string{"profiles"})

	viper.AutomaticEnv()
	viper.SetEnvPrefix("STC") // Environment Variables mit Prefix STC_

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Station.ID == "" {
		return fmt.Errorf("station.id must be set")
	}
	for i, a := range c.Station.Actuators {
		if a.Name == "" {
			return fmt.Errorf("station.actuators[%d]: name must be set", i)
		}
		if a.Address == "" {
			return fmt.Errorf("station.actuators[%d]: address must be set", i)
		}
	}
	if c.Motion.PollInterval <= 0 {
		return fmt.Errorf("motion.poll_interval must be positive")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}
