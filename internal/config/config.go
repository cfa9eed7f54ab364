// Package config reads the service configuration from configs/config.yaml and MTUA_
// environment variables.
package config

import (
	"bytes"
	_ "embed"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/log"
)

//go:embed defaults.yaml
var defaultConfig []byte

// EnvPrefix prefixes every environment override, e.g. MTUA_SERVER_PORT.
const EnvPrefix = "MTUA"

type Config struct {
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Model    Model    `mapstructure:"model"`
	Dispatch Dispatch `mapstructure:"dispatch"`
	MQTT     MQTT     `mapstructure:"mqtt"`
	HTTP     HTTP     `mapstructure:"http"`
	Devices  []Device `mapstructure:"devices"`
}

type Logger struct {
	Level string `mapstructure:"level"`
}

type User struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type Certificate struct {
	AdditionalHosts []string `mapstructure:"hosts"`
	AdditionalIPs   []string `mapstructure:"ips"`
}

// Server configures the OPC UA server.
type Server struct {
	Enabled     bool        `mapstructure:"enabled"`
	Host        string      `mapstructure:"host"`
	Port        int         `mapstructure:"port"`
	PKIDir      string      `mapstructure:"pkiDir"`
	Users       []User      `mapstructure:"users"`
	Certificate Certificate `mapstructure:"certificate"`
}

// Model selects extra model files and how instances are identified.
type Model struct {
	Files        []string      `mapstructure:"files"`
	IDScheme     string        `mapstructure:"idScheme"`
	CacheTTL     time.Duration `mapstructure:"cacheTTL"`
	InitOptional bool          `mapstructure:"initOptional"`
}

type Dispatch struct {
	Interval time.Duration `mapstructure:"interval"`
}

type MQTT struct {
	Enabled     bool          `mapstructure:"enabled"`
	URL         string        `mapstructure:"url"`
	User        string        `mapstructure:"user"`
	Password    string        `mapstructure:"password"`
	ClientID    string        `mapstructure:"clientID"`
	QoS         byte          `mapstructure:"qos"`
	Retain      bool          `mapstructure:"retain"`
	TopicPrefix string        `mapstructure:"topicPrefix"`
	KeepAlive   uint16        `mapstructure:"keepAlive"`
	RetryDelay  time.Duration `mapstructure:"retryDelay"`
}

type HTTP struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Device is an MTConnect device to instantiate at startup.
type Device struct {
	Name           string      `mapstructure:"name"`
	Manufacturer   string      `mapstructure:"manufacturer"`
	SerialNumber   string      `mapstructure:"serialNumber"`
	SampleInterval float64     `mapstructure:"sampleInterval"`
	Components     []Component `mapstructure:"components"`
	Samples        []Sample    `mapstructure:"samples"`
}

type Component struct {
	Name    string   `mapstructure:"name"`
	Type    string   `mapstructure:"type"`
	Model   string   `mapstructure:"model"`
	Samples []Sample `mapstructure:"samples"`
}

// Sample is a simulated sample data item.
type Sample struct {
	Name      string        `mapstructure:"name"`
	Category  string        `mapstructure:"category"`
	Units     string        `mapstructure:"units"`
	Mean      float64       `mapstructure:"mean"`
	StdDev    float64       `mapstructure:"stdDev"`
	DelayMin  time.Duration `mapstructure:"delayMin"`
	DelayMax  time.Duration `mapstructure:"delayMax"`
	Randomize bool          `mapstructure:"randomize"`
}

// Load reads the built-in defaults, merges config.yaml from the first of paths that has
// one (./configs and /configs when none are given) and applies MTUA_ environment
// overrides. A missing file is not an error.
func Load(logger *zap.SugaredLogger, paths ...string) (*Config, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaultConfig)); err != nil {
		return nil, errors.Wrap(err, "built-in defaults")
	}

	v.SetConfigName("config")
	if len(paths) == 0 {
		paths = []string{"./configs", "/configs"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "fatal error config file")
		}
		logger.Warn(log.Colorize("Config not found ❌ Using default values 🔧", log.Magenta))
	} else {
		logger.Info(log.Colorize("Config Found : Loading Config ⌛ ", log.Cyan), v.ConfigFileUsed())
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unable to decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return errors.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.MQTT.QoS > 2 {
		return errors.Errorf("mqtt.qos %d out of range", c.MQTT.QoS)
	}
	if c.MQTT.Enabled {
		if _, err := url.Parse(c.MQTT.URL); err != nil || c.MQTT.URL == "" {
			return errors.Errorf("mqtt.url %q is not a valid url", c.MQTT.URL)
		}
	}
	if c.Dispatch.Interval <= 0 {
		return errors.Errorf("dispatch.interval must be positive, got %s", c.Dispatch.Interval)
	}
	seen := map[string]bool{}
	for _, d := range c.Devices {
		if d.Name == "" {
			return errors.New("device without name")
		}
		if seen[d.Name] {
			return errors.Errorf("device %s is configured twice", d.Name)
		}
		seen[d.Name] = true
		for _, s := range allSamples(d) {
			if s.DelayMax < s.DelayMin {
				return errors.Errorf("sample %s of %s: delayMax is below delayMin", s.Name, d.Name)
			}
		}
	}
	return nil
}

func allSamples(d Device) []Sample {
	out := append([]Sample(nil), d.Samples...)
	for _, c := range d.Components {
		out = append(out, c.Samples...)
	}
	return out
}
