// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"pushpub/internal/item"
)

// DefaultEndpoint is the broker PUSH spec used when neither flag,
// environment nor config file names one.
const DefaultEndpoint = "tcp://localhost:5560"

// Config is the fully resolved invocation state handed to main.
type Config struct {
	Spec    string
	Verbose bool
	Params  item.Params
}

func BindFlags() {
	pflag.Int("code", 0, "HTTP response code to use")
	pflag.StringArrayP("header", "H", nil, "add HTTP response header, e.g. \"Content-Type: text/html\"")
	pflag.String("spec", "", "zmq PUSH spec of the broker")
	pflag.Bool("close", false, "close streaming requests")
	pflag.String("id", "", "payload ID")
	pflag.String("prev-id", "", "payload previous ID")
	pflag.String("sender", "", "sender meta value")
	pflag.Bool("patch", false, "content is JSON patch")
	pflag.String("config", "", "config file path")
	pflag.BoolP("verbose", "v", false, "enable debug diagnostics")
	pflag.Bool("version", false, "print version and exit")

	pflag.Parse()

	// Bind only flags the user actually set, so viper.IsSet keeps
	// answering "was this provided" for optional fields like --code.
	pflag.Visit(func(f *pflag.Flag) {
		viper.BindPFlag(f.Name, f)
	})
}

func SetupEnvironment() {
	viper.SetEnvPrefix("PUSHPUB")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = "/etc"
	}
	return filepath.Join(configDir, "pushpub", "config.toml")
}

// fileDefaults is the shape of the generated config file. Only keys a
// user plausibly wants pinned per machine are written out.
type fileDefaults struct {
	Spec   string `toml:"spec"`
	Sender string `toml:"sender"`
}

// GenerateConfig writes a default config file at path on first run.
// An existing file is left alone.
func GenerateConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("error checking config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	out, err := toml.Marshal(fileDefaults{Spec: DefaultEndpoint})
	if err != nil {
		return fmt.Errorf("error encoding default config: %w", err)
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// LoadConfig reads the config file at path into viper and arms the
// environment and default layers. Resolution order stays flag > env >
// file > default for every key.
func LoadConfig(path string) error {
	viper.SetConfigFile(path)
	viper.SetConfigType("toml")
	viper.SetDefault("spec", DefaultEndpoint)
	SetupEnvironment()

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// Resolve assembles the final configuration from viper's layered
// state plus the positional arguments left over after flag parsing:
// the channel and an optional content string.
func Resolve(args []string) (*Config, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("config: channel argument is required")
	}
	if len(args) > 2 {
		return nil, fmt.Errorf("config: unexpected argument %q", args[2])
	}

	p := item.Params{
		Channel: args[0],
		Headers: viper.GetStringSlice("header"),
		Close:   viper.GetBool("close"),
		ID:      viper.GetString("id"),
		PrevID:  viper.GetString("prev-id"),
		Sender:  viper.GetString("sender"),
		Patch:   viper.GetBool("patch"),
	}
	if len(args) == 2 {
		p.Content = args[1]
	}
	if viper.IsSet("code") {
		code := viper.GetInt("code")
		p.Code = &code
	}

	return &Config{
		Spec:    viper.GetString("spec"),
		Verbose: viper.GetBool("verbose"),
		Params:  p,
	}, nil
}
