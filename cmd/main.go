// cmd/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"pushpub/internal/config"
	"pushpub/internal/item"
	"pushpub/internal/transport"
	"pushpub/pkg/tnetstring"
)

var version = "dev"

func main() {
	config.BindFlags()

	if viper.GetBool("version") {
		fmt.Println("pushpub " + version)
		return
	}

	logger := newLogger(viper.GetBool("verbose"))

	path := viper.GetString("config")
	if path == "" {
		path = config.DefaultPath()
	}
	if err := config.GenerateConfig(path); err != nil {
		logger.Warn().Err(err).Msg("could not generate config file")
	}
	if err := config.LoadConfig(path); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("could not read config file")
	}

	cfg, err := config.Resolve(pflag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	it, err := item.Build(cfg.Params)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	buf, err := tnetstring.Marshal(it.Value())
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logger.Debug().
		Str("spec", cfg.Spec).
		Str("channel", cfg.Params.Channel).
		Int("bytes", len(buf)).
		Msg("sending publish item")

	if err := transport.Publish(context.Background(), cfg.Spec, buf); err != nil {
		logger.Fatal().Err(err).Msg("send failed")
	}

	fmt.Println("Published")
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).Level(level).With().Timestamp().Str("app", "pushpub").Logger()
}
