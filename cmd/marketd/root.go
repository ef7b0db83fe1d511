package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/arkade-os/marketd/internal/config"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
)

const configFileName = "marketd"

// EnvReplacer replaces `-` to `_`.
// This is used to map flag like `--my-param` to environment variables like `MY_PARAM`.
var envReplacer = strings.NewReplacer("-", "_")

func init() {
	viper.SetEnvPrefix("MARKETD")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(envReplacer)
}

// applyConfigFile sources the global flags not given on the command line, nor through env
// vars, from the optional marketd.{yaml,json,toml} file in the datadir.
func applyConfigFile(c *cli.Context) error {
	v := viper.New()
	v.SetConfigName(configFileName)
	v.AddConfigPath(c.String(config.Datadir.Name))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %s", err)
	}

	for _, flag := range config.Flags {
		name := flag.Names()[0]
		if c.IsSet(name) || viper.IsSet(name) || !v.IsSet(name) {
			continue
		}
		if err := c.Set(name, v.GetString(name)); err != nil {
			return fmt.Errorf("invalid %s in config file: %s", name, err)
		}
	}
	return nil
}
