package server

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// NewViper produces a Viper instance configured with the hub's conventions.
// The applicationName is used as the configuration file name, the
// environment prefix, and to generate the path under /etc and $HOME to look
// for configuration files.  Automatic environment mode is turned on.
func NewViper(applicationName string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(applicationName)
	v.AddConfigPath(fmt.Sprintf("/etc/%s", applicationName))
	v.AddConfigPath(fmt.Sprintf("$HOME/.%s", applicationName))
	v.AddConfigPath(".")

	v.SetEnvPrefix(applicationName)
	v.AutomaticEnv()

	return v
}

// NewFlagSet produces the standard flag set for the hub daemon, containing
// the configuration file flag.
func NewFlagSet(applicationName string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(applicationName, pflag.ContinueOnError)
	fs.StringP(FileFlagName, FileFlagShorthand, "",
		"the configuration file to use; overrides the configuration search path")
	return fs
}

// ParseAndBind parses the given flag set using the supplied arguments and
// then binds the flag set to the specified Viper instance.  If arguments is
// nil, os.Args is used instead.
func ParseAndBind(v *viper.Viper, flagSet *pflag.FlagSet, arguments []string) error {
	if arguments == nil {
		arguments = os.Args[1:]
	}

	if err := flagSet.Parse(arguments); err != nil {
		return err
	}

	return v.BindPFlags(flagSet)
}

// decodeOptions are the mapstructure hooks applied when unmarshalling
// configuration, chiefly so durations may be written as strings like "45s".
func decodeOptions() viper.DecoderConfigOption {
	return viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)
}

// Unmarshal decodes one configuration subtree into the given value using
// the hub's decode hooks.  A missing subtree leaves the value untouched,
// which is not an error: every options type has usable zero-value defaults.
func Unmarshal(v *viper.Viper, key string, value interface{}) error {
	if !v.IsSet(key) {
		return nil
	}

	return v.UnmarshalKey(key, value, decodeOptions())
}

// Initialize performs the standard bootstrap sequence: parse flags, load
// the configuration file (if any), unmarshal the server Config, and build
// the zap logger from the log subtree.
//
// A missing configuration file is not an error; defaults apply.  Any other
// read or decode failure is returned.
func Initialize(applicationName string, arguments []string, flagSet *pflag.FlagSet) (*viper.Viper, *Config, *zap.Logger, error) {
	if flagSet == nil {
		flagSet = NewFlagSet(applicationName)
	}

	v := NewViper(applicationName)
	if err := ParseAndBind(v, flagSet, arguments); err != nil {
		return nil, nil, nil, err
	}

	if file := v.GetString(FileFlagName); len(file) > 0 {
		v.SetConfigFile(file)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, missing := err.(viper.ConfigFileNotFoundError); !missing {
			return nil, nil, nil, err
		}
	}

	c := new(Config)
	if err := v.Unmarshal(c, decodeOptions()); err != nil {
		return nil, nil, nil, err
	}

	logger, err := c.Log.Build()
	if err != nil {
		return nil, nil, nil, err
	}

	return v, c, logger, nil
}
