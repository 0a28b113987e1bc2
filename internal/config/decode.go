package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// DecodeConfig holds configuration for the decode command, which re-decodes
// raw log files offline.
type DecodeConfig struct {
	In        string
	Out       string
	Contracts string
	ABIDir    string
	Object    ObjectConfig
	Addresses []string
	Topic0    []string
	LogLevel  string
}

// LoadDecode merges config file, environment variables, and flags into DecodeConfig.
func LoadDecode(cfgFile string, flags *pflag.FlagSet) (DecodeConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"out":       "./data/redecoded",
		"log-level": "info",
	})
	if err != nil {
		return DecodeConfig{}, err
	}

	cfg := DecodeConfig{
		In:        v.GetString("in"),
		Out:       v.GetString("out"),
		Contracts: v.GetString("contracts"),
		ABIDir:    v.GetString("abi-dir"),
		Object:    objectFrom(v.GetString("s3-endpoint"), v.GetString("s3-access-key"), v.GetString("s3-secret-key"), v.GetString("s3-bucket"), v.GetString("s3-prefix"), v.GetBool("s3-use-ssl")),
		Addresses: getStringSlice(v, "address"),
		Topic0:    getStringSlice(v, "topic0"),
		LogLevel:  v.GetString("log-level"),
	}

	if cfg.In == "" {
		return DecodeConfig{}, fmt.Errorf("input path is required")
	}
	if cfg.Out == "" {
		return DecodeConfig{}, fmt.Errorf("output path is required")
	}
	if cfg.Contracts == "" {
		return DecodeConfig{}, fmt.Errorf("contracts manifest path is required")
	}
	return cfg, nil
}
