package main

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/socialdist/fednode/types"
)

type Config struct {
	Node         types.NodeConfig          `mapstructure:"node"`
	Server       Server                    `mapstructure:"server"`
	Peers        []types.PeerConfig        `mapstructure:"peers"`
	NodeAccounts []types.NodeAccountConfig `mapstructure:"nodeAccounts"`
}

type Server struct {
	Driver        string `mapstructure:"driver"`
	Dsn           string `mapstructure:"dsn"`
	RedisAddr     string `mapstructure:"redisAddr"`
	RedisDB       int    `mapstructure:"redisDB"`
	MemcachedAddr string `mapstructure:"memcachedAddr"`
	EnableTrace   bool   `mapstructure:"enableTrace"`
	TraceEndpoint string `mapstructure:"traceEndpoint"`
	PrettyLog     bool   `mapstructure:"prettyLog"`
}

// loadConfig reads the yaml files in order, later files overriding earlier ones.
// FEDNODE_ prefixed environment variables override both, e.g. FEDNODE_SERVER_DSN.
func loadConfig(paths []string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("fednode")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("node.hostApiUrl", "http://localhost:8000/api/")
	v.SetDefault("node.fetchTimeout", 10*time.Second)
	v.SetDefault("server.driver", "postgres")
	v.SetDefault("server.redisAddr", "localhost:6379")
	v.SetDefault("server.memcachedAddr", "localhost:11211")
	v.SetDefault("server.traceEndpoint", "localhost:4318")

	for i, path := range paths {
		v.SetConfigFile(path)
		var err error
		if i == 0 {
			err = v.ReadInConfig()
		} else {
			err = v.MergeInConfig()
		}
		if err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	if !strings.HasSuffix(config.Node.HostAPIURL, "/") {
		config.Node.HostAPIURL += "/"
	}
	return config, nil
}
