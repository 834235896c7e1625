package config

import (
	"errors"
	"io/ioutil"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

var ConfigGlobal = DefaultConfig()

type Config struct {
	// account
	AccessKeyId     string `yaml:"accessKeyId"`
	AccessKeySecret string `yaml:"accessKeySecret"`

	// ots
	OtsEndpoint     string `yaml:"otsEndpoint"`
	OtsInstanceName string `yaml:"otsInstanceName"`
	OtsTimeToAlive  int    `yaml:"otsTimeToAlive"` // data expired time/second
	OtsMaxVersion   int    `yaml:"otsMaxVersion"`  // data column max version nums

	// db
	DbSqlite string `yaml:"dbSqlite"`
	PgDsn    string `yaml:"pgDsn"`

	// credential issuer
	MaxKeysPerOwner int    `yaml:"maxKeysPerOwner"`
	KeyPrefix       string `yaml:"keyPrefix"`
	CasRetry        int    `yaml:"casRetry"`

	// serving system shared token, empty disables the advance endpoint
	ServingToken string `yaml:"servingToken"`

	// identity headers set by the identity provider gateway, only trusted on
	// requests carrying the gateway token. Empty token ignores the headers.
	UserIdHeader   string `yaml:"userIdHeader"`
	UserNameHeader string `yaml:"userNameHeader"`
	GatewayToken   string `yaml:"gatewayToken"`

	// interval of the provider outcome reconcile pass, 0 disables it
	ReconcileIntervalSec int `yaml:"reconcileIntervalSec"`

	// log
	LogFile          string `yaml:"logFile"`
	LogRemoteService string `yaml:"logRemoteService"`
	ServerName       string `yaml:"serverName"`
}

func DefaultConfig() *Config {
	return &Config{
		DbSqlite:             "./oracle.sqlite3",
		OtsMaxVersion:        1,
		OtsTimeToAlive:       -1,
		MaxKeysPerOwner:      DefaultMaxKeys,
		KeyPrefix:            DefaultKeyPrefix,
		CasRetry:             5,
		UserIdHeader:         "X-User-Id",
		UserNameHeader:       "X-User-Name",
		ReconcileIntervalSec: 60,
		ServerName:           "ai-oracle",
	}
}

// InitConfig load config from yaml file fn, a missing file keeps the defaults.
// Environment variables (and a local .env) override file values.
func InitConfig(fn string) error {
	cfg := DefaultConfig()
	if fn != "" {
		body, err := ioutil.ReadFile(fn)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(body, cfg); err != nil {
				return err
			}
		case os.IsNotExist(err):
			logrus.Warnf("config file %s not found, use default config", fn)
		default:
			return err
		}
	}
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.Warnf("load .env fail err=%s", err.Error())
	}
	cfg.loadEnv()
	if err := cfg.check(); err != nil {
		return err
	}
	ConfigGlobal = cfg
	return nil
}

func (c *Config) loadEnv() {
	setIfEnv(&c.DbSqlite, DB_PATH)
	setIfEnv(&c.PgDsn, PG_DSN)
	setIfEnv(&c.AccessKeyId, ACCESS_KEY_ID)
	setIfEnv(&c.AccessKeySecret, ACCESS_KEY_SECRET)
	setIfEnv(&c.OtsEndpoint, OTS_ENDPOINT)
	setIfEnv(&c.OtsInstanceName, OTS_INSTANCE)
	setIfEnv(&c.ServingToken, SERVING_TOKEN)
	setIfEnv(&c.GatewayToken, GATEWAY_TOKEN)
	setIfEnv(&c.LogRemoteService, LOG_REMOTE)
	if v := os.Getenv(MAX_KEYS); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxKeysPerOwner = n
		} else {
			logrus.Warnf("%s=%s is not a number, ignored", MAX_KEYS, v)
		}
	}
}

func (c *Config) check() error {
	if c.MaxKeysPerOwner <= 0 {
		return errors.New("maxKeysPerOwner must be positive")
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
	if c.CasRetry <= 0 {
		c.CasRetry = 1
	}
	return nil
}

// EnableServing the advance endpoint rejects every call without a serving token
func (c *Config) EnableServing() bool {
	return c.ServingToken != ""
}

// TrustGateway identity headers are honoured only with a gateway token
func (c *Config) TrustGateway() bool {
	return c.GatewayToken != ""
}

// SendLogToRemote audit events go to the remote collector
func (c *Config) SendLogToRemote() bool {
	return c.LogRemoteService != ""
}

// UseOts tablestore needs endpoint, instance and credentials
func (c *Config) UseOts() bool {
	return c.OtsEndpoint != "" && c.OtsInstanceName != "" && c.AccessKeyId != "" && c.AccessKeySecret != ""
}

func setIfEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
