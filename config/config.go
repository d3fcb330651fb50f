// Package config loads the certanchord configuration from a JSON file and the
// environment.
//
// Precedence, lowest first: built-in defaults, the JSON file, a .env file in
// the working directory (skipped when ENV=prod), and process environment
// variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"xdao.co/certanchor/chain"
	"xdao.co/certanchor/compliance"
	"xdao.co/certanchor/keys"
	"xdao.co/certanchor/storage/casconfig"
)

const (
	DriverREST     = "rest"
	DriverPostgres = "postgres"
)

type Config struct {
	Environment string           `json:"environment"`
	Server      ServerConfig     `json:"server"`
	Logging     LoggingConfig    `json:"logging"`
	Chain       ChainConfig      `json:"chain"`
	Records     RecordsConfig    `json:"records"`
	CAS         casconfig.Config `json:"cas"`
	Kafka       KafkaConfig      `json:"kafka"`
	Auth        AuthConfig       `json:"auth"`
	Keys        KeysConfig       `json:"keys"`
}

type ServerConfig struct {
	Addr            string   `json:"addr"`
	ReadTimeout     Duration `json:"read_timeout"`
	WriteTimeout    Duration `json:"write_timeout"`
	IdleTimeout     Duration `json:"idle_timeout"`
	ShutdownTimeout Duration `json:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level string `json:"level"`
}

type ChainConfig struct {
	Network         chain.Network `json:"network"`
	ContractAddress string        `json:"contract_address"`
	// ReadRPCURL serves eth_call for the resolver.
	ReadRPCURL string `json:"read_rpc_url"`
	// WalletRPCURL is an EIP-1193 capable endpoint holding the signing account.
	WalletRPCURL   string   `json:"wallet_rpc_url"`
	PollInterval   Duration `json:"poll_interval"`
	ReceiptTimeout Duration `json:"receipt_timeout"`
	ABIFile        string   `json:"abi_file,omitempty"`
	Compliance     string   `json:"compliance,omitempty"`
}

type RecordsConfig struct {
	Driver          string   `json:"driver"`
	BaseURL         string   `json:"base_url,omitempty"`
	Token           string   `json:"token,omitempty"`
	DSN             string   `json:"dsn,omitempty"`
	MaxIdleConns    int      `json:"max_idle_conns,omitempty"`
	MaxOpenConns    int      `json:"max_open_conns,omitempty"`
	ConnMaxLifetime Duration `json:"conn_max_lifetime,omitempty"`
}

type KafkaConfig struct {
	Brokers  []string `json:"brokers,omitempty"`
	Topic    string   `json:"topic,omitempty"`
	Username string   `json:"username,omitempty"`
	Password string   `json:"password,omitempty"`
	TLS      bool     `json:"tls,omitempty"`
}

// Enabled reports whether lifecycle events should be published.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 && k.Topic != "" }

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
	Issuer    string `json:"issuer,omitempty"`
}

// KeysConfig selects the local key store used to sign metadata documents.
// Signing is off when Root is empty.
type KeysConfig struct {
	Directory string `json:"directory,omitempty"`
	Root      string `json:"root,omitempty"`
	Alg       string `json:"alg,omitempty"`
	HashAlg   string `json:"hash_alg,omitempty"`
}

// Duration accepts "10s" style strings or integer nanoseconds in JSON.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("config: invalid duration %s", b)
	}
	*d = Duration(n)
	return nil
}

// Default returns a configuration that runs locally against an in-memory CAS.
func Default() Config {
	return Config{
		Environment: "development",
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     Duration(10 * time.Second),
			WriteTimeout:    Duration(5 * time.Minute),
			IdleTimeout:     Duration(120 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Logging: LoggingConfig{Level: "info"},
		Chain: ChainConfig{
			PollInterval:   Duration(2 * time.Second),
			ReceiptTimeout: Duration(5 * time.Minute),
			Compliance:     compliance.Permissive.String(),
		},
		Records: RecordsConfig{Driver: DriverREST},
		CAS:     casconfig.Default(),
		Keys:    KeysConfig{Alg: keys.AlgEd25519, HashAlg: keys.DefaultHashAlg},
	}
}

// Load reads path (optional) over the defaults and applies the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to open config file: %w", err)
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	if os.Getenv("ENV") != "prod" {
		if _, err := os.Stat(".env"); err == nil {
			if err := godotenv.Overload(); err != nil {
				return cfg, fmt.Errorf("failed to load .env: %w", err)
			}
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("ENV", &c.Environment)
	str("SERVER_ADDR", &c.Server.Addr)
	if port := strings.TrimSpace(getenv("SERVER_PORT")); port != "" {
		c.Server.Addr = ":" + port
	}
	str("LOG_LEVEL", &c.Logging.Level)
	str("CHAIN_ID", &c.Chain.Network.ChainID)
	str("CHAIN_CONTRACT_ADDRESS", &c.Chain.ContractAddress)
	str("CHAIN_READ_RPC_URL", &c.Chain.ReadRPCURL)
	str("CHAIN_WALLET_RPC_URL", &c.Chain.WalletRPCURL)
	str("CHAIN_ABI_FILE", &c.Chain.ABIFile)
	str("COMPLIANCE_MODE", &c.Chain.Compliance)
	str("RECORDS_DRIVER", &c.Records.Driver)
	str("RECORDS_BASE_URL", &c.Records.BaseURL)
	str("RECORDS_TOKEN", &c.Records.Token)
	str("DATABASE_DSN", &c.Records.DSN)
	if v := strings.TrimSpace(getenv("KAFKA_BROKER")); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	str("KAFKA_TOPIC", &c.Kafka.Topic)
	str("KAFKA_USERNAME", &c.Kafka.Username)
	str("KAFKA_PASSWORD", &c.Kafka.Password)
	if v := strings.TrimSpace(getenv("KAFKA_TLS")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: KAFKA_TLS: %w", err)
		}
		c.Kafka.TLS = b
	}
	if v := strings.TrimSpace(getenv("CAS_BACKENDS")); v != "" {
		backends, err := casconfig.ParseBackends(v)
		if err != nil {
			return fmt.Errorf("config: CAS_BACKENDS: %w", err)
		}
		c.CAS.Backends = backends
	}
	if v := strings.TrimSpace(getenv("CAS_WRITE_POLICY")); v != "" {
		c.CAS.WritePolicy = casconfig.WritePolicy(v)
	}
	str("JWT_SECRET", &c.Auth.JWTSecret)
	str("KEYS_DIR", &c.Keys.Directory)
	str("KEYS_ROOT", &c.Keys.Root)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if err := c.Chain.Network.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("chain.network: %w", err))
	}
	if a := c.Chain.ContractAddress; a != "" && !common.IsHexAddress(a) {
		errs = append(errs, fmt.Errorf("chain.contract_address %q is not a hex address", a))
	}
	if c.Chain.ReadRPCURL == "" {
		errs = append(errs, errors.New("chain.read_rpc_url is required"))
	}
	if _, err := compliance.ParseMode(c.Chain.Compliance); err != nil {
		errs = append(errs, fmt.Errorf("chain.compliance: %w", err))
	}
	switch c.Records.Driver {
	case DriverREST:
		if c.Records.BaseURL == "" {
			errs = append(errs, errors.New("records.base_url is required for the rest driver"))
		}
	case DriverPostgres:
		if c.Records.DSN == "" {
			errs = append(errs, errors.New("records.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("records.driver %q is not one of rest, postgres", c.Records.Driver))
	}
	if err := c.CAS.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Kafka.Topic != "" && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required when kafka.topic is set"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	return errors.Join(errs...)
}

const redacted = "[REDACTED]"

// LogConfig logs the effective configuration with secrets removed.
func (c Config) LogConfig(logger *zap.Logger) {
	backends := make([]string, len(c.CAS.Backends))
	for i, b := range c.CAS.Backends {
		backends[i] = b.Name
		if b.ID != "" {
			backends[i] += "@" + b.ID
		}
	}
	logger.Info("Application configuration",
		zap.String("environment", c.Environment),
		zap.String("addr", c.Server.Addr),
		zap.Duration("read_timeout", c.Server.ReadTimeout.Std()),
		zap.Duration("write_timeout", c.Server.WriteTimeout.Std()),
		zap.String("chain_id", c.Chain.Network.ChainID),
		zap.String("chain_name", c.Chain.Network.Name),
		zap.String("contract_address", c.Chain.ContractAddress),
		zap.String("read_rpc_url", c.Chain.ReadRPCURL),
		zap.Bool("wallet_configured", c.Chain.WalletRPCURL != ""),
		zap.String("compliance", c.Chain.Compliance),
		zap.String("records_driver", c.Records.Driver),
		zap.String("records_base_url", c.Records.BaseURL),
		zap.String("records_token", mask(c.Records.Token)),
		zap.String("database_dsn", mask(c.Records.DSN)),
		zap.Strings("cas_backends", backends),
		zap.String("cas_write_policy", string(c.CAS.WritePolicy)),
		zap.Strings("kafka_brokers", c.Kafka.Brokers),
		zap.String("kafka_topic", c.Kafka.Topic),
		zap.String("kafka_password", mask(c.Kafka.Password)),
		zap.String("jwt_secret", mask(c.Auth.JWTSecret)),
		zap.Bool("document_signing", c.Keys.Root != ""),
	)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return redacted
}
