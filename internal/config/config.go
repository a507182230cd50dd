// Package config is the Config Registry (C6): the process-wide policy
// flags that shape pipeline behavior, SQL backend credentials, and the
// managed-parameter / seed-SA bootstrap lists. Values are decoded from
// viper's merged flag/env/file view via mapstructure, following the
// teacher's two-phase "unmarshal the easy part, then decode the raw
// nested blocks" pattern for the managed-parameter and seed-SA lists.
package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// SADBType selects the SA Store backend.
type SADBType string

const (
	SADBInMemory SADBType = "in_memory"
	SADBSql      SADBType = "sql"
)

// TLSMode selects the SQL backend's connection posture.
type TLSMode int

const (
	TLSNone TLSMode = iota
	TLSServerTLS
	TLSMutualTLS
)

func parseTLSMode(s string) (TLSMode, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return TLSNone, nil
	case "server", "servertls":
		return TLSServerTLS, nil
	case "mutual", "mutualtls":
		return TLSMutualTLS, nil
	default:
		return TLSNone, fmt.Errorf("config: unrecognized tls_mode %q", s)
	}
}

// SQLBackendConfig configures the external-SQL SA Store backend
// (spec section 6, configure_sql_backend).
type SQLBackendConfig struct {
	User     string `mapstructure:"user"`
	Pass     string `mapstructure:"pass"`
	Host     string `mapstructure:"host"`
	Database string `mapstructure:"database"`
	Port     int    `mapstructure:"port"`

	TLSModeRaw string `mapstructure:"tls_mode"`
	SSLCert    string `mapstructure:"ssl_cert"`
	SSLKey     string `mapstructure:"ssl_key"`
	SSLCA      string `mapstructure:"ssl_ca"`
	SSLCAPath  string `mapstructure:"ssl_capath"`
}

func (s SQLBackendConfig) TLSMode() (TLSMode, error) {
	return parseTLSMode(s.TLSModeRaw)
}

// DSN assembles a postgres connection string from the discrete
// fields. gorm's postgres driver accepts this key=value form directly.
// The tls_mode setting maps onto pgx's sslmode: None disables TLS,
// ServerTLS verifies the server against ssl_ca, MutualTLS additionally
// presents ssl_cert/ssl_key. ssl_capath has no pgx equivalent and is
// accepted for configuration compatibility only.
func (s SQLBackendConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		s.Host, s.Port, s.User, s.Pass, s.Database)
	mode, err := s.TLSMode()
	if err != nil {
		mode = TLSNone
	}
	switch mode {
	case TLSNone:
		dsn += " sslmode=disable"
	case TLSServerTLS, TLSMutualTLS:
		dsn += " sslmode=verify-full"
		if s.SSLCA != "" {
			dsn += " sslrootcert=" + s.SSLCA
		}
		if mode == TLSMutualTLS {
			if s.SSLCert != "" {
				dsn += " sslcert=" + s.SSLCert
			}
			if s.SSLKey != "" {
				dsn += " sslkey=" + s.SSLKey
			}
		}
	}
	return dsn
}

// ManagedParameterEntry seeds the Managed Parameter table at startup.
type ManagedParameterEntry struct {
	TFVN           uint8  `mapstructure:"tfvn"`
	SCID           uint16 `mapstructure:"scid"`
	VCID           uint8  `mapstructure:"vcid"`
	HasFECF        bool   `mapstructure:"has_fecf"`
	HasSegmentHdrs bool   `mapstructure:"has_segment_hdrs"`
}

// SeedSA seeds the SA Store with a preconfigured Security Association
// at startup -- useful for local development and the demo CLI/HTTP
// layers, mirroring the source's hardwired ek_ring/SA test scaffolding.
type SeedSA struct {
	SPI       uint16 `mapstructure:"spi"`
	TFVN      uint8  `mapstructure:"tfvn"`
	SCID      uint16 `mapstructure:"scid"`
	VCID      uint8  `mapstructure:"vcid"`
	HasMAPID  bool   `mapstructure:"has_mapid"`
	MAPID     uint8  `mapstructure:"mapid"`
	EKID      uint16 `mapstructure:"ekid"`
	AKID      uint16 `mapstructure:"akid"`
	State     string `mapstructure:"state"` // "unkeyed" | "keyed" | "operational"
	EST       bool   `mapstructure:"est"`
	AST       bool   `mapstructure:"ast"`
	SHIVFLen  uint8  `mapstructure:"shivf_len"`
	SHSNFLen  uint8  `mapstructure:"shsnf_len"`
	SHPLFLen  uint8  `mapstructure:"shplf_len"`
	STMACFLen uint8  `mapstructure:"stmacf_len"`
	ECSLen    uint8  `mapstructure:"ecs_len"`
	ECS       uint8  `mapstructure:"ecs"` // first descriptor byte; remaining 3 are reserved/zero
	ACSLen    uint8  `mapstructure:"acs_len"`
	ACS       uint8  `mapstructure:"acs"`
	ARCWLen   uint8  `mapstructure:"arcw_len"`
	ARCW      uint16 `mapstructure:"arcw"`
}

// Config is the full process-wide policy registry.
type Config struct {
	SADBType            SADBType `mapstructure:"sadb_type"`
	ProcessSDLSPDUs     bool     `mapstructure:"process_sdls_pdus"`
	HasPUSHdr           bool     `mapstructure:"has_pus_hdr"`
	IgnoreSAState       bool     `mapstructure:"ignore_sa_state"`
	IgnoreAntiReplay    bool     `mapstructure:"ignore_anti_replay"`
	UniqueSAPerMAPID    bool     `mapstructure:"unique_sa_per_mapid"`
	CheckFECF           bool     `mapstructure:"check_fecf"`
	CreateFECF          bool     `mapstructure:"create_fecf"`
	VCIDBitmask         uint8    `mapstructure:"vcid_bitmask"`
	IVRolloverRejectRaw bool     `mapstructure:"iv_rollover_reject"`

	SQL SQLBackendConfig `mapstructure:"sql"`

	ManagedParameters []ManagedParameterEntry `mapstructure:"managed_parameters"`

	// RawSeedSAs holds the as-yet-undecoded seed_sas blocks. Decoding
	// happens in a second pass (decodeSeedSAs) so a malformed single
	// entry reports its own index rather than failing the whole
	// viper.Unmarshal call opaquely.
	RawSeedSAs []map[string]interface{} `mapstructure:"seed_sas"`
	SeedSAs    []SeedSA
}

// Load decodes cfg from v's merged configuration view (flags, env,
// config file) and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.decodeSeedSAs(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeSeedSAs() error {
	for i, raw := range c.RawSeedSAs {
		var s SeedSA
		if err := mapstructure.Decode(raw, &s); err != nil {
			return fmt.Errorf("config: seed_sas[%d]: %w", i, err)
		}
		c.SeedSAs = append(c.SeedSAs, s)
	}
	c.RawSeedSAs = nil
	return nil
}

func (c *Config) validate() error {
	switch c.SADBType {
	case SADBInMemory, SADBSql:
	case "":
		c.SADBType = SADBInMemory
	default:
		return fmt.Errorf("config: sadb_type must be %q or %q, got %q", SADBInMemory, SADBSql, c.SADBType)
	}
	if c.SADBType == SADBSql {
		if c.SQL.Host == "" || c.SQL.Database == "" {
			return fmt.Errorf("config: sql.host and sql.database are required when sadb_type=sql")
		}
	}
	if _, err := c.SQL.TLSMode(); err != nil {
		return err
	}
	for i, mp := range c.ManagedParameters {
		if mp.SCID == 0 && mp.TFVN == 0 && mp.VCID == 0 {
			return fmt.Errorf("config: managed_parameters[%d]: tfvn/scid/vcid must not all be zero", i)
		}
	}
	return nil
}
