package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func loadFromMap(t *testing.T, m map[string]interface{}) (*Config, error) {
	t.Helper()
	v := viper.New()
	for k, val := range m {
		v.Set(k, val)
	}
	return Load(v)
}

func TestLoadDefaultsToInMemory(t *testing.T) {
	cfg, err := loadFromMap(t, map[string]interface{}{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SADBType != SADBInMemory {
		t.Errorf("expected default sadb_type %q, got %q", SADBInMemory, cfg.SADBType)
	}
}

func TestLoadRejectsUnknownSADBType(t *testing.T) {
	_, err := loadFromMap(t, map[string]interface{}{"sadb_type": "mongo"})
	if err == nil {
		t.Fatal("expected an error for an unrecognized sadb_type")
	}
}

func TestLoadRequiresSQLHostWhenSqlBackend(t *testing.T) {
	_, err := loadFromMap(t, map[string]interface{}{"sadb_type": "sql"})
	if err == nil {
		t.Fatal("expected an error when sql.host/database are missing")
	}
}

func TestLoadAcceptsSQLBackendWithHost(t *testing.T) {
	cfg, err := loadFromMap(t, map[string]interface{}{
		"sadb_type": "sql",
		"sql": map[string]interface{}{
			"host":     "db.example.com",
			"database": "sdls",
			"tls_mode": "server",
		},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	mode, err := cfg.SQL.TLSMode()
	if err != nil {
		t.Fatalf("TLSMode: %v", err)
	}
	if mode != TLSServerTLS {
		t.Errorf("expected TLSServerTLS, got %v", mode)
	}
}

func TestDSNReflectsTLSMode(t *testing.T) {
	base := SQLBackendConfig{User: "sdls", Pass: "secret", Host: "db", Database: "sadb", Port: 5432}

	plain := base
	if got := plain.DSN(); got != "host=db port=5432 user=sdls password=secret dbname=sadb sslmode=disable" {
		t.Errorf("unexpected plaintext DSN: %q", got)
	}

	mutual := base
	mutual.TLSModeRaw = "mutual"
	mutual.SSLCA = "/etc/ssl/ca.pem"
	mutual.SSLCert = "/etc/ssl/client.pem"
	mutual.SSLKey = "/etc/ssl/client.key"
	got := mutual.DSN()
	for _, want := range []string{"sslmode=verify-full", "sslrootcert=/etc/ssl/ca.pem", "sslcert=/etc/ssl/client.pem", "sslkey=/etc/ssl/client.key"} {
		if !strings.Contains(got, want) {
			t.Errorf("mutual-TLS DSN missing %q: %q", want, got)
		}
	}
}

func TestLoadDecodesManagedParametersAndSeedSAs(t *testing.T) {
	cfg, err := loadFromMap(t, map[string]interface{}{
		"managed_parameters": []map[string]interface{}{
			{"tfvn": 0, "scid": 3, "vcid": 0, "has_fecf": true, "has_segment_hdrs": false},
		},
		"seed_sas": []map[string]interface{}{
			{"spi": 1, "tfvn": 0, "scid": 3, "vcid": 0, "ekid": 130, "akid": 130, "est": true, "ast": true,
				"shivf_len": 12, "shsnf_len": 2, "stmacf_len": 16, "state": "operational"},
		},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.ManagedParameters) != 1 || cfg.ManagedParameters[0].SCID != 3 {
		t.Errorf("unexpected managed parameters: %+v", cfg.ManagedParameters)
	}
	if len(cfg.SeedSAs) != 1 || cfg.SeedSAs[0].SPI != 1 || cfg.SeedSAs[0].EKID != 130 {
		t.Errorf("unexpected seed SAs: %+v", cfg.SeedSAs)
	}
}

func TestLoadRejectsAllZeroManagedParameter(t *testing.T) {
	_, err := loadFromMap(t, map[string]interface{}{
		"managed_parameters": []map[string]interface{}{
			{"tfvn": 0, "scid": 0, "vcid": 0},
		},
	})
	if err == nil {
		t.Fatal("expected an error for an all-zero managed parameter triple")
	}
}
