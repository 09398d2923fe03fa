package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  booking_events_topic_name: "booking.events"
redis:
  host: "localhost"
  port: 6379
cargo:
  http_addr: ":8080"
  jwt_secret: "s3cret"
  cors_allowed_origins: ["http://localhost:5173"]
  booking_cache_ttl_seconds: 600
  lr_number_width: 6
  relay_backoff_2_seconds: 900
branches:
  - code: HO
    name: Head Office
  - code: KA
    name: Kalyan
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "postgres://u:p@localhost:5432/db?sslmode=disable", cfg.Database.ConnString())
	require.Equal(t, "booking.events", cfg.Kafka.BookingEventsTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, ":8080", cfg.Cargo.HTTPAddr)
	require.Equal(t, []string{"http://localhost:5173"}, cfg.Cargo.CORSAllowedOrigins)
	require.Equal(t, 900, cfg.Cargo.RelayBackoff2Seconds)
	require.Len(t, cfg.Branches, 2)
	require.Equal(t, "Kalyan", cfg.Branches[1].Name)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
