package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile_DefaultsFillGaps(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, `
database:
  name: hospital_intake
intake:
  minutes_per_patient: 7
`))
	require.NoError(t, err)

	assert.Equal(t, "hospital_intake", cfg.Database.Name)
	assert.Equal(t, 7, cfg.Intake.MinutesPerPatient)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "92", cfg.Intake.CountryCode)
	assert.Equal(t, int64(999), cfg.Intake.SequenceLimit)
	assert.Equal(t, 30*time.Second, cfg.Intake.RosterCacheTTL)
	assert.Equal(t, 5, cfg.Outbox.MaxDeliveries)
	assert.Equal(t, "notifications", cfg.Outbox.Channel)
}

func TestLoadFile_EnvironmentOverridesFile(t *testing.T) {
	t.Setenv("INTAKE_DB_HOST", "db.internal")
	t.Setenv("INTAKE_MINUTES_PER_PATIENT", "12")
	t.Setenv("INTAKE_REDIS_SEQUENCES", "true")

	cfg, err := LoadFile(writeConfig(t, `
database:
  host: localhost
intake:
  minutes_per_patient: 7
`))
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 12, cfg.Intake.MinutesPerPatient)
	assert.True(t, cfg.Redis.Sequences)
}

func TestLoadFile_RejectsInvalidValues(t *testing.T) {
	_, err := LoadFile(writeConfig(t, `
intake:
  sequence_attempts: 0
`))
	assert.Error(t, err)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestLocation(t *testing.T) {
	cfg := &Config{}
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	cfg.Server.Timezone = "Not/AZone"
	_, err = cfg.Location()
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{Host: "h", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=n sslmode=disable", c.DSN())
}
