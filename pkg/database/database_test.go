package database

import (
	"path/filepath"
	"testing"

	"fitcoach_backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectorSelectsDriver(t *testing.T) {
	d, err := Dialector(&config.DatabaseConfig{Driver: "mysql", Host: "localhost", Port: 3306})
	require.NoError(t, err)
	assert.Equal(t, "mysql", d.Name())

	d, err = Dialector(&config.DatabaseConfig{Driver: "postgres", Host: "localhost", Port: 5432, SSLMode: "disable"})
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())

	d, err = Dialector(&config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())

	_, err = Dialector(&config.DatabaseConfig{Driver: "sqlite"})
	assert.Error(t, err)

	_, err = Dialector(&config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestInitDBMigratesSQLite(t *testing.T) {
	db, err := InitDB(&config.DatabaseConfig{
		Driver:   "sqlite",
		Path:     filepath.Join(t.TempDir(), "fitcoach.db"),
		LogLevel: "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	for _, table := range []string{"users", "challenges", "challenge_participants", "check_ins", "progress_photos", "analysis_records"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	assert.True(t, db.Migrator().HasIndex("analysis_records", "idx_analysis_natural_key"))
}
