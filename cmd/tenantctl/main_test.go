package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseOptionsDefaults(t *testing.T) {
	opts, err := parseOptions(nil)
	require.NoError(t, err)
	require.False(t, opts.anyOperation())
	require.Equal(t, 1, opts.Steps)
	require.False(t, opts.Force)
}

func TestParseOptionsCreate(t *testing.T) {
	opts, err := parseOptions([]string{
		"--create", "--name", "Acme Rockets", "--slug", "acme",
		"--owner", "7", "--skip-database", "--skip-migration",
		"--seed", "--seeder", "custom.sql",
	})
	require.NoError(t, err)
	require.True(t, opts.Create)
	require.True(t, opts.anyOperation())
	require.Equal(t, "Acme Rockets", opts.Name)
	require.Equal(t, "acme", opts.Slug)
	require.EqualValues(t, 7, opts.OwnerID)
	require.True(t, opts.SkipDatabase)
	require.True(t, opts.SkipMigration)
	require.True(t, opts.Seed)
	require.Equal(t, "custom.sql", opts.Seeder)
}

func TestParseOptionsMigrate(t *testing.T) {
	opts, err := parseOptions([]string{"--migrate", "--fresh", "--force", "--tenant", "acme"})
	require.NoError(t, err)
	require.True(t, opts.Migrate)
	require.True(t, opts.Fresh)
	require.True(t, opts.Force)
	require.Equal(t, "acme", opts.Tenant)
}

func TestParseOptionsRejectsUnknownFlag(t *testing.T) {
	_, err := parseOptions([]string{"--nope"})
	require.Error(t, err)
}
