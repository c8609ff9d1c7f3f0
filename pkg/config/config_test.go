package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetDSNPerDriver(t *testing.T) {
	pg := DBConfig{
		Driver: "postgres", Host: "db", Port: "5432",
		User: "app", Password: "secret", DBName: "central", SSLMode: "disable",
	}
	require.Equal(t,
		"host=db port=5432 user=app password=secret dbname=central sslmode=disable",
		pg.GetDSN())

	my := DBConfig{
		Driver: "mysql", Host: "db", Port: "3306",
		User: "app", Password: "secret", DBName: "central",
	}
	require.Equal(t,
		"app:secret@tcp(db:3306)/central?charset=utf8mb4&parseTime=True&loc=Local",
		my.GetDSN())

	lite := DBConfig{Driver: "sqlite", DBName: "data/central.sqlite"}
	require.Equal(t, "data/central.sqlite", lite.GetDSN())
}

func TestIsReservedSubdomain(t *testing.T) {
	tc := TenancyConfig{ReservedSubdomains: []string{"www", "Admin"}}
	require.True(t, tc.IsReservedSubdomain("www"))
	require.True(t, tc.IsReservedSubdomain("WWW"))
	require.True(t, tc.IsReservedSubdomain("admin"))
	require.False(t, tc.IsReservedSubdomain("acme"))
}

func TestIsMulti(t *testing.T) {
	require.True(t, (&TenancyConfig{Mode: "multi"}).IsMulti())
	require.False(t, (&TenancyConfig{Mode: "single"}).IsMulti())
	require.False(t, (&TenancyConfig{}).IsMulti())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "single", cfg.Tenancy.Mode)
	require.Equal(t, "tenant_", cfg.Tenancy.DatabasePrefix)
	require.Equal(t, "central", cfg.Tenancy.CentralConnection)
	require.Contains(t, cfg.Tenancy.ReservedSubdomains, "www")
}

func TestTenancyOverrides(t *testing.T) {
	t.Setenv("TENANCY_MODE", "multi")
	t.Setenv("TENANCY_RESERVED_SUBDOMAINS", "www, mail ,status")

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.Tenancy.IsMulti())
	require.Equal(t, []string{"www", "mail", "status"}, cfg.Tenancy.ReservedSubdomains)
}
