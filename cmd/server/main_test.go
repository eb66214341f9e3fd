package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posconsole/backend/internal/config"
	"posconsole/backend/internal/domain"
	"posconsole/backend/internal/store/memory"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cases := map[string]config.Config{
		"short secret": {AuthSecret: "short", ManagerPIN: "739154"},
		"short pin":    {AuthSecret: strongSecret, ManagerPIN: "7391"},
		"letters":      {AuthSecret: strongSecret, ManagerPIN: "73a154"},
		"common":       {AuthSecret: strongSecret, ManagerPIN: "123123"},
		"repeated":     {AuthSecret: strongSecret, ManagerPIN: "444444"},
		"descending":   {AuthSecret: strongSecret, ManagerPIN: "987654"},
		"missing pin":  {AuthSecret: strongSecret},
		"empty":        {},
	}
	for name, cfg := range cases {
		assert.Error(t, validateSecurityConfig(cfg), name)
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	assert.NoError(t, validateSecurityConfig(config.Config{AuthSecret: strongSecret, ManagerPIN: "739154"}))
}

func TestEnsureAdminCreatesOnce(t *testing.T) {
	ctx := context.Background()
	users := memory.New()
	cfg := config.Config{StoreID: "main-store", SeedAdminPassword: "first-boot-pass"}

	require.NoError(t, ensureAdmin(ctx, users, cfg))
	require.NoError(t, ensureAdmin(ctx, users, cfg))

	accounts, err := users.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "admin", accounts[0].Username)
	assert.Equal(t, domain.RoleAdmin, accounts[0].Role)
	assert.NotEqual(t, "first-boot-pass", accounts[0].Password)
}

func TestEnsureAdminSkipsWithoutPassword(t *testing.T) {
	users := memory.New()
	require.NoError(t, ensureAdmin(context.Background(), users, config.Config{}))

	accounts, err := users.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accounts)
}
