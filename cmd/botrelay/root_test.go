package main

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"botrelay/internal/auth"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("MASTER_SECRET", "cli-secret")

	out, err := runCLI(t, "token", "--user", "admin-1", "--role", "admin")
	require.NoError(t, err)

	claims, err := auth.VerifyToken(strings.TrimSpace(out), auth.TokenConfig{Secret: "cli-secret", Issuer: "botrelay"})
	require.NoError(t, err)
	require.Equal(t, "admin-1", claims.UserID)
	require.Equal(t, auth.RoleAdmin, claims.Role)
}

func TestTokenCommandRequiresSecret(t *testing.T) {
	t.Setenv("MASTER_SECRET", "")

	_, err := runCLI(t, "token", "--user", "u1")
	require.Error(t, err)
}

func TestTokenCommandRejectsUnknownRole(t *testing.T) {
	t.Setenv("MASTER_SECRET", "cli-secret")

	_, err := runCLI(t, "token", "--user", "u1", "--role", "root")
	require.Error(t, err)
}

func TestSetupLogging(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	require.NoError(t, setupLogging("warn", "console", io.Discard))
	require.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	require.Error(t, setupLogging("loud", "json", io.Discard))
}

func TestLogLevelFlagOverridesEnv(t *testing.T) {
	t.Setenv("MASTER_SECRET", "cli-secret")
	t.Setenv("LOG_LEVEL", "debug")

	_, err := runCLI(t, "--log-level", "error", "token", "--user", "u1")
	require.NoError(t, err)
	require.Equal(t, zerolog.ErrorLevel, zerolog.GlobalLevel())
}
