package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/openmined/syftsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func runVersion(t *testing.T, args ...string) string {
	t.Helper()
	cmd := &cobra.Command{Use: "syftsync"}
	cmd.AddCommand(newVersionCmd())

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"version"}, args...))
	require.NoError(t, cmd.Execute())
	return strings.TrimSpace(out.String())
}

func TestVersionCommand(t *testing.T) {
	require.Equal(t, version.DetailedWithApp(), runVersion(t))
	require.Equal(t, version.Version, runVersion(t, "--short"))
}

func TestVersionCommand_ThroughCLI(t *testing.T) {
	out, code := runCLI(t, "version", "--short")
	require.Equal(t, 0, code, out)
	require.Equal(t, version.Version, strings.TrimSpace(out))
}
