package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"
)

const cliTimeout = 30 * time.Second

var ansiRE = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiRE.ReplaceAllString(s, "")
}

// runCLI runs the syftsync root command in a child test process with an
// isolated HOME, returning its combined output and exit code.
func runCLI(t *testing.T, args ...string) (output string, exitCode int) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, os.Args[0], append([]string{"-test.run=^TestHelperProcess$", "--"}, args...)...)
	cmd.Env = append(os.Environ(),
		"SYFTSYNC_HELPER_PROCESS=1",
		"SYFTSYNC_CONFIG_PATH=",
		"HOME="+t.TempDir(),
		"NO_COLOR=1",
		"TERM=dumb",
	)

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	if ctx.Err() != nil {
		t.Fatalf("syftsync %s timed out after %s:\n%s", strings.Join(args, " "), cliTimeout, buf.String())
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return buf.String(), 0
	case errors.As(err, &exitErr):
		return buf.String(), exitErr.ExitCode()
	}

	t.Fatalf("run syftsync: %v", err)
	return "", 0
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("SYFTSYNC_HELPER_PROCESS") != "1" {
		return
	}

	idx := -1
	for i, a := range os.Args {
		if a == "--" {
			idx = i
			break
		}
	}
	if idx == -1 || idx == len(os.Args)-1 {
		os.Exit(2)
	}

	rootCmd.SetArgs(os.Args[idx+1:])
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Stderr.WriteString(stripANSI(err.Error()) + "\n")
		os.Exit(1)
	}
	os.Exit(0)
}
