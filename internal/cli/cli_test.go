package cli

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionFlag(t *testing.T) {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := RunWithArgs("0.1.0-test", []string{"--version"})

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	output := buf.String()

	assert.NoError(t, err)
	assert.Contains(t, output, "bwlog 0.1.0-test")
}

func TestVersionOutputFormat(t *testing.T) {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	_ = RunWithArgs("1.2.3", []string{"--version"})

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	output := strings.TrimSpace(buf.String())

	assert.Equal(t, "bwlog 1.2.3", output)
}

func TestAllSubcommandsRegistered(t *testing.T) {
	parser, _, _ := buildParser("test")

	for _, name := range []string{"status", "add", "list", "show", "sync", "trim", "purge"} {
		assert.NotNil(t, parser.Find(name), "subcommand %s should be registered", name)
	}
}

func TestShowRequiresID(t *testing.T) {
	err := RunWithArgs("test", []string{"show"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--id is required")
}

func TestPurgeRequiresAll(t *testing.T) {
	err := RunWithArgs("test", []string{"purge"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--all flag")
}

func TestAddRejectsBothPayloadFlags(t *testing.T) {
	err := RunWithArgs("test", []string{
		"add", "--payload", "{}", "--payload-file", "x.json",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestListRejectsUnknownStatus(t *testing.T) {
	err := RunWithArgs("test", []string{"list", "--status", "bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status")
}
