package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/anima-compute/engine/compute"
	"github.com/spaghettifunk/anima-compute/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cli := NewCLI()
	cli.SetOut(&out)
	cli.SetErr(io.Discard)
	cli.SetArgs(args)
	err := cli.Execute()
	return out.String(), err
}

func TestRunOnHostBackend(t *testing.T) {
	out, err := execute(t, "run", "--config", "../config.toml", "--backend", "host", "--assets", "../assets", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Found a queue family with 1 queue(s)\n")
	assert.Contains(t, out, "Everything worked as expected.\nHello World Complete!\n")
}

func TestRunPhasesFlag(t *testing.T) {
	out, err := execute(t, "run", "--config", "../config.toml", "--backend", "host", "--assets", "../assets", "--phases", "scalar")
	require.NoError(t, err)
	assert.Contains(t, out, "Content after: 24\n")
	assert.NotContains(t, out, "finished running simple command buffer.")
}

func TestRunRejectsUnknownBackend(t *testing.T) {
	_, err := execute(t, "run", "--config", filepath.Join(t.TempDir(), "none.toml"), "--backend", "metal")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestDevicesOnHostBackend(t *testing.T) {
	out, err := execute(t, "devices", "--config", "../config.toml", "--backend", "host")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "Host CPU")
	assert.Contains(t, out, "graphics,compute,transfer")
}

func TestFamilyCapabilities(t *testing.T) {
	assert.Equal(t, "-", familyCapabilities(compute.QueueFamily{}))
	assert.Equal(t, "compute,transfer", familyCapabilities(compute.QueueFamily{Compute: true, Transfer: true}))
}
