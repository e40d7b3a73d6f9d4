package testbed

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/spaghettifunk/anima-compute/engine"
	"github.com/spaghettifunk/anima-compute/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func hostConfig(phases ...string) *engine.ApplicationConfig {
	cfg := engine.DefaultConfig()
	cfg.Application.Backend = engine.BackendHost
	cfg.Application.AssetsDir = "../assets"
	if len(phases) > 0 {
		cfg.Application.Phases = phases
	}
	return cfg
}

func run(t *testing.T, cfg *engine.ApplicationConfig) (*engine.Engine, string, error) {
	t.Helper()

	var out bytes.Buffer
	e, err := engine.New(NewHelloCompute(), cfg, &out)
	require.NoError(t, err)
	t.Cleanup(func() { e.Shutdown() })

	require.NoError(t, e.Initialize())
	err = e.Run()
	return e, out.String(), err
}

func TestHelloComputeEndToEnd(t *testing.T) {
	e, out, err := run(t, hostConfig())
	require.NoError(t, err)

	assert.Equal(t, "Found a queue family with 1 queue(s)\n"+
		"Content before: 12\n"+
		"Content after: 24\n"+
		"finished running simple command buffer.\n"+
		"Finished running shader computation.\n"+
		"Everything worked as expected.\n"+
		"Hello World Complete!\n", out)

	snap := e.Context().Metrics().Snapshot()
	assert.Equal(t, uint32(2), snap.Submissions)
	assert.Equal(t, uint32(2), snap.FenceWaits)
	assert.Equal(t, engine.EngineStageFinished, e.Stage())
}

func TestPhasesRunInProgramOrder(t *testing.T) {
	e, out, err := run(t, hostConfig("copy", "scalar"))
	require.NoError(t, err)

	assert.Equal(t, "Found a queue family with 1 queue(s)\n"+
		"Content before: 12\n"+
		"Content after: 24\n"+
		"finished running simple command buffer.\n"+
		"Everything worked as expected.\n"+
		"Hello World Complete!\n", out)
	assert.Equal(t, uint32(1), e.Context().Metrics().Snapshot().FenceWaits)
}

func TestInitOnly(t *testing.T) {
	e, out, err := run(t, hostConfig("init"))
	require.NoError(t, err)

	assert.Equal(t, "Found a queue family with 1 queue(s)\nEverything worked as expected.\nHello World Complete!\n", out)
	assert.Zero(t, e.Context().Metrics().Snapshot().Submissions)
}

func TestDispatchVerificationFailure(t *testing.T) {
	cfg := hostConfig("dispatch")
	cfg.Demo.Multiplier = 13

	_, out, err := run(t, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrVerificationFailed)
	assert.Equal(t, core.KindVerification, core.KindOf(err))
	// 0 * 12 == 0 * 13, the first mismatch is at index 1
	assert.Contains(t, err.Error(), "index 1: expected 13, got 12")
	assert.NotContains(t, out, "Everything worked as expected.")
}

func TestDispatchTooFewWorkgroups(t *testing.T) {
	cfg := hostConfig("dispatch")
	cfg.Demo.Workgroups = [3]uint32{512, 1, 1}

	e, _, err := run(t, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
	assert.Zero(t, e.Context().Metrics().Snapshot().Submissions)
}

func TestDispatchOversizedGridStaysInBounds(t *testing.T) {
	cfg := hostConfig("dispatch")
	cfg.Demo.DispatchLength = 1000
	cfg.Demo.Workgroups = [3]uint32{16, 1, 1}

	_, out, err := run(t, cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Finished running shader computation.\n")
}

func TestScalarValueFromConfig(t *testing.T) {
	cfg := hostConfig("scalar")
	cfg.Demo.ScalarValue = 21

	_, out, err := run(t, cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Content before: 21\nContent after: 42\n")
}

func TestUnknownShader(t *testing.T) {
	cfg := hostConfig("dispatch")
	cfg.Demo.Shader = "mul_13"

	_, _, err := run(t, cfg)
	require.Error(t, err)
	assert.Equal(t, core.KindAsset, core.KindOf(err))
}

func TestVerifyHelpers(t *testing.T) {
	require.NoError(t, VerifyEqual("same", []int{1, 2, 3}, []int{1, 2, 3}))

	err := VerifyEqual("length", []int{1, 2}, []int{1})
	assert.ErrorIs(t, err, core.ErrVerificationFailed)
	assert.Contains(t, err.Error(), "expected 2 elements, got 1")

	err = VerifyEqual("values", []float32{1, 2.5}, []float32{1, 2})
	assert.ErrorIs(t, err, core.ErrVerificationFailed)
	assert.Contains(t, err.Error(), "index 1: expected 2.5, got 2")

	require.NoError(t, VerifyEach("squares", []uint32{0, 1, 4, 9}, func(i int) uint32 { return uint32(i * i) }))
}
