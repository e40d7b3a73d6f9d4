package host

import (
	"io"
	"os"
	"sync/atomic"
	"testing"

	"github.com/spaghettifunk/anima-compute/engine/compute"
	"github.com/spaghettifunk/anima-compute/engine/core"
	"github.com/spaghettifunk/anima-compute/engine/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func shader(name string, local [3]uint32, bindings ...resources.ShaderBinding) *resources.Shader {
	return &resources.Shader{Name: name, Stage: resources.ShaderStageCompute, EntryPoint: "main", LocalSize: local, Bindings: bindings}
}

var storage0 = resources.ShaderBinding{Set: 0, Binding: 0, Type: resources.DescriptorTypeStorageBuffer}

func newTestDevice(t *testing.T, cfg Config) compute.Device {
	t.Helper()
	b := New(cfg)
	inst, err := b.CreateInstance(compute.AppInfo{Name: "host-test", Validation: true})
	require.NoError(t, err)
	devices, err := inst.PhysicalDevices()
	require.NoError(t, err)
	sel, err := compute.SelectDevice(devices)
	require.NoError(t, err)
	d, err := inst.CreateDevice(sel, 0.5)
	require.NoError(t, err)
	t.Cleanup(func() {
		d.Destroy()
		inst.Destroy()
	})
	return d
}

func submitAndWait(t *testing.T, d compute.Device, record func(cb compute.CommandBuilder) error) error {
	t.Helper()
	builder, err := d.NewCommandBuffer()
	require.NoError(t, err)
	require.NoError(t, record(builder))
	cb, err := builder.Build()
	require.NoError(t, err)
	defer cb.Release()
	f, err := d.Queue().Submit(cb)
	require.NoError(t, err)
	return f.Wait()
}

func TestDefaults(t *testing.T) {
	b := New(Config{})
	assert.Equal(t, "host", b.Name())
	assert.Len(t, b.config.Devices, 1)
	assert.Positive(t, b.config.Workers)

	d := newTestDevice(t, Config{})
	assert.Equal(t, compute.DeviceTypeCPU, d.Info().Type)
	assert.Equal(t, uint32(0), d.Queue().FamilyIndex())
}

func TestRegisterKernel(t *testing.T) {
	b := New(Config{})
	b.RegisterKernel("noop", func(Invocation, Bindings) {})
	assert.Contains(t, b.config.Kernels, "noop")

	inst, err := b.CreateInstance(compute.AppInfo{})
	require.NoError(t, err)
	defer inst.Destroy()
	devices, err := inst.PhysicalDevices()
	require.NoError(t, err)
	sel, err := compute.SelectDevice(devices)
	require.NoError(t, err)
	d, err := inst.CreateDevice(sel, 0.5)
	require.NoError(t, err)
	defer d.Destroy()

	_, err = d.CreateComputePipeline(shader("noop", [3]uint32{1, 1, 1}))
	assert.NoError(t, err)
}

func TestCreateDeviceNeedsQueues(t *testing.T) {
	inst, err := New(Config{}).CreateInstance(compute.AppInfo{})
	require.NoError(t, err)
	_, err = inst.CreateDevice(compute.Selection{
		Device:      compute.PhysicalDevice{Name: "empty", QueueFamilies: []compute.QueueFamily{{Index: 0, Graphics: true}}},
		QueueFamily: compute.QueueFamily{Index: 0, Graphics: true},
	}, 0.5)
	assert.Equal(t, core.KindDevice, core.KindOf(err))
}

func TestBufferAlignmentAndSize(t *testing.T) {
	d := newTestDevice(t, Config{})
	b, err := d.CreateBuffer(12, compute.BufferUsageAll)
	require.NoError(t, err)
	assert.Len(t, b.Bytes(), 12)
	assert.Len(t, compute.Elements[uint64](b), 1)

	_, err = d.CreateBuffer(0, compute.BufferUsageAll)
	assert.Equal(t, core.KindConfiguration, core.KindOf(err))
}

func TestCommandBufferIsSingleUse(t *testing.T) {
	d := newTestDevice(t, Config{})
	src, _ := d.CreateBuffer(4, compute.BufferUsageAll)
	dst, _ := d.CreateBuffer(4, compute.BufferUsageAll)

	builder, err := d.NewCommandBuffer()
	require.NoError(t, err)
	require.NoError(t, builder.CopyBuffer(src, dst))
	cb, err := builder.Build()
	require.NoError(t, err)

	assert.ErrorIs(t, builder.CopyBuffer(src, dst), core.ErrCommandBufferState)
	_, err = builder.Build()
	assert.ErrorIs(t, err, core.ErrCommandBufferState)

	f, err := d.Queue().Submit(cb)
	require.NoError(t, err)
	require.NoError(t, f.Wait())
	// waiting on a signalled fence returns at once
	require.NoError(t, f.Wait())

	_, err = d.Queue().Submit(cb)
	assert.ErrorIs(t, err, core.ErrCommandBufferState)
}

func TestCopyCopiesShorterLength(t *testing.T) {
	d := newTestDevice(t, Config{})
	src, _ := d.CreateBuffer(8, compute.BufferUsageAll)
	dst, _ := d.CreateBuffer(4, compute.BufferUsageAll)
	copy(src.Bytes(), []byte{1, 2, 3, 4, 5, 6, 7, 8})

	require.NoError(t, submitAndWait(t, d, func(cb compute.CommandBuilder) error {
		return cb.CopyBuffer(src, dst)
	}))
	assert.Equal(t, []byte{1, 2, 3, 4}, dst.Bytes())
}

func TestSubmissionsRunInOrder(t *testing.T) {
	d := newTestDevice(t, Config{})
	a, _ := d.CreateBuffer(4, compute.BufferUsageAll)
	b, _ := d.CreateBuffer(4, compute.BufferUsageAll)
	c, _ := d.CreateBuffer(4, compute.BufferUsageAll)
	copy(a.Bytes(), []byte{9, 9, 9, 9})

	var futures []compute.Future
	for _, pair := range [][2]compute.Buffer{{a, b}, {b, c}} {
		builder, _ := d.NewCommandBuffer()
		require.NoError(t, builder.CopyBuffer(pair[0], pair[1]))
		cb, err := builder.Build()
		require.NoError(t, err)
		f, err := d.Queue().Submit(cb)
		require.NoError(t, err)
		futures = append(futures, f)
	}
	require.NoError(t, futures[1].Wait())
	assert.Equal(t, []byte{9, 9, 9, 9}, c.Bytes())
	require.NoError(t, d.WaitIdle())
}

func TestDispatchCoversGrid(t *testing.T) {
	var invocations int64
	kernels := map[string]Kernel{
		"grid": func(inv Invocation, b Bindings) {
			atomic.AddInt64(&invocations, 1)
			out := compute.Elements[uint32](b.Buffer(0, 0))
			// x + 4*y + 16*z over a 4x4x2 global grid
			out[inv.GlobalID[0]+4*inv.GlobalID[1]+16*inv.GlobalID[2]] = inv.WorkgroupID[0]*100 + inv.LocalID[0]
		},
	}
	d := newTestDevice(t, Config{Kernels: kernels, Workers: 3})

	s := shader("grid", [3]uint32{2, 2, 1}, storage0)
	p, err := d.CreateComputePipeline(s)
	require.NoError(t, err)
	out, _ := d.CreateBuffer(32*4, compute.BufferUsageAll)
	set, err := d.CreateDescriptorSet(p, 0, out)
	require.NoError(t, err)

	require.NoError(t, submitAndWait(t, d, func(cb compute.CommandBuilder) error {
		return cb.Dispatch([3]uint32{2, 2, 2}, p, set)
	}))
	assert.Equal(t, int64(32), invocations)

	data := compute.Elements[uint32](out)
	assert.Equal(t, uint32(0), data[0])   // group 0, local 0
	assert.Equal(t, uint32(1), data[1])   // group 0, local 1
	assert.Equal(t, uint32(100), data[2]) // group 1, local 0
	assert.Equal(t, uint32(101), data[3]) // group 1, local 1
}

func TestDispatchKernelFault(t *testing.T) {
	kernels := map[string]Kernel{
		"oob": func(inv Invocation, b Bindings) {
			out := compute.Elements[uint32](b.Buffer(0, 0))
			out[inv.GlobalID[0]] = 1
		},
	}
	d := newTestDevice(t, Config{Kernels: kernels})
	p, err := d.CreateComputePipeline(shader("oob", [3]uint32{64, 1, 1}, storage0))
	require.NoError(t, err)
	out, _ := d.CreateBuffer(16, compute.BufferUsageAll)
	set, err := d.CreateDescriptorSet(p, 0, out)
	require.NoError(t, err)

	err = submitAndWait(t, d, func(cb compute.CommandBuilder) error {
		return cb.Dispatch([3]uint32{1, 1, 1}, p, set)
	})
	require.Error(t, err)
	assert.Equal(t, core.KindDevice, core.KindOf(err))
}

func TestPipelineAndDescriptorValidation(t *testing.T) {
	d := newTestDevice(t, Config{Kernels: map[string]Kernel{"k": func(Invocation, Bindings) {}}})

	_, err := d.CreateComputePipeline(shader("missing", [3]uint32{1, 1, 1}))
	assert.ErrorIs(t, err, core.ErrShaderAsset)
	_, err = d.CreateComputePipeline(shader("k", [3]uint32{}))
	assert.ErrorIs(t, err, core.ErrShaderAsset)
	vertex := shader("k", [3]uint32{1, 1, 1})
	vertex.Stage = "vertex"
	_, err = d.CreateComputePipeline(vertex)
	assert.ErrorIs(t, err, core.ErrShaderAsset)

	p, err := d.CreateComputePipeline(shader("k", [3]uint32{1, 1, 1}, storage0))
	require.NoError(t, err)

	storage, _ := d.CreateBuffer(4, compute.BufferUsageStorage)
	transfer, _ := d.CreateBuffer(4, compute.BufferUsageTransferSrc)

	_, err = d.CreateDescriptorSet(p, 0)
	assert.Equal(t, core.KindConfiguration, core.KindOf(err))
	_, err = d.CreateDescriptorSet(p, 1, storage)
	assert.Equal(t, core.KindConfiguration, core.KindOf(err))
	_, err = d.CreateDescriptorSet(p, 0, transfer)
	assert.Equal(t, core.KindConfiguration, core.KindOf(err))
	_, err = d.CreateDescriptorSet(p, 0, storage, storage)
	assert.Equal(t, core.KindConfiguration, core.KindOf(err))

	set, err := d.CreateDescriptorSet(p, 0, storage)
	require.NoError(t, err)

	builder, _ := d.NewCommandBuffer()
	err = builder.Dispatch([3]uint32{1, 1, 1}, p)
	assert.Equal(t, core.KindConfiguration, core.KindOf(err), "set 0 not bound")
	require.NoError(t, builder.Dispatch([3]uint32{1, 1, 1}, p, set))

	err = builder.CopyBuffer(storage, transfer)
	assert.Equal(t, core.KindConfiguration, core.KindOf(err), "usage checked")
}
