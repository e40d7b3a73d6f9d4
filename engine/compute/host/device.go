package host

import (
	"fmt"
	"unsafe"

	"github.com/spaghettifunk/anima-compute/engine/compute"
	"github.com/spaghettifunk/anima-compute/engine/core"
	"github.com/spaghettifunk/anima-compute/engine/resources"
	"github.com/spaghettifunk/anima-compute/engine/systems"
)

type device struct {
	info    compute.PhysicalDevice
	config  Config
	queue   *queue
	jobs    *systems.JobSystem
	kernels map[string]Kernel
}

func newDevice(config Config, sel compute.Selection, priority float32) (*device, error) {
	jobs, err := systems.NewJobSystem(config.Workers)
	if err != nil {
		return nil, err
	}
	d := &device{
		info:    sel.Device,
		config:  config,
		jobs:    jobs,
		kernels: config.Kernels,
	}
	d.queue = &queue{family: sel.QueueFamily.Index, priority: priority}
	return d, nil
}

func (d *device) Info() compute.PhysicalDevice {
	return d.info
}

func (d *device) Queue() compute.Queue {
	return d.queue
}

func (d *device) CreateBuffer(size uint64, usage compute.BufferUsage) (compute.Buffer, error) {
	const op = "host.CreateBuffer"

	if size == 0 {
		return nil, core.Errorf(core.KindConfiguration, op, "buffer size must be greater than zero")
	}
	if d.config.MaxAllocation > 0 && size > d.config.MaxAllocation {
		return nil, core.Errorf(core.KindResource, op, "allocation of %d bytes exceeds the %d byte limit", size, d.config.MaxAllocation)
	}

	// backed by words so views of 8-byte elements stay aligned
	words := make([]uint64, (size+7)/8)
	return &buffer{
		size:  size,
		usage: usage,
		data:  unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), size),
	}, nil
}

func (d *device) CreateComputePipeline(shader *resources.Shader) (compute.Pipeline, error) {
	const op = "host.CreateComputePipeline"

	if shader.Stage != resources.ShaderStageCompute {
		return nil, core.Errorf(core.KindAsset, op, "%w: %s is a %s shader", core.ErrShaderAsset, shader.Name, shader.Stage)
	}
	if shader.InvocationsPerGroup() == 0 {
		return nil, core.Errorf(core.KindAsset, op, "%w: %s has no workgroup size", core.ErrShaderAsset, shader.Name)
	}
	kernel, ok := d.kernels[shader.Name]
	if !ok {
		return nil, core.Errorf(core.KindAsset, op, "%w: no host kernel registered for %s", core.ErrShaderAsset, shader.Name)
	}
	return &pipeline{shader: shader, kernel: kernel}, nil
}

func (d *device) CreateDescriptorSet(p compute.Pipeline, set uint32, buffers ...compute.Buffer) (compute.DescriptorSet, error) {
	const op = "host.CreateDescriptorSet"

	hp, ok := p.(*pipeline)
	if !ok || hp.destroyed {
		return nil, core.Errorf(core.KindConfiguration, op, "pipeline does not belong to this device")
	}
	if err := checkSetBindings(hp.shader, set, buffers); err != nil {
		return nil, core.NewError(core.KindConfiguration, op, err)
	}

	ds := &descriptorSet{set: set, buffers: map[uint32]*buffer{}}
	for i, b := range hp.shader.SetBindings(set) {
		ds.buffers[b.Binding] = buffers[i].(*buffer)
	}
	return ds, nil
}

func (d *device) NewCommandBuffer() (compute.CommandBuilder, error) {
	return &commandBuffer{device: d, state: stateRecording}, nil
}

func (d *device) WaitIdle() error {
	d.queue.pending.Wait()
	return nil
}

func (d *device) Destroy() {
	d.queue.pending.Wait()
}

func checkSetBindings(shader *resources.Shader, set uint32, buffers []compute.Buffer) error {
	if err := compute.CheckSetBindings(shader, set, buffers); err != nil {
		return err
	}
	for i, b := range buffers {
		if hb, ok := b.(*buffer); !ok || hb.destroyed {
			return fmt.Errorf("buffer %d of set %d does not belong to this device", i, set)
		}
	}
	return nil
}

type buffer struct {
	size      uint64
	usage     compute.BufferUsage
	data      []byte
	destroyed bool
}

func (b *buffer) Size() uint64                { return b.size }
func (b *buffer) Usage() compute.BufferUsage { return b.usage }
func (b *buffer) Bytes() []byte               { return b.data }

func (b *buffer) Destroy() {
	b.data = nil
	b.destroyed = true
}

type pipeline struct {
	shader    *resources.Shader
	kernel    Kernel
	destroyed bool
}

func (p *pipeline) Shader() *resources.Shader { return p.shader }
func (p *pipeline) Destroy()                  { p.destroyed = true }

type descriptorSet struct {
	set     uint32
	buffers map[uint32]*buffer
}

func (ds *descriptorSet) Set() uint32 { return ds.set }
func (ds *descriptorSet) Destroy()    { ds.buffers = nil }
