package compute

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-compute/engine/core"
	"github.com/spaghettifunk/anima-compute/engine/resources"
)

type Options struct {
	AppName       string
	Validation    bool
	QueuePriority float32
	// Out receives the queue family report. Defaults to os.Stdout.
	Out io.Writer
}

type destroyer interface {
	Destroy()
}

// Context owns the instance, the logical device and its single queue, plus
// every resource created through it. Resources are destroyed with the
// context, newest first.
type Context struct {
	ID uuid.UUID

	backend   Backend
	instance  Instance
	device    Device
	queue     Queue
	selection Selection
	devices   []PhysicalDevice

	metrics *core.MetricsState
	owned   []destroyer
	closed  bool
}

// Open brings up the backend: instance, device enumeration, selection of the
// first device and its first graphics-capable queue family, and a logical
// device with one queue.
func Open(backend Backend, opts Options) (*Context, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.QueuePriority <= 0 || opts.QueuePriority > 1 {
		return nil, core.Errorf(core.KindConfiguration, "compute.Open", "%w: queue priority %v outside (0, 1]", core.ErrInvalidConfig, opts.QueuePriority)
	}

	ctx := &Context{
		ID:      uuid.New(),
		backend: backend,
		metrics: core.NewMetrics(),
	}
	core.LogInfo("Opening %s compute context %s...", backend.Name(), ctx.ID)

	instance, err := backend.CreateInstance(AppInfo{Name: opts.AppName, Validation: opts.Validation})
	if err != nil {
		return nil, err
	}
	ctx.instance = instance

	devices, err := instance.PhysicalDevices()
	if err != nil {
		ctx.Close()
		return nil, err
	}
	ctx.devices = devices
	for _, d := range devices {
		core.LogDebug("Physical device %d: %s (%s, API %s)", d.Index, d.Name, d.Type, d.APIVersion)
	}
	if len(devices) > 0 {
		for _, family := range devices[0].QueueFamilies {
			fmt.Fprintf(opts.Out, "Found a queue family with %d queue(s)\n", family.QueueCount)
		}
	}

	sel, err := SelectDevice(devices)
	if err != nil {
		core.LogError(err.Error())
		ctx.Close()
		return nil, err
	}
	ctx.selection = sel
	core.LogInfo("Selected device '%s', queue family %d.", sel.Device.Name, sel.QueueFamily.Index)

	device, err := instance.CreateDevice(sel, opts.QueuePriority)
	if err != nil {
		ctx.Close()
		return nil, err
	}
	ctx.device = device
	ctx.queue = device.Queue()

	return ctx, nil
}

func (c *Context) Device() Device {
	return c.device
}

func (c *Context) Queue() Queue {
	return c.queue
}

func (c *Context) Selection() Selection {
	return c.selection
}

// PhysicalDevices is the enumeration the selection was made from.
func (c *Context) PhysicalDevices() []PhysicalDevice {
	return c.devices
}

func (c *Context) Metrics() *core.MetricsState {
	return c.metrics
}

func (c *Context) createBuffer(size uint64, usage BufferUsage) (Buffer, error) {
	if c.closed {
		return nil, core.NewError(core.KindConfiguration, "compute.CreateBuffer", core.ErrContextClosed)
	}
	b, err := c.device.CreateBuffer(size, usage)
	if err != nil {
		return nil, err
	}
	c.own(b)
	return b, nil
}

// ComputePipeline builds a pipeline for a compute shader asset.
func (c *Context) ComputePipeline(shader *resources.Shader) (Pipeline, error) {
	if c.closed {
		return nil, core.NewError(core.KindConfiguration, "compute.ComputePipeline", core.ErrContextClosed)
	}
	p, err := c.device.CreateComputePipeline(shader)
	if err != nil {
		return nil, err
	}
	c.own(p)
	return p, nil
}

// DescriptorSet binds buffers to set of the pipeline's layout.
func (c *Context) DescriptorSet(p Pipeline, set uint32, buffers ...Buffer) (DescriptorSet, error) {
	if c.closed {
		return nil, core.NewError(core.KindConfiguration, "compute.DescriptorSet", core.ErrContextClosed)
	}
	ds, err := c.device.CreateDescriptorSet(p, set, buffers...)
	if err != nil {
		return nil, err
	}
	c.own(ds)
	return ds, nil
}

// Execute runs one submission episode: a fresh command buffer is recorded by
// record, finalized, submitted to the queue and waited on without timeout.
// Buffers touched by the episode can be read once Execute returns.
func (c *Context) Execute(record func(cb CommandBuilder) error) error {
	const op = "compute.Execute"

	if c.closed {
		return core.NewError(core.KindConfiguration, op, core.ErrContextClosed)
	}

	clock := core.NewClock()
	clock.Start()

	builder, err := c.device.NewCommandBuffer()
	if err != nil {
		return err
	}
	defer builder.Release()

	if err := record(builder); err != nil {
		return err
	}
	cb, err := builder.Build()
	if err != nil {
		return err
	}

	future, err := c.queue.Submit(cb)
	if err != nil {
		return err
	}
	c.metrics.RecordSubmission()

	if err := future.Wait(); err != nil {
		return err
	}
	c.metrics.RecordFenceWait()

	clock.Stop()
	c.metrics.RecordEpisode(clock.Elapsed())
	core.LogDebug("Episode finished in %s.", clock.Elapsed())
	return nil
}

func (c *Context) own(d destroyer) {
	c.owned = append(c.owned, d)
}

func (c *Context) release(d destroyer) {
	for i := len(c.owned) - 1; i >= 0; i-- {
		if c.owned[i] == d {
			c.owned = append(c.owned[:i], c.owned[i+1:]...)
			d.Destroy()
			return
		}
	}
}

// Close waits for the device to go idle and destroys everything the context
// owns. Calling it twice is a no-op.
func (c *Context) Close() {
	if c.closed {
		return
	}
	c.closed = true

	if c.device != nil {
		if err := c.device.WaitIdle(); err != nil {
			core.LogWarn("device did not go idle before shutdown: %s", err)
		}
	}
	for i := len(c.owned) - 1; i >= 0; i-- {
		c.owned[i].Destroy()
	}
	c.owned = nil

	if c.device != nil {
		c.device.Destroy()
		c.device = nil
	}
	if c.instance != nil {
		c.instance.Destroy()
		c.instance = nil
	}
	core.LogInfo("Compute context %s closed.", c.ID)
}
