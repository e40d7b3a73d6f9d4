package host

import (
	"context"
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-compute/engine/compute"
	"github.com/spaghettifunk/anima-compute/engine/core"
)

type commandBufferState int

const (
	stateRecording commandBufferState = iota
	stateRecordingEnded
	stateSubmitted
	stateReleased
)

func (s commandBufferState) String() string {
	switch s {
	case stateRecording:
		return "recording"
	case stateRecordingEnded:
		return "recording ended"
	case stateSubmitted:
		return "submitted"
	default:
		return "released"
	}
}

type commandBuffer struct {
	device *device
	state  commandBufferState
	ops    []func() error
}

func (cb *commandBuffer) recording(op string) error {
	if cb.state != stateRecording {
		return core.NewError(core.KindDevice, op, fmt.Errorf("%w: %s", core.ErrCommandBufferState, cb.state))
	}
	return nil
}

func (cb *commandBuffer) CopyBuffer(src, dst compute.Buffer) error {
	const op = "host.CopyBuffer"

	if err := cb.recording(op); err != nil {
		return err
	}
	hs, ok1 := src.(*buffer)
	hd, ok2 := dst.(*buffer)
	if !ok1 || !ok2 || hs.destroyed || hd.destroyed {
		return core.Errorf(core.KindConfiguration, op, "buffers do not belong to this device")
	}
	if !hs.usage.Has(compute.BufferUsageTransferSrc) || !hd.usage.Has(compute.BufferUsageTransferDst) {
		return core.Errorf(core.KindConfiguration, op, "copy needs transfer-src and transfer-dst usage")
	}

	cb.ops = append(cb.ops, func() error {
		copy(hd.data, hs.data)
		return nil
	})
	return nil
}

func (cb *commandBuffer) Dispatch(groups [3]uint32, p compute.Pipeline, sets ...compute.DescriptorSet) error {
	const op = "host.Dispatch"

	if err := cb.recording(op); err != nil {
		return err
	}
	hp, ok := p.(*pipeline)
	if !ok || hp.destroyed {
		return core.Errorf(core.KindConfiguration, op, "pipeline does not belong to this device")
	}

	bindings := Bindings{sets: map[uint32]*descriptorSet{}}
	for _, s := range sets {
		hs, ok := s.(*descriptorSet)
		if !ok || hs.buffers == nil {
			return core.Errorf(core.KindConfiguration, op, "descriptor set does not belong to this device")
		}
		bindings.sets[hs.set] = hs
	}
	for _, b := range hp.shader.Bindings {
		if _, ok := bindings.sets[b.Set]; !ok {
			return core.Errorf(core.KindConfiguration, op, "%s uses set %d but it is not bound", hp.shader.Name, b.Set)
		}
	}

	cb.ops = append(cb.ops, func() error {
		return cb.device.runDispatch(groups, hp, bindings)
	})
	return nil
}

func (cb *commandBuffer) Build() (compute.CommandBuffer, error) {
	if err := cb.recording("host.Build"); err != nil {
		return nil, err
	}
	cb.state = stateRecordingEnded
	return cb, nil
}

func (cb *commandBuffer) Release() {
	cb.ops = nil
	cb.state = stateReleased
}

// runDispatch executes every workgroup of the grid as one job.
func (d *device) runDispatch(groups [3]uint32, p *pipeline, bindings Bindings) error {
	local := p.shader.LocalSize
	total := int(groups[0]) * int(groups[1]) * int(groups[2])

	return d.jobs.Run(context.Background(), total, func(index int) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = core.Errorf(core.KindDevice, "host.Dispatch", "kernel %s faulted in workgroup %d: %v", p.shader.Name, index, r)
			}
		}()

		g := uint32(index)
		wg := [3]uint32{g % groups[0], (g / groups[0]) % groups[1], g / (groups[0] * groups[1])}
		for z := uint32(0); z < local[2]; z++ {
			for y := uint32(0); y < local[1]; y++ {
				for x := uint32(0); x < local[0]; x++ {
					p.kernel(Invocation{
						GlobalID:    [3]uint32{wg[0]*local[0] + x, wg[1]*local[1] + y, wg[2]*local[2] + z},
						WorkgroupID: wg,
						LocalID:     [3]uint32{x, y, z},
					}, bindings)
				}
			}
		}
		return nil
	})
}

type queue struct {
	family   uint32
	priority float32
	// completion channel of the most recent submission
	last    chan struct{}
	pending sync.WaitGroup
}

func (q *queue) FamilyIndex() uint32 {
	return q.family
}

// Submit runs cb after every earlier submission has finished.
func (q *queue) Submit(cb compute.CommandBuffer) (compute.Future, error) {
	const op = "host.Submit"

	hc, ok := cb.(*commandBuffer)
	if !ok {
		return nil, core.Errorf(core.KindConfiguration, op, "command buffer does not belong to this device")
	}
	if hc.state != stateRecordingEnded {
		return nil, core.NewError(core.KindDevice, op, fmt.Errorf("%w: %s", core.ErrCommandBufferState, hc.state))
	}
	hc.state = stateSubmitted

	f := &future{done: make(chan struct{})}
	prev := q.last
	q.last = f.done
	ops := hc.ops

	q.pending.Add(1)
	go func() {
		defer q.pending.Done()
		defer close(f.done)
		if prev != nil {
			<-prev
		}
		for _, run := range ops {
			if err := run(); err != nil {
				f.err = err
				return
			}
		}
	}()
	return f, nil
}

type future struct {
	done chan struct{}
	err  error
}

func (f *future) Wait() error {
	<-f.done
	return f.err
}
