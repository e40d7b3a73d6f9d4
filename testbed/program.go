// Package testbed is the hello-compute program: a scalar buffer update, a
// buffer-to-buffer copy and a compute dispatch, each verified on the host.
package testbed

import (
	"fmt"

	"github.com/spaghettifunk/anima-compute/engine"
	"github.com/spaghettifunk/anima-compute/engine/compute"
	"github.com/spaghettifunk/anima-compute/engine/compute/host"
	"github.com/spaghettifunk/anima-compute/engine/core"
)

const (
	PhaseScalar   = "scalar"
	PhaseCopy     = "copy"
	PhaseDispatch = "dispatch"
)

func NewHelloCompute() *engine.Program {
	return &engine.Program{
		Phases: []engine.Phase{
			{Name: PhaseScalar, Run: runScalar},
			{Name: PhaseCopy, Run: runCopy},
			{Name: PhaseDispatch, Run: runDispatch},
		},
		HostKernels: map[string]host.Kernel{
			"mul_12": Multiply(12),
		},
		FnComplete: func(rt *engine.Runtime) error {
			fmt.Fprintln(rt.Out, "Everything worked as expected.")
			fmt.Fprintln(rt.Out, "Hello World Complete!")
			return nil
		},
	}
}

// runScalar doubles a single value in place through the mapped memory.
func runScalar(rt *engine.Runtime) error {
	buf, err := compute.FromData(rt.Context, compute.BufferUsageAll, rt.Config.Demo.ScalarValue)
	if err != nil {
		return err
	}
	defer buf.Destroy()

	before := buf.Read()[0]
	fmt.Fprintf(rt.Out, "Content before: %d\n", before)

	buf.Update(func(data []uint32) {
		data[0] *= 2
	})

	after := buf.Read()[0]
	fmt.Fprintf(rt.Out, "Content after: %d\n", after)

	return VerifyEqual(PhaseScalar, []uint32{before * 2}, []uint32{after})
}

// runCopy copies 0..n into a zeroed buffer with one command buffer.
func runCopy(rt *engine.Runtime) error {
	n := rt.Config.Demo.CopyLength

	source, err := compute.FromSlice(rt.Context, compute.BufferUsageAll, compute.Range[uint32](0, n))
	if err != nil {
		return err
	}
	defer source.Destroy()

	dest, err := compute.FromSlice(rt.Context, compute.BufferUsageAll, make([]uint32, n))
	if err != nil {
		return err
	}
	defer dest.Destroy()

	if err := rt.Context.Execute(func(cb compute.CommandBuilder) error {
		return cb.CopyBuffer(source.Raw(), dest.Raw())
	}); err != nil {
		return err
	}

	if err := VerifyEqual(PhaseCopy, source.Read(), dest.Read()); err != nil {
		return err
	}
	fmt.Fprintln(rt.Out, "finished running simple command buffer.")
	return nil
}

// runDispatch multiplies 0..n by the shader's factor on the device.
func runDispatch(rt *engine.Runtime) error {
	demo := rt.Config.Demo

	shader, err := rt.Assets.LoadShader(demo.Shader)
	if err != nil {
		return err
	}
	if err := compute.CheckDispatch(shader, demo.Workgroups, int(demo.DispatchLength)); err != nil {
		return err
	}

	data, err := compute.FromSlice(rt.Context, compute.BufferUsageAll, compute.Range[uint32](0, demo.DispatchLength))
	if err != nil {
		return err
	}
	defer data.Destroy()

	pipeline, err := rt.Context.ComputePipeline(shader)
	if err != nil {
		return err
	}
	set, err := rt.Context.DescriptorSet(pipeline, 0, data.Raw())
	if err != nil {
		return err
	}

	if err := rt.Context.Execute(func(cb compute.CommandBuilder) error {
		return cb.Dispatch(demo.Workgroups, pipeline, set)
	}); err != nil {
		return err
	}
	fmt.Fprintln(rt.Out, "Finished running shader computation.")

	factor := demo.Multiplier
	if err := VerifyEach(PhaseDispatch, data.Read(), func(i int) uint32 { return uint32(i) * factor }); err != nil {
		return err
	}
	core.LogDebug("Verified %d elements of %s.", demo.DispatchLength, shader.Name)
	return nil
}
