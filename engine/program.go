package engine

import (
	"io"

	"github.com/spaghettifunk/anima-compute/engine/assets"
	"github.com/spaghettifunk/anima-compute/engine/compute"
	"github.com/spaghettifunk/anima-compute/engine/compute/host"
)

// Runtime is what a running phase can reach.
type Runtime struct {
	Config  *ApplicationConfig
	Context *compute.Context
	Assets  *assets.AssetManager
	// Console output of the program.
	Out io.Writer
}

// PhaseFunc performs one episode against the device context.
type PhaseFunc func(rt *Runtime) error

type Phase struct {
	Name string
	Run  PhaseFunc
}

// Program is a linear chain of phases run once against one device.
type Program struct {
	// Phases in execution order. Configuration picks a subset; the order
	// here always wins.
	Phases []Phase
	// Kernels the host backend runs in place of compute shaders.
	HostKernels map[string]host.Kernel
	// FnComplete runs after every selected phase succeeded.
	FnComplete PhaseFunc
}

func (p *Program) phase(name string) (Phase, bool) {
	for _, ph := range p.Phases {
		if ph.Name == name {
			return ph, true
		}
	}
	return Phase{}, false
}

func (p *Program) phaseNames() []string {
	names := make([]string, len(p.Phases))
	for i, ph := range p.Phases {
		names[i] = ph.Name
	}
	return names
}
