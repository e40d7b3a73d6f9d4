//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the demo on the Vulkan backend.
func (Run) Demo() error {
	mg.Deps(Build.Shaders)
	fmt.Println("Run demo...")
	if _, err := executeCmd("go", withArgs("run", ".", "run", "--config", "config.toml"), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the demo on the CPU reference backend; no driver needed.
func (Run) Host() error {
	fmt.Println("Run demo on the host backend...")
	if _, err := executeCmd("go", withArgs("run", ".", "run", "--config", "config.toml", "--backend", "host"), withStream()); err != nil {
		return err
	}
	return nil
}

// Lists the physical devices the Vulkan loader reports.
func (Run) Devices() error {
	if _, err := executeCmd("go", withArgs("run", ".", "devices"), withStream()); err != nil {
		return err
	}
	return nil
}
