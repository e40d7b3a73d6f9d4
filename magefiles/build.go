//go:build mage

package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
)

const (
	shaderDir  = "assets/shaders"
	binaryPath = "bin/anima-compute"
)

type Build mg.Namespace

// Compiles every compute shader under assets/shaders to SPIR-V with glslc.
func (Build) Shaders() error {
	sources, err := filepath.Glob(filepath.Join(shaderDir, "*.comp"))
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("no compute shaders found in %s", shaderDir)
	}
	for _, src := range sources {
		out := strings.TrimSuffix(src, filepath.Ext(src)) + ".spv"
		if _, err := executeCmd("glslc", withArgs("-fshader-stage=compute", src, "-o", out), withStream()); err != nil {
			return err
		}
	}
	return nil
}

// Compiles the shaders and builds the binary into bin/.
func (Build) Binary() error {
	mg.Deps(Build.Shaders)
	if _, err := executeCmd("go", withArgs("build", "-o", binaryPath, "."), withStream()); err != nil {
		return err
	}
	return nil
}
