//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs every package's tests.
func (Test) All() error {
	if _, err := executeCmd("go", withArgs("test", "./..."), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the tests with the race detector; the host backend dispatches
// workgroups concurrently.
func (Test) Race() error {
	if _, err := executeCmd("go", withArgs("test", "-race", "./engine/...", "./testbed/..."), withStream()); err != nil {
		return err
	}
	return nil
}
