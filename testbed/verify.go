package testbed

import (
	"github.com/spaghettifunk/anima-compute/engine/core"
)

const verifyOp = "testbed.Verify"

// VerifyEqual fails on the first index where got differs from want.
func VerifyEqual[T comparable](what string, want, got []T) error {
	if len(want) != len(got) {
		return core.Errorf(core.KindVerification, verifyOp, "%w: %s: expected %d elements, got %d", core.ErrVerificationFailed, what, len(want), len(got))
	}
	return VerifyEach(what, got, func(i int) T { return want[i] })
}

// VerifyEach checks every element against expected(i).
func VerifyEach[T comparable](what string, got []T, expected func(i int) T) error {
	for i, v := range got {
		if want := expected(i); v != want {
			return core.Errorf(core.KindVerification, verifyOp, "%w: %s: index %d: expected %v, got %v", core.ErrVerificationFailed, what, i, want, v)
		}
	}
	return nil
}
