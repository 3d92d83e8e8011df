//go:build !debug

// Package debug provides assertions that compile to no-ops unless the
// debug build tag is set.
//
// These check internal driver invariants only. Contract violations that
// must halt in any build use a plain panic instead.
package debug

// Guard assertions that are expensive to evaluate with `if
// debug.Enabled{...}`, otherwise they can't be removed in release builds.
const Enabled = false

// Assert panics if b is false.
func Assert(b bool, message string) {}

// AssertErrNil panics if err is not nil.
func AssertErrNil(err error) {}
