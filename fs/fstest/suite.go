// Package fstest provides a conformance test suite for implementations of
// fs.Filesystem that act on a real or in-memory tree.
//
// Example usage:
//
//	func TestMyFilesystem(t *testing.T) {
//	    fstest.TestSuite(t, func(t *testing.T) (fs.Filesystem, string) {
//	        return myfs.New(), "/target"
//	    })
//	}
package fstest

import (
	"slices"
	"testing"

	"github.com/horizon-installer/hscript/fs"
)

// Factory returns a fresh filesystem and the directory inside it the tests
// may write under.
type Factory func(t *testing.T) (fs.Filesystem, string)

// TestSuite runs every conformance test against filesystems from newFS.
func TestSuite(t *testing.T, newFS Factory) {
	TestSuiteWithSkip(t, newFS, nil)
}

// TestSuiteWithSkip runs the conformance tests, skipping the named groups
// (e.g. "Links") for implementations with documented differences.
func TestSuiteWithSkip(t *testing.T, newFS Factory, skip []string) {
	groups := []struct {
		name string
		run  func(*testing.T, fs.Filesystem, string)
	}{
		{"Write", TestWrite},
		{"Links", TestLinks},
		{"Manage", TestManage},
	}
	for _, g := range groups {
		t.Run(g.name, func(t *testing.T) {
			if slices.Contains(skip, g.name) {
				t.Skip("Skipped by provider configuration")
			}
			filesystem, root := newFS(t)
			g.run(t, filesystem, root)
		})
	}
}
