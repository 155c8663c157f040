//go:build !linux

package system

import (
	"context"

	herrors "github.com/horizon-installer/hscript/errors"
)

// Mount implements MountOps.
func (m *KernelMounts) Mount(context.Context, string, string, string, string) error {
	return herrors.New(herrors.CodeUnsupported, "mounting is only supported on Linux")
}

// BindMount implements MountOps.
func (m *KernelMounts) BindMount(context.Context, string, string) error {
	return herrors.New(herrors.CodeUnsupported, "mounting is only supported on Linux")
}
