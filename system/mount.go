package system

import (
	"context"
	"io"
	"log/slog"

	herrors "github.com/horizon-installer/hscript/errors"
	"github.com/horizon-installer/hscript/executor"
)

// CommandMounts implements MountOps with mount(8).
type CommandMounts struct {
	run executor.Runner
}

var _ MountOps = (*CommandMounts)(nil)

// NewCommandMounts creates a CommandMounts.
func NewCommandMounts(run executor.Runner) *CommandMounts {
	return &CommandMounts{run: run}
}

// Mount implements MountOps.
func (m *CommandMounts) Mount(ctx context.Context, source, target, fstype, options string) error {
	argv := []string{"mount"}
	if fstype != "" {
		argv = append(argv, "-t", fstype)
	}
	if options != "" && options != "defaults" {
		argv = append(argv, "-o", options)
	}
	argv = append(argv, source, target)
	if _, err := m.run.Run(ctx, argv); err != nil {
		return herrors.Wrapf(err, herrors.CodeExecutionFailed, "mount %s", target)
	}
	return nil
}

// BindMount implements MountOps.
func (m *CommandMounts) BindMount(ctx context.Context, source, target string) error {
	if _, err := m.run.Run(ctx, []string{"mount", "--rbind", source, target}); err != nil {
		return herrors.Wrapf(err, herrors.CodeExecutionFailed, "bind mount %s", target)
	}
	return nil
}

// KernelMounts implements MountOps with the mount system call.
type KernelMounts struct {
	logger *slog.Logger
}

// NewKernelMounts creates a KernelMounts.
func NewKernelMounts(logger *slog.Logger) *KernelMounts {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &KernelMounts{logger: logger}
}

var _ MountOps = (*KernelMounts)(nil)
