package isolation

import (
	"log/slog"
	"os/exec"

	"github.com/iagocavalcante/izi-queue/pkg/jobqueue"
)

// applyResourceLimits is best-effort: Go's os/exec exposes no portable
// per-process memory cap, and syscall.SysProcAttr's fields are
// GOOS-specific, so rather than branch on build tags for a handful of
// advisory knobs this simply logs what was requested. Deployments that
// need hard limits should run isolation subprocesses under a cgroup-aware
// supervisor and treat ResourceLimits as a hint to that supervisor.
func applyResourceLimits(cmd *exec.Cmd, limits *jobqueue.ResourceLimits, log *slog.Logger) {
	if limits == nil {
		return
	}
	log.Debug("isolation resource limits requested (advisory only)",
		"memory_mb", limits.MemoryMB, "cpu_shares", limits.CPUShares, "niceness", limits.Niceness)
}
