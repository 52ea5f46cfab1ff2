// Package infra implements infrastructure concerns (storage, settings, processes, paths).
package infra

import (
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/macroflow/internal/domain"
)

// ProcessManagerImpl implements domain.ProcessManager using gopsutil.
type ProcessManagerImpl struct{}

// NewProcessManager creates a new process manager.
func NewProcessManager() *ProcessManagerImpl {
	return &ProcessManagerImpl{}
}

// IsRunning reports whether pid names a live, non-zombie process.
func (pm *ProcessManagerImpl) IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExists(int32(pid))
	if err != nil || !exists {
		return false
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	status, err := p.Status()
	if err != nil {
		// Status is not available on every platform; existence is enough.
		return true
	}
	for _, s := range status {
		if s == process.Zombie {
			return false
		}
	}
	return true
}

// GetCurrentPID returns the current process PID.
func (pm *ProcessManagerImpl) GetCurrentPID() int {
	return os.Getpid()
}

// HostInfo summarises the machine for the status command.
type HostInfo struct {
	Hostname        string `json:"hostname"`
	OS              string `json:"os"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platform_version"`
	Arch            string `json:"arch"`
}

// String renders a one-line summary.
func (h HostInfo) String() string {
	if h.Platform == "" {
		return fmt.Sprintf("%s/%s", h.OS, h.Arch)
	}
	return fmt.Sprintf("%s %s (%s/%s)", h.Platform, h.PlatformVersion, h.OS, h.Arch)
}

// DescribeHost returns host details, falling back to the Go runtime values
// when the platform query fails.
func DescribeHost() HostInfo {
	info := HostInfo{OS: runtime.GOOS, Arch: runtime.GOARCH}
	stat, err := host.Info()
	if err != nil {
		return info
	}
	info.Hostname = stat.Hostname
	info.Platform = stat.Platform
	info.PlatformVersion = stat.PlatformVersion
	if stat.OS != "" {
		info.OS = stat.OS
	}
	if stat.KernelArch != "" {
		info.Arch = stat.KernelArch
	}
	return info
}

var _ domain.ProcessManager = (*ProcessManagerImpl)(nil)
