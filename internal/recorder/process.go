package recorder

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessInfo identifies the observed process in statusConnected events.
type ProcessInfo struct {
	PID       int    `json:"pid"`
	Name      string `json:"name,omitempty"`
	CmdLine   string `json:"cmdline,omitempty"`
	StartedAt int64  `json:"startedAt,omitempty"` // unix milliseconds
}

func currentProcess() ProcessInfo {
	info := ProcessInfo{PID: os.Getpid()}
	p, err := process.NewProcess(int32(info.PID))
	if err != nil {
		return info
	}
	if name, err := p.Name(); err == nil {
		info.Name = name
	}
	if cmd, err := p.Cmdline(); err == nil {
		info.CmdLine = cmd
	}
	if created, err := p.CreateTime(); err == nil {
		info.StartedAt = created
	}
	return info
}
