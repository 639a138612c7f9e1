package daemon

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// PIDFile tracks the single boardrunner daemon allowed per state
// directory. The poll loop assumes it is the only local writer of its
// SQLite store and the only claimer under its configured identity, so
// a second instance on the same host must be refused at startup.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Acquire writes the current process's PID, refusing when the file
// already names a live process. A PID file left behind by a crashed
// daemon (dead PID) is silently taken over.
func (p *PIDFile) Acquire() error {
	if pid, running := p.IsRunning(); running {
		return fmt.Errorf("another instance is already running with PID %d (%s)", pid, p.Path)
	}
	return p.WritePID(os.Getpid())
}

// Write writes the current process's PID to the file without checking
// for a live owner. Most callers want Acquire.
func (p *PIDFile) Write() error {
	return p.WritePID(os.Getpid())
}

// WritePID writes the given PID to the file.
func (p *PIDFile) WritePID(pid int) error {
	return os.WriteFile(p.Path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// Read reads the PID from the file.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	return pid, nil
}

// Remove deletes the PID file.
func (p *PIDFile) Remove() error {
	return os.Remove(p.Path)
}
