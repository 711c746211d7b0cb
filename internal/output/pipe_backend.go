//go:build unix

package output

import (
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"syscall"
)

func init() {
	Register(Descriptor{
		Name:        "pipe",
		Description: "stream PCM to an external player (aplay)",
		New:         func() Backend { return NewPipeBackend() },
	})
}

// PipeBackend streams the PCM through an external player's stdin. It is
// selected by name only. The stock invocation is aplay in raw mode,
// which covers hosts where no native device path is compiled in but a
// sound server client is on PATH.
type PipeBackend struct {
	command string
	args    func(device string, rate int) []string
	cmd     *exec.Cmd
	stdin   io.WriteCloser
}

func NewPipeBackend() *PipeBackend {
	return newPipeBackendWithCommand("aplay", aplayArgs)
}

// newPipeBackendWithCommand substitutes the player invocation.
func newPipeBackendWithCommand(command string, args func(device string, rate int) []string) *PipeBackend {
	return &PipeBackend{command: command, args: args}
}

// aplayArgs builds a raw-mode invocation matching the stream format:
// 16-bit signed little-endian interleaved stereo.
func aplayArgs(device string, rate int) []string {
	args := []string{"-q", "-t", "raw", "-f", "S16_LE", "-c", "2", "-r", strconv.Itoa(rate)}
	if device != "" {
		args = append(args, "-D", device)
	}
	return args
}

// Open locates the player on PATH and starts it. The device string is
// handed to the player as its device argument; the rate is granted
// as requested because the player performs any resampling itself.
func (b *PipeBackend) Open(device string, rate int) (int, error) {
	if b.cmd != nil {
		return 0, fmt.Errorf("pipe backend already open")
	}
	if rate <= 0 {
		return 0, fmt.Errorf("invalid sample rate %d", rate)
	}

	path, err := exec.LookPath(b.command)
	if err != nil {
		return 0, fmt.Errorf("%w: %s not found in PATH", ErrDeviceUnavailable, b.command)
	}

	cmd := exec.Command(path, b.args(device, rate)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return 0, fmt.Errorf("%w: stdin pipe: %v", ErrDeviceUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("%w: start %s: %v", ErrDeviceUnavailable, b.command, err)
	}

	b.cmd = cmd
	b.stdin = stdin
	slog.Debug("pipe backend opened", "command", b.command, "pid", cmd.Process.Pid, "rate", rate)
	return rate, nil
}

// Write pushes p into the player. The pipe's capacity provides the
// blocking; a player that has exited surfaces here as a write error.
func (b *PipeBackend) Write(p []byte) error {
	if b.cmd == nil {
		return fmt.Errorf("%w: pipe backend", ErrNotOpen)
	}
	if _, err := b.stdin.Write(p); err != nil {
		return fmt.Errorf("write to %s: %w", b.command, err)
	}
	return nil
}

// Pause suspends the player process, which stops it draining the pipe.
func (b *PipeBackend) Pause() {
	if b.cmd == nil {
		return
	}
	if err := b.cmd.Process.Signal(syscall.SIGSTOP); err != nil {
		slog.Debug("pipe backend pause failed", "error", err)
	}
}

// Resume continues a suspended player.
func (b *PipeBackend) Resume() {
	if b.cmd == nil {
		return
	}
	if err := b.cmd.Process.Signal(syscall.SIGCONT); err != nil {
		slog.Debug("pipe backend resume failed", "error", err)
	}
}

// Close ends the stream and waits for the player to drain and exit.
func (b *PipeBackend) Close() error {
	if b.cmd == nil {
		return nil
	}

	cmd := b.cmd
	stdin := b.stdin
	b.cmd = nil
	b.stdin = nil

	// A suspended player can neither drain its stdin nor exit, so
	// continue it before waiting.
	_ = cmd.Process.Signal(syscall.SIGCONT)

	stdinErr := stdin.Close()
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%s exited: %w", b.command, err)
	}
	if stdinErr != nil {
		return fmt.Errorf("close %s stdin: %w", b.command, stdinErr)
	}

	slog.Debug("pipe backend closed", "command", b.command)
	return nil
}
