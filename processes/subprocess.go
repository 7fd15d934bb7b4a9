package processes

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// SubprocessServer runs the web server as a child process. The binary is
// invoked with "-host H -port N" followed by Args, and is expected to answer
// HealthPath on that address.
type SubprocessServer struct {
	BinPath string
	Args    []string
	Env     []string // Appended to os.Environ()
	WorkDir string   // Optional, defaults to the current directory

	logger *slog.Logger

	mu            sync.Mutex
	cmd           *exec.Cmd
	exitErr       error
	stopRequested bool
	exited        chan struct{}
	streams       sync.WaitGroup
}

// NewSubprocessServer creates a SubprocessServer for binPath.
func NewSubprocessServer(binPath string, args []string, logger *slog.Logger) *SubprocessServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubprocessServer{
		BinPath: binPath,
		Args:    args,
		logger:  logger.With("component", "SubprocessServer"),
		exited:  make(chan struct{}),
	}
}

func (s *SubprocessServer) Start(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil {
		return fmt.Errorf("subprocess already started (pid %d)", s.cmd.Process.Pid)
	}

	cmdArgs := append([]string{"-host", host, "-port", port}, s.Args...)
	s.logger.Info("Starting process with command line", "bin", s.BinPath, "args", strings.Join(cmdArgs, " "))

	cmd := exec.Command(s.BinPath, cmdArgs...)
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.Dir = s.WorkDir

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		stdoutPipe.Close()
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start subprocess %s: %w", s.BinPath, err)
	}
	s.cmd = cmd
	pid := cmd.Process.Pid

	s.streams.Add(2)
	go s.pipeLogs(stdoutPipe, pid, "stdout", slog.LevelInfo)
	go s.pipeLogs(stderrPipe, pid, "stderr", slog.LevelError)

	go func() {
		// Wait must follow the pipe readers draining.
		s.streams.Wait()
		err := cmd.Wait()
		s.mu.Lock()
		s.exitErr = err
		s.mu.Unlock()
		s.logger.Info("Process exited", "pid", pid, "exitError", err)
		close(s.exited)
	}()

	s.logger.Info("Subprocess started and output streams captured", "pid", pid, "addr", addr)
	return nil
}

func (s *SubprocessServer) pipeLogs(r io.ReadCloser, pid int, source string, level slog.Level) {
	defer s.streams.Done()
	defer r.Close()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.logger.Log(context.Background(), level, "Subprocess "+source, "pid", pid, "output", scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		s.logger.Error("Error reading "+source+" from subprocess", "pid", pid, "error", err)
	}
}

func (s *SubprocessServer) Wait() error {
	<-s.exited
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopRequested {
		// Exited because we asked it to.
		return nil
	}
	return s.exitErr
}

// Shutdown sends os.Interrupt and waits for the process to exit.
func (s *SubprocessServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	cmd := s.cmd
	s.stopRequested = true
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		s.logger.Error("Failed to send interrupt to process", "pid", cmd.Process.Pid, "error", err)
	}

	select {
	case <-s.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Kill sends SIGKILL to the process.
func (s *SubprocessServer) Kill() error {
	s.mu.Lock()
	cmd := s.cmd
	s.stopRequested = true
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	select {
	case <-s.exited:
		return nil
	default:
	}
	s.logger.Warn("Killing process", "pid", cmd.Process.Pid)
	return cmd.Process.Kill()
}
