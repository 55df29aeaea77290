package llamacpp

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
)

var ErrNotReady = errors.New("llamacpp: server did not become ready")

// ExecutableNotFoundError is returned when the llama-server binary cannot be located.
type ExecutableNotFoundError struct {
	Executable string
}

func (e *ExecutableNotFoundError) Error() string {
	return fmt.Sprintf("llamacpp: executable not found: %q (install llama.cpp or set the server binary)", e.Executable)
}

// ExitError is returned when llama-server exits before it is ready.
type ExitError struct {
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("llamacpp: server exited with code %d; stderr: %s", e.ExitCode, e.Stderr)
}

// StatusError is a non-2xx answer from the runtime's HTTP API.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llamacpp: %s returned %d: %s", e.Endpoint, e.Code, e.Body)
}

func isNotFound(err error) bool {
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return errors.Is(execErr.Err, exec.ErrNotFound)
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr.Err, os.ErrNotExist)
	}
	return false
}
