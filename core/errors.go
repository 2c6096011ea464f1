package core

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/josephlewis42/rush/core/shell"
)

// Exit statuses for failures that happen before a command runs.
const (
	StatusFailure      = 1
	StatusUsage        = 2
	StatusSyntax       = 2
	StatusPipeFailed   = 125
	StatusCannotExec   = 126
	StatusNotFound     = 127
	StatusSignalOffset = 128
)

var (
	ErrNotFound           = errors.New("command not found")
	ErrRedirectFailed     = errors.New("redirect failed")
	ErrSpawnFailed        = errors.New("spawn failed")
	ErrPipeCreationFailed = errors.New("pipe creation failed")
)

// NotFoundError is returned when a program is neither a builtin nor found in
// the search path.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// RedirectError is returned when a redirection target can't be opened.
type RedirectError struct {
	Path string
	Err  error
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, pathCause(e.Err))
}

func (e *RedirectError) Is(target error) bool {
	return target == ErrRedirectFailed
}

func (e *RedirectError) Unwrap() error {
	return e.Err
}

// SpawnError is returned when a resolved program could not be started.
type SpawnError struct {
	Name string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, pathCause(e.Err))
}

func (e *SpawnError) Is(target error) bool {
	return target == ErrSpawnFailed
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// pathCause strips the operation and path from fs errors, the caller already
// names the path.
func pathCause(err error) error {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err
	}
	return err
}

// ExitStatus maps an error to the status a shell reports for it.
func ExitStatus(err error) int {
	var (
		lexErr   *shell.LexError
		parseErr *shell.ParseError
	)
	switch {
	case err == nil:
		return 0
	case errors.As(err, &lexErr), errors.As(err, &parseErr):
		return StatusSyntax
	case errors.Is(err, ErrNotFound):
		return StatusNotFound
	case errors.Is(err, ErrSpawnFailed):
		return StatusCannotExec
	case errors.Is(err, ErrPipeCreationFailed):
		return StatusPipeFailed
	default:
		return StatusFailure
	}
}
