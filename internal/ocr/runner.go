package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Runner executes the external converters (pdftotext, pdftoppm, tesseract,
// magick). Tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ToolError reports a failed external command. It unwraps to the context error
// when the command was killed by cancellation, so deadline checks still match.
type ToolError struct {
	Tool     string
	ExitCode int // -1 when the process never ran or was killed
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s failed (exit %d): %v", e.Tool, e.ExitCode, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + truncate(s, 512)
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

// NotInstalled reports whether the tool binary could not be found.
func (e *ToolError) NotInstalled() bool { return errors.Is(e.Err, exec.ErrNotFound) }

type execRunner struct {
	logger *slog.Logger
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	log := r.logger
	if log == nil {
		log = slog.Default()
	}
	if _, err := exec.LookPath(name); err != nil {
		log.Error("ocr.exec.missing_tool", "cmd", name, "error", err)
		return nil, nil, &ToolError{Tool: name, ExitCode: -1, Err: err}
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if runErr == nil {
		log.Debug("ocr.exec.ok",
			"cmd", name,
			"args", strings.Join(args, " "),
			"stdout_bytes", out.Len(),
			"elapsed_ms", elapsed.Milliseconds(),
		)
		return out.Bytes(), errb.Bytes(), nil
	}

	te := &ToolError{Tool: name, ExitCode: -1, Stderr: errb.String(), Err: runErr}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		te.ExitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		te.Err = ctxErr
	}
	log.Error("ocr.exec.failed",
		"cmd", name,
		"args", strings.Join(args, " "),
		"exit_code", te.ExitCode,
		"elapsed_ms", elapsed.Milliseconds(),
		"error", te.Err,
		"stderr", truncate(te.Stderr, 8<<10),
	)
	return out.Bytes(), errb.Bytes(), te
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
