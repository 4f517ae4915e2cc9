package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/untruncd/untruncd/src/internal/domain"
	xlog "github.com/untruncd/untruncd/src/internal/log"
)

// MinPlausibleOutputBytes is the smallest output accepted as a real repair.
// untrunc can exit 0 while producing an empty or near-empty container.
const MinPlausibleOutputBytes = 1024

// maxDiagnosticBytes bounds how much tool output is kept on failures.
const maxDiagnosticBytes = 500

// untrunc CLI syntax (anthwlock/untrunc):
//
//	untrunc [options] <reference.mp4> <corrupted.mp4>
//
// Options used:
//
//	-n    : non-interactive mode (no prompts)
//	-s    : step through unknown sequences (improves recovery)
//	-dst  : set output destination file
type UntruncRunner struct {
	binary  string
	timeout time.Duration
	log     zerolog.Logger
}

// ResolveUntruncBinary finds the untrunc binary on PATH or in well-known
// install locations.
func ResolveUntruncBinary(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("configured untrunc path %s: %w", explicit, err)
		}
		return explicit, nil
	}
	if bin, err := exec.LookPath("untrunc"); err == nil {
		return bin, nil
	}
	for _, p := range []string{"/usr/local/bin/untrunc", "/usr/bin/untrunc", "/app/bin/untrunc"} {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", errors.New("untrunc binary not found: install it and ensure it is on PATH")
}

func NewUntruncRunner(binary string, timeout time.Duration) *UntruncRunner {
	return &UntruncRunner{
		binary:  binary,
		timeout: timeout,
		log:     xlog.WithComponent("untrunc"),
	}
}

// Repair runs untrunc against inputPath using referencePath as the known
// good exemplar, writing the result to outputPath. The tool is invoked as a
// direct child process (no shell) with a bounded wait. Failures come back
// as *domain.RepairError.
func (r *UntruncRunner) Repair(ctx context.Context, inputPath, outputPath, referencePath string) error {
	if _, err := os.Stat(inputPath); err != nil {
		return domain.NewRepairError(domain.ErrKindInput, "input file does not exist: %s", inputPath)
	}
	if _, err := os.Stat(referencePath); err != nil {
		return domain.NewRepairError(domain.ErrKindInput, "reference file does not exist: %s", referencePath)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return domain.NewRepairError(domain.ErrKindInput, "cannot create output directory: %v", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.binary, "-n", "-s", "-dst", outputPath, referencePath, inputPath)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.log.Info().
		Str("input", inputPath).
		Str("output", outputPath).
		Str("reference", referencePath).
		Dur("timeout", r.timeout).
		Msg("running untrunc")

	err := cmd.Run()

	// CommandContext kills the process on deadline; classify that first.
	if runCtx.Err() == context.DeadlineExceeded {
		return domain.NewRepairError(domain.ErrKindTimeout, "untrunc timed out after %s", r.timeout)
	}
	if err != nil {
		detail := truncate(stderr.String(), maxDiagnosticBytes)
		if detail == "" {
			detail = truncate(stdout.String(), maxDiagnosticBytes)
		}
		r.log.Error().
			Str("input", inputPath).
			Str("stderr", detail).
			Msg("untrunc failed")
		return domain.NewRepairError(domain.ErrKindToolFailure, "untrunc failed: %v: %s", err, detail)
	}

	// Tool quirk: output may land at <stem>_fixed<ext> next to the input
	// instead of the requested destination.
	if _, err := os.Stat(outputPath); err != nil {
		alt := alternateOutputPath(inputPath)
		if _, altErr := os.Stat(alt); altErr == nil {
			r.log.Info().Str("from", alt).Str("to", outputPath).Msg("relocating auto-generated output")
			if err := moveFile(alt, outputPath); err != nil {
				return domain.NewRepairError(domain.ErrKindToolFailure, "cannot relocate output %s: %v", alt, err)
			}
		} else {
			return domain.NewRepairError(domain.ErrKindImplausibleOutput,
				"untrunc did not create output at %s or %s", outputPath, alt)
		}
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return domain.NewRepairError(domain.ErrKindImplausibleOutput, "cannot stat output: %v", err)
	}
	if info.Size() < MinPlausibleOutputBytes {
		_ = os.Remove(outputPath)
		return domain.NewRepairError(domain.ErrKindImplausibleOutput,
			"output too small (%d bytes), repair likely failed", info.Size())
	}

	r.log.Info().
		Str("input", inputPath).
		Str("output", outputPath).
		Int64("output_size", info.Size()).
		Msg("untrunc completed successfully")
	return nil
}

func alternateOutputPath(inputPath string) string {
	ext := filepath.Ext(inputPath)
	stem := strings.TrimSuffix(filepath.Base(inputPath), ext)
	return filepath.Join(filepath.Dir(inputPath), stem+"_fixed"+ext)
}

// moveFile renames, falling back to copy+remove across filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
