package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/untruncd/untruncd/src/internal/domain"
)

// writeFakeTool drops a shell script that stands in for the repair binary.
// The runner invokes it as: tool -n -s -dst <out> <ref> <in>, so inside the
// script $4 is the output path, $5 the reference and $6 the input.
func writeFakeTool(t *testing.T, dir, script string) string {
	t.Helper()
	path := filepath.Join(dir, "untrunc")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func writeVideo(t *testing.T, path string, size int) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	return path
}

func repairKind(t *testing.T, err error) domain.RepairErrorKind {
	t.Helper()
	var re *domain.RepairError
	require.ErrorAs(t, err, &re)
	return re.Kind
}

func TestRepair_Success(t *testing.T) {
	dir := t.TempDir()
	tool := writeFakeTool(t, dir, `head -c 4096 /dev/zero > "$4"`)
	in := writeVideo(t, filepath.Join(dir, "ready", "cam1.mp4"), 5000)
	ref := writeVideo(t, filepath.Join(dir, "ready", "ref.mp4"), 3000)
	out := filepath.Join(dir, "export", "cam1.mp4")

	runner := NewUntruncRunner(tool, 10*time.Second)
	require.NoError(t, runner.Repair(context.Background(), in, out, ref))

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.EqualValues(t, 4096, info.Size())
}

func TestRepair_MissingInput(t *testing.T) {
	dir := t.TempDir()
	tool := writeFakeTool(t, dir, `exit 0`)
	ref := writeVideo(t, filepath.Join(dir, "ref.mp4"), 3000)

	runner := NewUntruncRunner(tool, 10*time.Second)
	err := runner.Repair(context.Background(), filepath.Join(dir, "ghost.mp4"), filepath.Join(dir, "out.mp4"), ref)
	assert.Equal(t, domain.ErrKindInput, repairKind(t, err))
}

func TestRepair_MissingReference(t *testing.T) {
	dir := t.TempDir()
	tool := writeFakeTool(t, dir, `exit 0`)
	in := writeVideo(t, filepath.Join(dir, "in.mp4"), 3000)

	runner := NewUntruncRunner(tool, 10*time.Second)
	err := runner.Repair(context.Background(), in, filepath.Join(dir, "out.mp4"), filepath.Join(dir, "ghost.mp4"))
	assert.Equal(t, domain.ErrKindInput, repairKind(t, err))
}

func TestRepair_ToolFailureCapturesStderr(t *testing.T) {
	dir := t.TempDir()
	tool := writeFakeTool(t, dir, `echo "moov atom truncated" >&2; exit 1`)
	in := writeVideo(t, filepath.Join(dir, "in.mp4"), 3000)
	ref := writeVideo(t, filepath.Join(dir, "ref.mp4"), 3000)

	runner := NewUntruncRunner(tool, 10*time.Second)
	err := runner.Repair(context.Background(), in, filepath.Join(dir, "out.mp4"), ref)
	assert.Equal(t, domain.ErrKindToolFailure, repairKind(t, err))
	assert.Contains(t, err.Error(), "moov atom truncated")
}

func TestRepair_Timeout(t *testing.T) {
	dir := t.TempDir()
	tool := writeFakeTool(t, dir, `sleep 5`)
	in := writeVideo(t, filepath.Join(dir, "in.mp4"), 3000)
	ref := writeVideo(t, filepath.Join(dir, "ref.mp4"), 3000)

	runner := NewUntruncRunner(tool, 200*time.Millisecond)
	start := time.Now()
	err := runner.Repair(context.Background(), in, filepath.Join(dir, "out.mp4"), ref)
	assert.Equal(t, domain.ErrKindTimeout, repairKind(t, err))
	assert.Less(t, time.Since(start), 3*time.Second, "process should be killed at the deadline")
}

func TestRepair_RelocatesAlternateOutput(t *testing.T) {
	dir := t.TempDir()
	// The tool ignores -dst and writes <stem>_fixed<ext> next to the input.
	tool := writeFakeTool(t, dir, `in="$6"
dir=$(dirname "$in")
base=$(basename "$in" .mp4)
head -c 4096 /dev/zero > "$dir/${base}_fixed.mp4"`)
	in := writeVideo(t, filepath.Join(dir, "ready", "cam2.mp4"), 3000)
	ref := writeVideo(t, filepath.Join(dir, "ready", "ref.mp4"), 3000)
	out := filepath.Join(dir, "export", "cam2.mp4")

	runner := NewUntruncRunner(tool, 10*time.Second)
	require.NoError(t, runner.Repair(context.Background(), in, out, ref))

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.EqualValues(t, 4096, info.Size())

	_, err = os.Stat(filepath.Join(dir, "ready", "cam2_fixed.mp4"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "alternate output should have been moved away")
}

func TestRepair_NoOutputIsImplausible(t *testing.T) {
	dir := t.TempDir()
	tool := writeFakeTool(t, dir, `exit 0`)
	in := writeVideo(t, filepath.Join(dir, "in.mp4"), 3000)
	ref := writeVideo(t, filepath.Join(dir, "ref.mp4"), 3000)

	runner := NewUntruncRunner(tool, 10*time.Second)
	err := runner.Repair(context.Background(), in, filepath.Join(dir, "out.mp4"), ref)
	assert.Equal(t, domain.ErrKindImplausibleOutput, repairKind(t, err))
}

func TestRepair_TinyOutputRejectedAndRemoved(t *testing.T) {
	dir := t.TempDir()
	tool := writeFakeTool(t, dir, `printf 'stub' > "$4"`)
	in := writeVideo(t, filepath.Join(dir, "in.mp4"), 3000)
	ref := writeVideo(t, filepath.Join(dir, "ref.mp4"), 3000)
	out := filepath.Join(dir, "out.mp4")

	runner := NewUntruncRunner(tool, 10*time.Second)
	err := runner.Repair(context.Background(), in, out, ref)
	assert.Equal(t, domain.ErrKindImplausibleOutput, repairKind(t, err))

	// Sub-threshold garbage must never be left where downstream consumers
	// would pick it up.
	_, statErr := os.Stat(out)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestResolveUntruncBinary_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	tool := writeFakeTool(t, dir, `exit 0`)

	got, err := ResolveUntruncBinary(tool)
	require.NoError(t, err)
	assert.Equal(t, tool, got)

	_, err = ResolveUntruncBinary(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestAlternateOutputPath(t *testing.T) {
	assert.Equal(t, "/data/ready/cam1_fixed.mp4", alternateOutputPath("/data/ready/cam1.mp4"))
	assert.Equal(t, "/data/ready/clip_fixed.mov", alternateOutputPath("/data/ready/clip.mov"))
}

func TestMoveFile_CopiesWhenRenameWorksOrNot(t *testing.T) {
	dir := t.TempDir()
	src := writeVideo(t, filepath.Join(dir, "a", "src.mp4"), 2048)
	dst := filepath.Join(dir, "b", "dst.mp4")
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o755))

	require.NoError(t, moveFile(src, dst))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.EqualValues(t, 2048, info.Size())
	_, err = os.Stat(src)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
