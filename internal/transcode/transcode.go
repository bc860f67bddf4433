// Package transcode implements the offline datamosh pipeline. A job runs
// three passes: re-encode the input to a raw H.264 elementary stream with a
// fully predictable keyframe cadence, strip the IDR units from it, and
// remux the corrupted stream back into a playable MP4 without re-encoding.
// The codec engine is an external ffmpeg invocation.
package transcode

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/vcrlab/tapedeck/internal/nal"
)

// Stage identifies which pass of the pipeline failed.
type Stage string

// Pipeline stages, in execution order.
const (
	StageEncode  Stage = "encode"
	StageCorrupt Stage = "corrupt"
	StageRemux   Stage = "remux"
)

// Error wraps a failed pipeline stage and its cause. A job that returns an
// Error produced no output and left no temporary artifacts behind.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transcode %s pass: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Keyframe cadence bounds. The GOP size controls how far corruption
// propagates, so an out-of-range value changes the artifact's character
// rather than degrading gracefully; it is rejected.
const (
	MinInterval     = 2
	MaxInterval     = 30
	DefaultInterval = 12
)

// Transcoder runs datamosh jobs. The engine lookup happens once, lazily,
// guarded against concurrent first calls; one job runs at a time per
// instance. Instances may be reused across jobs.
type Transcoder struct {
	log     *slog.Logger
	tmpRoot string

	initOnce sync.Once
	engine   string
	initErr  error

	jobMu sync.Mutex
}

// New creates a Transcoder. If log is nil, slog.Default() is used.
func New(log *slog.Logger) *Transcoder {
	if log == nil {
		log = slog.Default()
	}
	return &Transcoder{
		log:     log.With("component", "transcoder"),
		tmpRoot: os.TempDir(),
	}
}

// init resolves the external codec engine exactly once.
func (t *Transcoder) init() error {
	t.initOnce.Do(func() {
		t.engine, t.initErr = exec.LookPath("ffmpeg")
		if t.initErr == nil {
			t.log.Info("codec engine ready", "path", t.engine)
		}
	})
	return t.initErr
}

// Mosh re-encodes input with a GOP of iFrameInterval frames, strips every
// IDR unit from the elementary stream, and remuxes the corrupted stream
// into a faststart MP4. The whole three-pass sequence honors ctx; partial
// output is never returned, and all temporaries are removed on every exit
// path. The input bytes are never modified.
func (t *Transcoder) Mosh(ctx context.Context, input []byte, iFrameInterval int) ([]byte, error) {
	if iFrameInterval < MinInterval || iFrameInterval > MaxInterval {
		return nil, fmt.Errorf("i-frame interval %d out of range [%d, %d]",
			iFrameInterval, MinInterval, MaxInterval)
	}
	if len(input) == 0 {
		return nil, &Error{Stage: StageEncode, Err: fmt.Errorf("empty input")}
	}
	if err := t.init(); err != nil {
		return nil, &Error{Stage: StageEncode, Err: err}
	}

	t.jobMu.Lock()
	defer t.jobMu.Unlock()

	// Per-job namespace: fixed file names inside a unique directory, so
	// reuse can never collide with a previous job's leftovers.
	dir := filepath.Join(t.tmpRoot, "tapedeck-"+uuid.NewString())
	if err := os.RemoveAll(dir); err != nil {
		return nil, &Error{Stage: StageEncode, Err: err}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, &Error{Stage: StageEncode, Err: err}
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "input")
	rawPath := filepath.Join(dir, "raw.h264")
	moshedPath := filepath.Join(dir, "moshed.h264")
	outPath := filepath.Join(dir, "out.mp4")

	if err := os.WriteFile(inPath, input, 0o600); err != nil {
		return nil, &Error{Stage: StageEncode, Err: err}
	}

	if err := t.runEngine(ctx, StageEncode, encodeArgs(inPath, rawPath, iFrameInterval)); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(rawPath)
	if err != nil {
		return nil, &Error{Stage: StageCorrupt, Err: err}
	}
	moshed := nal.StripIDR(raw)
	t.log.Info("stripped keyframes",
		"units", len(nal.Units(raw)),
		"bytes_in", len(raw),
		"bytes_out", len(moshed),
	)
	if err := os.WriteFile(moshedPath, moshed, 0o600); err != nil {
		return nil, &Error{Stage: StageCorrupt, Err: err}
	}

	if err := t.runEngine(ctx, StageRemux, remuxArgs(moshedPath, outPath)); err != nil {
		return nil, err
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, &Error{Stage: StageRemux, Err: err}
	}
	return out, nil
}

// runEngine executes one codec pass, capturing stderr for diagnosis.
func (t *Transcoder) runEngine(ctx context.Context, stage Stage, args []string) error {
	cmd := exec.CommandContext(ctx, t.engine, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	t.log.Debug("engine pass", "stage", string(stage), "args", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		return &Error{Stage: stage, Err: fmt.Errorf("%w: %s", err, stderrTail(&stderr))}
	}
	return nil
}

// encodeArgs builds the encode pass: GOP and minimum keyframe interval both
// pinned to the requested cadence, forced keyframes every two seconds on
// top, no B-frames, scene-cut keyframe insertion disabled, maximum-effort
// preset. The only intra-coded units in the output are the ones this pass
// inserts itself.
func encodeArgs(in, out string, interval int) []string {
	return []string{
		"-hide_banner", "-y",
		"-i", in,
		"-an",
		"-c:v", "libx264",
		"-g", strconv.Itoa(interval),
		"-keyint_min", strconv.Itoa(interval),
		"-force_key_frames", "expr:gte(t,n_forced*2)",
		"-sc_threshold", "0",
		"-bf", "0",
		"-preset", "veryslow",
		"-f", "h264",
		out,
	}
}

// remuxArgs wraps the corrupted elementary stream back into a container
// without re-encoding, with fast-start metadata placement.
func remuxArgs(in, out string) []string {
	return []string{
		"-hide_banner", "-y",
		"-f", "h264",
		"-i", in,
		"-c", "copy",
		"-movflags", "+faststart",
		"-f", "mp4",
		out,
	}
}

// stderrTail returns the last few lines of engine output, which is where
// ffmpeg puts the actual failure reason.
func stderrTail(buf *bytes.Buffer) string {
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) > 4 {
		lines = lines[len(lines)-4:]
	}
	return strings.Join(lines, " | ")
}
