package rollout

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/charmbracelet/log"

	"github.com/vovakirdan/pixelpilot/internal/buffer"
	"github.com/vovakirdan/pixelpilot/internal/core"
)

// JPEGQuality is used for every recorded frame.
const JPEGQuality = 90

type frameJob struct {
	name  string // relative to the rollout directory
	frame core.Frame
}

// Recorder is a tick observer that writes frames on a background worker so
// the control loop never waits on disk.
type Recorder struct {
	dir    string
	logger *log.Logger

	mu        sync.Mutex
	meta      Meta
	lastSeq   uint64
	lastFrame string
	closed    bool

	jobs *buffer.Queue[frameJob]
	done chan struct{}

	errMu    sync.Mutex
	writeErr error
	written  map[string]bool
}

// NewRecorder creates dir/frames and starts the frame writer.
// meta supplies the header; Steps are filled by the recorder, and so is
// Keymap unless meta already carries one.
func NewRecorder(dir string, meta Meta, actions []core.Action, logger *log.Logger) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Join(dir, "frames"), 0o755); err != nil {
		return nil, fmt.Errorf("rollout: create %s: %w", dir, err)
	}

	if len(meta.Keymap) == 0 {
		meta.Keymap = Keymap(actions)
	}
	meta.Steps = nil

	r := &Recorder{
		dir:    dir,
		logger: logger,
		meta:   meta,
		jobs:    buffer.NewQueue[frameJob](256, buffer.OverflowDropOldest),
		done:    make(chan struct{}),
		written: make(map[string]bool),
	}
	go r.writer()
	return r, nil
}

// Dir returns the rollout directory.
func (r *Recorder) Dir() string {
	return r.dir
}

// OnTick records one committed tick. Ticks without a frame are skipped.
func (r *Recorder) OnTick(res core.TickResult) {
	if res.Frame.IsZero() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	t := len(r.meta.Steps)
	if r.meta.StartTimeUnix == 0 {
		r.meta.StartTimeUnix = unixSeconds(res.Tick.Started)
	}

	// Stale frames point at the file already written for that capture
	if res.Frame.Seq != r.lastSeq || r.lastFrame == "" {
		name := fmt.Sprintf("frames/%05d.jpg", t)
		err := r.jobs.Push(context.Background(), frameJob{name: name, frame: res.Frame})
		if err != nil {
			return
		}
		r.lastSeq = res.Frame.Seq
		r.lastFrame = name
	}

	vec, held := Encode(r.meta.Keymap, res.Action)
	step := Step{
		T:          t,
		TimeUnix:   unixSeconds(res.Tick.Started),
		HeldKeys:   held,
		Action:     vec,
		ActionName: res.Action.Name,
		Frame:      r.lastFrame,
		EpisodeID:  res.EpisodeID,
		Fallback:   res.Fallback,
	}
	if res.HasReward {
		step.Reward = res.Reward.Reward
	}
	r.meta.Steps = append(r.meta.Steps, step)
}

// Steps returns the number of recorded steps.
func (r *Recorder) Steps() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.meta.Steps)
}

func (r *Recorder) writer() {
	defer close(r.done)
	for {
		job, ok := r.jobs.Pop(context.Background())
		if !ok {
			return
		}
		path := filepath.Join(r.dir, job.name)
		err := writeFrame(path, job.frame)

		r.errMu.Lock()
		if err == nil {
			r.written[job.name] = true
		} else if r.writeErr == nil {
			r.writeErr = err
		}
		r.errMu.Unlock()

		if err != nil && r.logger != nil {
			r.logger.Error("frame write failed", "path", path, "error", err)
		}
	}
}

func writeFrame(path string, f core.Frame) error {
	img := f.Image()
	if img == nil {
		return fmt.Errorf("rollout: frame %d is not RGBA", f.Seq)
	}
	if err := imgio.Save(path, img, imgio.JPEGEncoder(JPEGQuality)); err != nil {
		return fmt.Errorf("rollout: save %s: %w", path, err)
	}
	return nil
}

// Close flushes pending frames and writes rollout.json.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.jobs.Close()
	<-r.done

	r.mu.Lock()
	meta := r.meta
	r.mu.Unlock()

	// Steps whose frame was dropped or failed to write carry no frame
	r.errMu.Lock()
	missing := 0
	for i := range meta.Steps {
		if f := meta.Steps[i].Frame; f != "" && !r.written[f] {
			meta.Steps[i].Frame = ""
			missing++
		}
	}
	r.errMu.Unlock()
	if missing > 0 && r.logger != nil {
		r.logger.Warn("steps recorded without a frame", "steps", missing)
	}

	var errs []error
	if dropped := r.jobs.Dropped(); dropped > 0 {
		errs = append(errs, fmt.Errorf("rollout: %d frames dropped by a slow disk", dropped))
	}
	r.errMu.Lock()
	errs = append(errs, r.writeErr)
	r.errMu.Unlock()
	errs = append(errs, Save(r.dir, &meta))

	if r.logger != nil {
		r.logger.Info("rollout saved", "dir", r.dir, "steps", len(meta.Steps))
	}
	return errors.Join(errs...)
}

// unixSeconds converts t to fractional Unix seconds.
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
