// Package quarkfs integrates the byte cache, the fetch worker, and a
// pluggable predictor into Quark's read path (spec.md C8), and exposes the
// interactive control surface grounded on quark.py's _log_cache command
// thread (s / enable / cache <path> / pred <path> [k] / exit).
package quarkfs

import (
	"fmt"
	"io"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/sonroyaalmerol/quark/internal/backing"
	"github.com/sonroyaalmerol/quark/internal/cache"
	"github.com/sonroyaalmerol/quark/internal/fetch"
	"github.com/sonroyaalmerol/quark/internal/predictor"
	"github.com/sonroyaalmerol/quark/internal/qlog"
	"github.com/sonroyaalmerol/quark/internal/vpath"
)

// DefaultPredictionFanout mirrors quark.py's predict_nexts(path,
// num_predictions=2) call inside its read hook.
const DefaultPredictionFanout = 2

// FS is Quark's read-path integrator. It is independent of any particular
// FUSE binding: internal/fusefs calls Read and nothing else on the hot
// path, so this package can be exercised without a mounted filesystem.
type FS struct {
	root      *backing.Root
	cache     *cache.Cache
	fetch     *fetch.Worker
	predictor predictor.Predictor
	log       *qlog.Logger

	enabled atomic.Bool
	fanout  int
}

// New constructs an FS. Predictive prefetch starts disabled so operators
// can measure baseline behavior before opting in, matching quark.py's
// QuarkFS(enable_opt=False) default.
func New(root *backing.Root, c *cache.Cache, f *fetch.Worker, p predictor.Predictor, l *qlog.Logger) *FS {
	fs := &FS{
		root:      root,
		cache:     c,
		fetch:     f,
		predictor: p,
		log:       l,
		fanout:    DefaultPredictionFanout,
	}
	fs.enabled.Store(false)
	return fs
}

// Enabled reports whether predictive prefetch is currently active.
func (fs *FS) Enabled() bool { return fs.enabled.Load() }

// SetEnabled toggles predictive prefetch without affecting cache serving
// or logging (quark.py's "enable" console command flips the same flag).
func (fs *FS) SetEnabled(v bool) { fs.enabled.Store(v) }

// Read serves [offset, offset+size) of path, preferring the byte cache
// and falling through to the backing root on a miss. Every read logs the
// access (unless it repeats the last one) and, if enabled, enqueues
// predicted successors for prefetch.
func (fs *FS) Read(path string, size, offset int64) ([]byte, error) {
	path = vpath.Normalize(path)

	if data, ok := fs.cache.LookupRange(path, size, offset); ok {
		fs.logAndPredict(path)
		return data, nil
	}

	f, err := fs.root.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return nil, err
		}
	}
	buf := make([]byte, size)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}

	fs.logAndPredict(path)
	return buf[:n], nil
}

// logAndPredict is the direct analogue of quark.py's log_predict closure:
// log the access unless path is the same access as last time (repeated
// reads within one open file are not re-logged), then, if prefetch is
// enabled, enqueue the model's top predictions.
func (fs *FS) logAndPredict(path string) {
	if last, ok := fs.predictor.Last(""); !ok || last != path {
		fs.predictor.Log(path)
	}

	if !fs.Enabled() {
		return
	}
	for _, p := range fs.predictor.Predict(path, fs.fanout) {
		fs.fetch.Enqueue(p)
	}
}

// ControlRequest is one interactive command, the Go analogue of a line
// typed into quark.py's console thread. ID correlates a request with its
// ControlResponse (cmd/quark/main.go's stdin loop tags each line with a
// fresh UUID).
type ControlRequest struct {
	ID   uuid.UUID
	Verb string
	Args []string
}

// ControlResponse carries the result of one ControlRequest.
type ControlResponse struct {
	ID    uuid.UUID
	Lines []string
	Exit  bool
}

// Control executes one interactive command: "s" (status), "enable"
// (toggle prefetch), "cache <path>" (enqueue a manual prefetch), "pred
// <path> [k]" (run the predictor without logging), or "exit".
func (fs *FS) Control(req ControlRequest) ControlResponse {
	resp := ControlResponse{ID: req.ID}
	switch req.Verb {
	case "s", "status":
		resp.Lines = []string{fs.statusString()}

	case "enable":
		fs.SetEnabled(!fs.Enabled())
		resp.Lines = []string{fmt.Sprintf("prefetch enabled=%v", fs.Enabled())}

	case "cache":
		if len(req.Args) < 1 {
			resp.Lines = []string{"usage: cache <path>"}
			break
		}
		p := vpath.Normalize(req.Args[0])
		fs.fetch.Enqueue(p)
		resp.Lines = []string{fmt.Sprintf("enqueued %s", p)}

	case "pred":
		if len(req.Args) < 1 {
			resp.Lines = []string{"usage: pred <path> [k]"}
			break
		}
		p := vpath.Normalize(req.Args[0])
		k := fs.fanout
		if len(req.Args) > 1 {
			if v, err := strconv.Atoi(req.Args[1]); err == nil && v > 0 {
				k = v
			}
		}
		preds := fs.predictor.Predict(p, k)
		resp.Lines = []string{fmt.Sprintf("predictions for %s: %v", p, preds)}

	case "exit":
		resp.Exit = true

	default:
		resp.Lines = []string{fmt.Sprintf("unknown command %q", req.Verb)}
	}
	return resp
}

func (fs *FS) statusString() string {
	total, residents := fs.cache.Status()
	enq, dropped, fetched, skipped := fs.fetch.Stats()
	return fmt.Sprintf(
		"cache: %d/%d bytes, %d files resident\nfetch: enqueued=%d dropped=%d fetched=%d skipped=%d\npredictor: %s\nprefetch enabled=%v",
		total, fs.cache.Budget(), len(residents), enq, dropped, fetched, skipped, fs.predictor.Status(), fs.Enabled(),
	)
}
