package quarkfs

import (
	"context"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonroyaalmerol/quark/internal/backing"
	"github.com/sonroyaalmerol/quark/internal/cache"
	"github.com/sonroyaalmerol/quark/internal/fetch"
	"github.com/sonroyaalmerol/quark/internal/predictor"
)

func newFixture(t *testing.T) (*FS, *backing.Root, *fetch.Worker) {
	t.Helper()
	root := backing.NewRootFS(memfs.New())
	for name, content := range map[string]string{
		"a.txt": "AAAA",
		"b.txt": "BBBB",
		"c.txt": "CCCC",
	} {
		f, err := root.FS().Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	c := cache.New(1 << 20)
	w := fetch.New(root, c, nil)
	w.Start(context.Background())
	t.Cleanup(w.Stop)

	p := predictor.NewSWG(nil)
	fs := New(root, c, w, p, nil)
	return fs, root, w
}

func TestReadPassesThroughOnMiss(t *testing.T) {
	fs, _, _ := newFixture(t)
	out, err := fs.Read("a.txt", 4, 0)
	require.NoError(t, err)
	assert.Equal(t, "AAAA", string(out))
}

func TestReadServesFromCacheOnHit(t *testing.T) {
	fs, _, w := newFixture(t)
	w.Enqueue("a.txt")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !fs.cache.Contains("a.txt") {
		time.Sleep(time.Millisecond)
	}
	require.True(t, fs.cache.Contains("a.txt"))

	out, err := fs.Read("a.txt", 4, 0)
	require.NoError(t, err)
	assert.Equal(t, "AAAA", string(out))
}

func TestRepeatedReadOfSamePathDoesNotRelog(t *testing.T) {
	fs, _, _ := newFixture(t)
	fs.SetEnabled(false) // isolate logging behavior from prefetch enqueue

	_, err := fs.Read("a.txt", 2, 0)
	require.NoError(t, err)
	_, err = fs.Read("a.txt", 2, 2)
	require.NoError(t, err)

	last, ok := fs.predictor.Last("")
	require.True(t, ok)
	assert.Equal(t, "a.txt", last)
}

func TestPredictionEnqueuesSuccessor(t *testing.T) {
	fs, _, w := newFixture(t)
	fs.SetEnabled(true)

	// Train the predictor: a -> b observed.
	fs.predictor.Log("a.txt")
	fs.predictor.Log("b.txt")

	_, err := fs.Read("a.txt", 4, 0)
	require.NoError(t, err)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, _, fetched, _ := w.Stats(); fetched > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	_, _, fetched, _ := w.Stats()
	assert.Greater(t, fetched, int64(0))
}

func TestControlStatusAndToggle(t *testing.T) {
	fs, _, _ := newFixture(t)

	resp := fs.Control(ControlRequest{ID: uuid.New(), Verb: "s"})
	require.Len(t, resp.Lines, 1)
	assert.Contains(t, resp.Lines[0], "cache:")

	assert.False(t, fs.Enabled())
	resp = fs.Control(ControlRequest{ID: uuid.New(), Verb: "enable"})
	assert.Contains(t, resp.Lines[0], "enabled=true")
	assert.True(t, fs.Enabled())
}

func TestControlCacheCommandEnqueuesPrefetch(t *testing.T) {
	fs, _, _ := newFixture(t)

	resp := fs.Control(ControlRequest{ID: uuid.New(), Verb: "cache", Args: []string{"a.txt"}})
	assert.Contains(t, resp.Lines[0], "enqueued a.txt")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !fs.cache.Contains("a.txt") {
		time.Sleep(time.Millisecond)
	}
	assert.True(t, fs.cache.Contains("a.txt"))
}

func TestControlPredictDoesNotLog(t *testing.T) {
	fs, _, _ := newFixture(t)
	fs.predictor.Log("a.txt")
	fs.predictor.Log("b.txt")

	before, _ := fs.predictor.Last("")
	fs.Control(ControlRequest{ID: uuid.New(), Verb: "pred", Args: []string{"a.txt", "1"}})
	after, _ := fs.predictor.Last("")

	assert.Equal(t, before, after)
}

func TestControlExit(t *testing.T) {
	fs, _, _ := newFixture(t)
	resp := fs.Control(ControlRequest{ID: uuid.New(), Verb: "exit"})
	assert.True(t, resp.Exit)
}
