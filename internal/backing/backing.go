// Package backing wraps the directory tree Quark mounts read-through to, the
// way internal/backend/arpc.ARPCFS and the NFS cache handlers front a
// billy.Filesystem rather than talking to the OS directly.
package backing

import (
	"io"
	"os"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/cockroachdb/errors"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

// Root is the backing directory a Quark mount reads through to. It owns no
// state beyond the billy.Filesystem handle; all path keys passed in are
// already-normalized VirtualPaths (internal/vpath). dir is the real
// on-disk directory when the backing store is an actual directory ("" for
// in-memory test fixtures), used only for operations billy.Filesystem has
// no notion of (chmod, chown, truncate, utimens, mknod, link, extended
// attributes, statfs).
type Root struct {
	fs  billy.Filesystem
	dir string
}

// NewRoot opens dir as the backing directory for a mount.
func NewRoot(dir string) (*Root, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "stat backing root %q", dir)
	}
	if !info.IsDir() {
		return nil, errors.Newf("backing root %q is not a directory", dir)
	}
	return &Root{fs: osfs.New(dir), dir: dir}, nil
}

// NewRootFS wraps an already-constructed billy.Filesystem, used by tests to
// substitute memfs.New() for a real directory. RealPath is unavailable on
// a Root built this way.
func NewRootFS(fs billy.Filesystem) *Root {
	return &Root{fs: fs}
}

// RealPath resolves a VirtualPath to an absolute on-disk path confined to
// the backing root: ".." components and symlinks are resolved as if the
// root were "/", so the result never points outside it, the way
// internal/agent/agentfs/agentfs_linux.go's abs() does via the same
// securejoin.SecureJoin call. Returns an error if this Root has no real
// on-disk directory (an in-memory test fixture).
func (r *Root) RealPath(path string) (string, error) {
	if r.dir == "" {
		return "", errors.New("backing root has no on-disk directory")
	}
	return securejoin.SecureJoin(r.dir, path)
}

// FS exposes the underlying billy.Filesystem for components (the FUSE layer,
// the fetch worker) that need the full surface rather than just ReadFile/Stat.
func (r *Root) FS() billy.Filesystem {
	return r.fs
}

// Stat stats a VirtualPath relative to the backing root.
func (r *Root) Stat(path string) (os.FileInfo, error) {
	return r.fs.Stat(path)
}

// ReadFile reads a file whole. Used by the fetch worker (C3) to load a
// predicted file into the byte cache; never used for partial reads.
func (r *Root) ReadFile(path string) ([]byte, error) {
	f, err := r.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := r.fs.Stat(path)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, info.Size())
	n, err := readFull(f, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func readFull(r billy.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			if err == io.EOF {
				return total, nil
			}
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

// Open opens a file for the pass-through read path (cache miss / non-read
// operations).
func (r *Root) Open(path string) (billy.File, error) {
	return r.fs.Open(path)
}
