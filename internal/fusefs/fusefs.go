//go:build linux

// Package fusefs mounts Quark as a user-space FUSE filesystem, grounded on
// internal/backend/arpc/fuse/fuse.go's Node/FileHandle shape, rerouted
// through internal/quarkfs for the cache-aware read path and through
// internal/backing for every other POSIX operation. Unlike the teacher's
// strictly read-only mount, Quark passes writes straight through to the
// backing directory (spec.md's Non-goals exclude a write-back cache, not
// write support itself — see SPEC_FULL.md's supplemented-features
// section), so the full POSIX surface the Python original exposed
// (quark.py's Operations class) is reinstated here.
package fusefs

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"

	"github.com/sonroyaalmerol/quark/internal/backing"
	"github.com/sonroyaalmerol/quark/internal/qlog"
	"github.com/sonroyaalmerol/quark/internal/quarkfs"
	"github.com/sonroyaalmerol/quark/internal/vpath"
)

// Mount mounts root at mountpoint, serving reads through qfs (the cache-
// aware integrator) and everything else straight through to root.
func Mount(mountpoint, fsName string, root *backing.Root, qfs *quarkfs.FS, log *qlog.Logger) (*fuse.Server, error) {
	rootNode := &Node{root: root, qfs: qfs, log: log, path: "."}

	timeout := time.Hour * 24 * 365
	options := &fs.Options{
		MountOptions: fuse.MountOptions{
			FsName:             fsName,
			Name:               "quark",
			AllowOther:         true,
			DisableReadDirPlus: true,
			Options:            []string{"allow_other", "noatime"},
		},
		EntryTimeout:    &timeout,
		AttrTimeout:     &timeout,
		NegativeTimeout: &timeout,
	}

	return fs.Mount(mountpoint, rootNode, options)
}

// Node represents one file or directory in the mount.
type Node struct {
	fs.Inode
	root *backing.Root
	qfs  *quarkfs.FS
	log  *qlog.Logger
	path string // VirtualPath
}

var (
	_ fs.NodeGetattrer     = (*Node)(nil)
	_ fs.NodeSetattrer     = (*Node)(nil)
	_ fs.NodeLookuper      = (*Node)(nil)
	_ fs.NodeReaddirer     = (*Node)(nil)
	_ fs.NodeOpener        = (*Node)(nil)
	_ fs.NodeCreater       = (*Node)(nil)
	_ fs.NodeMkdirer       = (*Node)(nil)
	_ fs.NodeMknoder       = (*Node)(nil)
	_ fs.NodeRmdirer       = (*Node)(nil)
	_ fs.NodeUnlinker      = (*Node)(nil)
	_ fs.NodeRenamer       = (*Node)(nil)
	_ fs.NodeLinker        = (*Node)(nil)
	_ fs.NodeSymlinker     = (*Node)(nil)
	_ fs.NodeReadlinker    = (*Node)(nil)
	_ fs.NodeStatfser      = (*Node)(nil)
	_ fs.NodeAccesser      = (*Node)(nil)
	_ fs.NodeOpendirer     = (*Node)(nil)
	_ fs.NodeReleaser      = (*Node)(nil)
	_ fs.NodeGetxattrer    = (*Node)(nil)
	_ fs.NodeSetxattrer    = (*Node)(nil)
	_ fs.NodeRemovexattrer = (*Node)(nil)
	_ fs.NodeListxattrer   = (*Node)(nil)
)

func childPath(parent, name string) string {
	if parent == "." {
		return vpath.Normalize(name)
	}
	return vpath.Normalize(parent + "/" + name)
}

func attrToMode(info os.FileInfo) uint32 {
	mode := uint32(info.Mode().Perm())
	switch {
	case info.IsDir():
		mode |= syscall.S_IFDIR
	case info.Mode()&os.ModeSymlink != 0:
		mode |= syscall.S_IFLNK
	default:
		mode |= syscall.S_IFREG
	}
	return mode
}

func fillAttr(info os.FileInfo, out *fuse.Attr) {
	out.Mode = attrToMode(info)
	out.Size = uint64(info.Size())
	mtime := info.ModTime()
	out.SetTimes(nil, &mtime, nil)
}

func (n *Node) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	info, err := n.root.Stat(n.path)
	if err != nil {
		return fs.ToErrno(err)
	}
	fillAttr(info, &out.Attr)
	return 0
}

// Setattr handles chmod/chown/truncate/utimens. These require a real
// on-disk path (internal/backing.Root.RealPath): billy.Filesystem itself
// has no notion of permissions or ownership, only osfs-backed mounts
// support this. In-memory-fixture mounts return ENOTSUP, matching what a
// genuinely read-only or synthetic backing store would do.
func (n *Node) Setattr(ctx context.Context, fh fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	real, err := n.root.RealPath(n.path)
	if err != nil {
		return syscall.ENOTSUP
	}

	if mode, ok := in.GetMode(); ok {
		if err := os.Chmod(real, os.FileMode(mode&0o7777)); err != nil {
			return fs.ToErrno(err)
		}
	}
	if uid, ok := in.GetUID(); ok {
		gid, hasGid := in.GetGID()
		if !hasGid {
			gid = ^uint32(0)
		}
		if err := os.Chown(real, int(uid), int(gid)); err != nil {
			return fs.ToErrno(err)
		}
	} else if gid, ok := in.GetGID(); ok {
		if err := os.Chown(real, -1, int(gid)); err != nil {
			return fs.ToErrno(err)
		}
	}
	if size, ok := in.GetSize(); ok {
		if err := os.Truncate(real, int64(size)); err != nil {
			return fs.ToErrno(err)
		}
	}
	if mtime, ok := in.GetMTime(); ok {
		atime := mtime
		if a, ok := in.GetATime(); ok {
			atime = a
		}
		if err := os.Chtimes(real, atime, mtime); err != nil {
			return fs.ToErrno(err)
		}
	}

	return n.Getattr(ctx, fh, out)
}

func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	cp := childPath(n.path, name)
	info, err := n.root.Stat(cp)
	if err != nil {
		return nil, fs.ToErrno(err)
	}

	child := &Node{root: n.root, qfs: n.qfs, log: n.log, path: cp}
	stable := fs.StableAttr{Mode: attrToMode(info)}
	inode := n.NewInode(ctx, child, stable)
	fillAttr(info, &out.Attr)
	return inode, 0
}

func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, err := n.root.FS().ReadDir(n.path)
	if err != nil {
		return nil, fs.ToErrno(err)
	}

	result := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		mode := uint32(fuse.S_IFREG)
		switch {
		case e.IsDir():
			mode = fuse.S_IFDIR
		case e.Mode()&os.ModeSymlink != 0:
			mode = fuse.S_IFLNK
		}
		result = append(result, fuse.DirEntry{Name: e.Name(), Mode: mode})
	}
	return fs.NewListDirStream(result), 0
}

func (n *Node) Opendir(ctx context.Context) syscall.Errno {
	if !n.IsDir() {
		return syscall.ENOTDIR
	}
	return 0
}

func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	f, err := n.root.FS().OpenFile(n.path, int(flags), 0o644)
	if err != nil {
		return nil, 0, fs.ToErrno(err)
	}
	return &FileHandle{node: n, file: f}, 0, 0
}

func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	cp := childPath(n.path, name)
	f, err := n.root.FS().OpenFile(cp, int(flags)|os.O_CREATE, os.FileMode(mode))
	if err != nil {
		return nil, nil, 0, fs.ToErrno(err)
	}

	child := &Node{root: n.root, qfs: n.qfs, log: n.log, path: cp}
	inode := n.NewInode(ctx, child, fs.StableAttr{Mode: syscall.S_IFREG})
	if info, err := n.root.Stat(cp); err == nil {
		fillAttr(info, &out.Attr)
	}
	return inode, &FileHandle{node: child, file: f}, 0, 0
}

func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	cp := childPath(n.path, name)
	if err := n.root.FS().MkdirAll(cp, os.FileMode(mode)); err != nil {
		return nil, fs.ToErrno(err)
	}
	child := &Node{root: n.root, qfs: n.qfs, log: n.log, path: cp}
	inode := n.NewInode(ctx, child, fs.StableAttr{Mode: syscall.S_IFDIR})
	if info, err := n.root.Stat(cp); err == nil {
		fillAttr(info, &out.Attr)
	}
	return inode, 0
}

func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	return fs.ToErrno(n.root.FS().Remove(childPath(n.path, name)))
}

func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	return fs.ToErrno(n.root.FS().Remove(childPath(n.path, name)))
}

func (n *Node) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	newDir, ok := newParent.(*Node)
	if !ok {
		return syscall.EXDEV
	}
	return fs.ToErrno(n.root.FS().Rename(childPath(n.path, name), childPath(newDir.path, newName)))
}

func (n *Node) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	cp := childPath(n.path, name)
	if err := n.root.FS().Symlink(target, cp); err != nil {
		return nil, fs.ToErrno(err)
	}
	child := &Node{root: n.root, qfs: n.qfs, log: n.log, path: cp}
	inode := n.NewInode(ctx, child, fs.StableAttr{Mode: syscall.S_IFLNK})
	return inode, 0
}

func (n *Node) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	target, err := n.root.FS().Readlink(n.path)
	if err != nil {
		return nil, fs.ToErrno(err)
	}
	return []byte(target), 0
}

func (n *Node) Access(ctx context.Context, mask uint32) syscall.Errno {
	return 0
}

func (n *Node) Release(ctx context.Context, f fs.FileHandle) syscall.Errno {
	if fh, ok := f.(fs.FileReleaser); ok {
		return fh.Release(ctx)
	}
	return 0
}

func (n *Node) Mknod(ctx context.Context, name string, mode, dev uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	cp := childPath(n.path, name)
	real, err := n.root.RealPath(cp)
	if err != nil {
		return nil, syscall.ENOTSUP
	}
	if err := unix.Mknod(real, mode, int(dev)); err != nil {
		return nil, fs.ToErrno(err)
	}
	child := &Node{root: n.root, qfs: n.qfs, log: n.log, path: cp}
	inode := n.NewInode(ctx, child, fs.StableAttr{Mode: mode & syscall.S_IFMT})
	if info, err := n.root.Stat(cp); err == nil {
		fillAttr(info, &out.Attr)
	}
	return inode, 0
}

// Link creates a hard link; billy.Filesystem has no Link primitive, so this
// goes straight to the real on-disk path the same way Setattr does.
func (n *Node) Link(ctx context.Context, target fs.InodeEmbedder, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	src, ok := target.(*Node)
	if !ok {
		return nil, syscall.EXDEV
	}
	realSrc, err := n.root.RealPath(src.path)
	if err != nil {
		return nil, syscall.ENOTSUP
	}
	cp := childPath(n.path, name)
	realDst, err := n.root.RealPath(cp)
	if err != nil {
		return nil, syscall.ENOTSUP
	}
	if err := os.Link(realSrc, realDst); err != nil {
		return nil, fs.ToErrno(err)
	}
	child := &Node{root: n.root, qfs: n.qfs, log: n.log, path: cp}
	// Hard links only ever target regular files.
	inode := n.NewInode(ctx, child, fs.StableAttr{Mode: syscall.S_IFREG})
	if info, err := n.root.Stat(cp); err == nil {
		fillAttr(info, &out.Attr)
	}
	return inode, 0
}

// Getxattr, Setxattr, Removexattr and Listxattr forward to the real on-disk
// path's extended attributes. Hosts whose backing filesystem lacks xattr
// support surface ENOTSUP; a present-but-empty attribute is distinguished
// from an absent one by unix.ENODATA (spec.md §6).
func (n *Node) Getxattr(ctx context.Context, attr string, dest []byte) (uint32, syscall.Errno) {
	real, err := n.root.RealPath(n.path)
	if err != nil {
		return 0, syscall.ENOTSUP
	}
	sz, err := unix.Getxattr(real, attr, dest)
	if err != nil {
		return 0, fs.ToErrno(err)
	}
	return uint32(sz), 0
}

func (n *Node) Setxattr(ctx context.Context, attr string, data []byte, flags uint32) syscall.Errno {
	real, err := n.root.RealPath(n.path)
	if err != nil {
		return syscall.ENOTSUP
	}
	return fs.ToErrno(unix.Setxattr(real, attr, data, int(flags)))
}

func (n *Node) Removexattr(ctx context.Context, attr string) syscall.Errno {
	real, err := n.root.RealPath(n.path)
	if err != nil {
		return syscall.ENOTSUP
	}
	return fs.ToErrno(unix.Removexattr(real, attr))
}

func (n *Node) Listxattr(ctx context.Context, dest []byte) (uint32, syscall.Errno) {
	real, err := n.root.RealPath(n.path)
	if err != nil {
		return 0, syscall.ENOTSUP
	}
	sz, err := unix.Listxattr(real, dest)
	if err != nil {
		return 0, fs.ToErrno(err)
	}
	return uint32(sz), 0
}

func (n *Node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	real, err := n.root.RealPath(".")
	if err != nil {
		return 0
	}
	var st unix.Statfs_t
	if err := unix.Statfs(real, &st); err != nil {
		return fs.ToErrno(err)
	}
	out.Blocks = st.Blocks
	out.Bfree = st.Bfree
	out.Bavail = st.Bavail
	out.Files = st.Files
	out.Ffree = st.Ffree
	out.Bsize = uint32(st.Bsize)
	out.NameLen = uint32(st.Namelen)
	out.Frsize = uint32(st.Bsize)
	return 0
}

// FileHandle mediates a single open file: reads go through quarkfs.FS
// (cache-aware), everything else is pass-through to the billy.File.
type FileHandle struct {
	node *Node
	file interface {
		Read([]byte) (int, error)
		Write([]byte) (int, error)
		Close() error
		Truncate(int64) error
	}
}

var (
	_ fs.FileReader    = (*FileHandle)(nil)
	_ fs.FileWriter    = (*FileHandle)(nil)
	_ fs.FileReleaser  = (*FileHandle)(nil)
	_ fs.FileFlusher   = (*FileHandle)(nil)
	_ fs.FileFsyncer   = (*FileHandle)(nil)
	_ fs.FileSetattrer = (*FileHandle)(nil)
)

func (fh *FileHandle) Read(ctx context.Context, dest []byte, offset int64) (fuse.ReadResult, syscall.Errno) {
	data, err := fh.node.qfs.Read(fh.node.path, int64(len(dest)), offset)
	if err != nil {
		return nil, fs.ToErrno(err)
	}
	return fuse.ReadResultData(data), 0
}

func (fh *FileHandle) Write(ctx context.Context, data []byte, offset int64) (uint32, syscall.Errno) {
	seeker, ok := fh.file.(interface {
		Seek(int64, int) (int64, error)
	})
	if ok {
		if _, err := seeker.Seek(offset, 0); err != nil {
			return 0, fs.ToErrno(err)
		}
	}
	n, err := fh.file.Write(data)
	if err != nil {
		return 0, fs.ToErrno(err)
	}
	return uint32(n), 0
}

func (fh *FileHandle) Flush(ctx context.Context) syscall.Errno {
	return 0
}

func (fh *FileHandle) Fsync(ctx context.Context, flags uint32) syscall.Errno {
	if syncer, ok := fh.file.(interface{ Sync() error }); ok {
		return fs.ToErrno(syncer.Sync())
	}
	return 0
}

func (fh *FileHandle) Setattr(ctx context.Context, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok {
		if err := fh.file.Truncate(int64(size)); err != nil {
			return fs.ToErrno(err)
		}
	}
	return fh.node.Getattr(ctx, fh, out)
}

func (fh *FileHandle) Release(ctx context.Context) syscall.Errno {
	return fs.ToErrno(fh.file.Close())
}
