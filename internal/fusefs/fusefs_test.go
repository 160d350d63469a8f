//go:build linux

package fusefs

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChildPathJoinsUnderParent(t *testing.T) {
	assert.Equal(t, "a/b", childPath(".", "a/b"))
	assert.Equal(t, "a/b", childPath("a", "b"))
	assert.Equal(t, "a/b/c", childPath("a/b", "c"))
}

type fakeInfo struct {
	name  string
	size  int64
	mode  os.FileMode
	mtime time.Time
}

func (f fakeInfo) Name() string       { return f.name }
func (f fakeInfo) Size() int64        { return f.size }
func (f fakeInfo) Mode() os.FileMode  { return f.mode }
func (f fakeInfo) ModTime() time.Time { return f.mtime }
func (f fakeInfo) IsDir() bool        { return f.mode.IsDir() }
func (f fakeInfo) Sys() interface{}   { return nil }

func TestAttrToModeDirectory(t *testing.T) {
	mode := attrToMode(fakeInfo{mode: os.ModeDir | 0o755})
	assert.Equal(t, uint32(syscall.S_IFDIR), mode&syscall.S_IFMT)
}

func TestAttrToModeSymlink(t *testing.T) {
	mode := attrToMode(fakeInfo{mode: os.ModeSymlink | 0o777})
	assert.Equal(t, uint32(syscall.S_IFLNK), mode&syscall.S_IFMT)
}

func TestAttrToModeRegularFile(t *testing.T) {
	mode := attrToMode(fakeInfo{mode: 0o644})
	assert.Equal(t, uint32(syscall.S_IFREG), mode&syscall.S_IFMT)
}
