package hardware

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FrameDir is a camera that replays JPEG files from a directory in
// alphabetical order, looping at the end. It is used on boards whose
// capture daemon drops stills into a spool directory, and for bench tests.
type FrameDir struct {
	RootPath string // e.g. /run/wavecam/frames
	FBCount  int

	mu          sync.Mutex
	next        int
	outstanding int
}

// Init checks the directory exists, creating it if needed.
func (fd *FrameDir) Init() error {
	_, err := os.ReadDir(fd.RootPath)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		slog.Error("Folder does not exist, creating it", "path", fd.RootPath)
		if err := os.MkdirAll(fd.RootPath, 0755); err != nil {
			slog.Error("Failed to create frame directory", "err", err)
			return err
		}
		return nil
	}
	if errors.Is(err, fs.ErrPermission) {
		slog.Error("Insufficient permissions to open folder", "path", fd.RootPath)
	}
	return err
}

func (fd *FrameDir) Grab() (*Frame, error) {
	fd.mu.Lock()
	defer fd.mu.Unlock()

	if fd.outstanding >= max(fd.FBCount, 1) {
		return nil, errors.New("frame dir: no free frame buffer")
	}

	files, err := fd.getSortedFrames()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("frame dir: no .jpg files in %s", fd.RootPath)
	}

	idx := fd.next % len(files)
	fd.next = idx + 1

	f := files[idx]
	data, err := os.ReadFile(filepath.Join(fd.RootPath, f.Name()))
	if err != nil {
		return nil, fmt.Errorf("frame dir: read %s: %w", f.Name(), err)
	}

	ts := time.Now()
	if info, err := f.Info(); err == nil {
		ts = info.ModTime()
	}

	fd.outstanding++
	return &Frame{
		Data:      data,
		Format:    FormatJPEG,
		Timestamp: ts,
	}, nil
}

func (fd *FrameDir) Return(f *Frame) {
	if f == nil {
		return
	}
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if fd.outstanding > 0 {
		fd.outstanding--
	}
}

func (fd *FrameDir) getSortedFrames() ([]os.DirEntry, error) {
	entries, err := os.ReadDir(fd.RootPath)
	if err != nil {
		return nil, err
	}

	var files []os.DirEntry
	for _, e := range entries {
		// Filter: Must be file AND end in .jpg / .jpeg
		name := strings.ToLower(e.Name())
		if !e.IsDir() && (strings.HasSuffix(name, ".jpg") || strings.HasSuffix(name, ".jpeg")) {
			files = append(files, e)
		}
	}

	// Sort alphabetically by name
	sort.Slice(files, func(i, j int) bool {
		return files[i].Name() < files[j].Name()
	})

	return files, nil
}
