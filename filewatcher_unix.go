// Completion: 100% - Platform-specific module complete
//go:build linux
// +build linux

package main

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sync"
	"time"
	"unsafe"

	"github.com/xyproto/elf2efi/internal/logging"
	"golang.org/x/sys/unix"
)

const watchEvents = unix.IN_MODIFY | unix.IN_CLOSE_WRITE | unix.IN_MOVED_TO | unix.IN_CREATE

// FileWatcher watches the directories of the added files, so that a file
// replaced by rename (as linkers and editors often do) is still seen.
type FileWatcher struct {
	fd          int
	watchMap    map[int]string  // watch descriptor -> directory
	files       map[string]bool // absolute paths of watched files
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	onChange    func(string)
	done        chan struct{}
	closeOnce   sync.Once
}

func NewFileWatcher(onChange func(string)) (*FileWatcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("inotify_init failed: %v", err)
	}

	return &FileWatcher{
		fd:          fd,
		watchMap:    make(map[int]string),
		files:       make(map[string]bool),
		debounceMap: make(map[string]*time.Timer),
		onChange:    onChange,
		done:        make(chan struct{}),
	}, nil
}

func (fw *FileWatcher) AddFile(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(absPath)

	wd, err := unix.InotifyAddWatch(fw.fd, dir, watchEvents)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %v", dir, err)
	}

	fw.mu.Lock()
	fw.watchMap[wd] = dir
	fw.files[absPath] = true
	fw.mu.Unlock()

	logging.Debugf("watching %s (inotify on %s)", absPath, dir)
	return nil
}

// Watch blocks until Close is called
func (fw *FileWatcher) Watch() {
	buf := make([]byte, (unix.SizeofInotifyEvent+unix.NAME_MAX+1)*16)

	for {
		select {
		case <-fw.done:
			return
		default:
		}

		n, err := unix.Read(fw.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			logging.Debugf("Error reading inotify events: %v", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}

		offset := 0
		for offset+unix.SizeofInotifyEvent <= n {
			event := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
			nameStart := offset + unix.SizeofInotifyEvent
			nameEnd := nameStart + int(event.Len)
			offset = nameEnd
			if event.Mask&watchEvents == 0 || event.Len == 0 || nameEnd > n {
				continue
			}

			name := string(bytes.TrimRight(buf[nameStart:nameEnd], "\x00"))
			fw.mu.Lock()
			path := filepath.Join(fw.watchMap[int(event.Wd)], name)
			watched := fw.files[path]
			fw.mu.Unlock()

			if watched {
				fw.debouncedCallback(path)
			}
		}
	}
}

func (fw *FileWatcher) debouncedCallback(path string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if timer, exists := fw.debounceMap[path]; exists {
		timer.Stop()
	}

	fw.debounceMap[path] = time.AfterFunc(500*time.Millisecond, func() {
		fw.onChange(path)
		fw.mu.Lock()
		delete(fw.debounceMap, path)
		fw.mu.Unlock()
	})
}

// Close stops Watch. It is safe to call more than once.
func (fw *FileWatcher) Close() error {
	var err error
	fw.closeOnce.Do(func() {
		close(fw.done)
		fw.mu.Lock()
		for _, timer := range fw.debounceMap {
			timer.Stop()
		}
		fw.mu.Unlock()
		err = unix.Close(fw.fd)
	})
	return err
}
