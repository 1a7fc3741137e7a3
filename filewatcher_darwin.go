//go:build darwin
// +build darwin

package main

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/xyproto/elf2efi/internal/logging"
	"golang.org/x/sys/unix"
)

type FileWatcher struct {
	kq          int
	watchMap    map[int]string
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	onChange    func(string)
	done        chan struct{}
	closeOnce   sync.Once
}

func NewFileWatcher(onChange func(string)) (*FileWatcher, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("kqueue failed: %v", err)
	}

	return &FileWatcher{
		kq:          kq,
		watchMap:    make(map[int]string),
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

	fd, err := unix.Open(absPath, unix.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s: %v", absPath, err)
	}

	event := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_VNODE,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
		Fflags: unix.NOTE_WRITE | unix.NOTE_ATTRIB | unix.NOTE_DELETE | unix.NOTE_RENAME,
	}

	_, err = unix.Kevent(fw.kq, []unix.Kevent_t{event}, nil, nil)
	if err != nil {
		unix.Close(fd)
		return fmt.Errorf("failed to add kevent for %s: %v", absPath, err)
	}

	fw.mu.Lock()
	fw.watchMap[fd] = absPath
	fw.mu.Unlock()

	logging.Debugf("watching %s (kqueue)", absPath)
	return nil
}

// Watch blocks until Close is called
func (fw *FileWatcher) Watch() {
	events := make([]unix.Kevent_t, 10)
	timeout := unix.NsecToTimespec(int64(200 * time.Millisecond))

	for {
		select {
		case <-fw.done:
			return
		default:
		}

		n, err := unix.Kevent(fw.kq, nil, events, &timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			logging.Debugf("Error reading kevent: %v", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}

		for i := 0; i < n; i++ {
			event := events[i]
			fd := int(event.Ident)

			fw.mu.Lock()
			path := fw.watchMap[fd]
			fw.mu.Unlock()

			if path == "" {
				continue
			}
			// A replaced file keeps the old vnode, watch the new one
			replaced := event.Fflags&(unix.NOTE_DELETE|unix.NOTE_RENAME) != 0
			if replaced {
				fw.mu.Lock()
				delete(fw.watchMap, fd)
				fw.mu.Unlock()
				unix.Close(fd)
			}
			fw.debouncedCallback(path, replaced)
		}
	}
}

func (fw *FileWatcher) debouncedCallback(path string, rewatch bool) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if timer, exists := fw.debounceMap[path]; exists {
		timer.Stop()
	}

	fw.debounceMap[path] = time.AfterFunc(500*time.Millisecond, func() {
		if rewatch {
			if err := fw.AddFile(path); err != nil {
				logging.Warningf("%s was replaced and cannot be watched again: %v", path, err)
			}
		}
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
		defer fw.mu.Unlock()

		for _, timer := range fw.debounceMap {
			timer.Stop()
		}
		for fd := range fw.watchMap {
			unix.Close(fd)
		}
		err = unix.Close(fw.kq)
	})
	return err
}
