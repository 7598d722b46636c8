package utils

import (
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"
)

// RotateWriter is an io.Writer which starts a new file every rotatePeriod.
// Rotated files older than retainPeriod are removed
type RotateWriter struct {
	lock         sync.Mutex
	dir          string
	filename     string
	rotatePeriod time.Duration
	retainPeriod time.Duration
	nextRotation time.Time
	fp           *os.File
}

func NewRotateWriter(dir, filename string, rotatePeriod, retainPeriod time.Duration) (*RotateWriter, error) {
	w := &RotateWriter{
		dir:          dir,
		filename:     filename,
		rotatePeriod: rotatePeriod,
		retainPeriod: retainPeriod,
	}
	if err := w.rotate(); err != nil {
		return nil, err
	}
	return w, nil
}

// Write satisfies the io.Writer interface.
func (w *RotateWriter) Write(output []byte) (int, error) {
	w.lock.Lock()
	defer w.lock.Unlock()
	if time.Now().After(w.nextRotation) {
		if err := w.rotateNoLock(); err != nil {
			return 0, err
		}
	}
	return w.fp.Write(output)
}

func (w *RotateWriter) rotate() error {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.rotateNoLock()
}

func (w *RotateWriter) rotateNoLock() error {
	fullName := path.Join(w.dir, w.filename)
	if w.fp != nil {
		err := w.fp.Close()
		w.fp = nil
		if err != nil {
			return err
		}
	}
	if _, err := os.Stat(fullName); err == nil {
		if err = os.Rename(fullName, fullName+"."+time.Now().Format(time.RFC3339)); err != nil {
			return err
		}
	}
	w.purgeOld()
	var err error
	w.fp, err = os.Create(fullName)
	w.nextRotation = time.Now().Add(w.rotatePeriod)
	return err
}

func (w *RotateWriter) purgeOld() {
	if w.retainPeriod == 0 {
		return
	}
	files, err := filepath.Glob(path.Join(w.dir, w.filename+".*"))
	if err != nil {
		return
	}
	for _, f := range files {
		fi, err := os.Stat(f)
		if err != nil {
			continue
		}
		if time.Since(fi.ModTime()) > w.retainPeriod {
			_ = os.Remove(f)
		}
	}
}
