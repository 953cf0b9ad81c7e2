package report

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/theapemachine/qpe"
)

// WriterFunc renders a whole report to w.
type WriterFunc func(w io.Writer, report *qpe.Report) error

var (
	mu      sync.RWMutex
	writers = map[string]WriterFunc{}
)

// Register adds a writer for format. Last registration wins.
func Register(format string, fn WriterFunc) {
	mu.Lock()
	defer mu.Unlock()
	writers[format] = fn
}

// Write dispatches to the writer registered for format.
func Write(format string, w io.Writer, report *qpe.Report) error {
	mu.RLock()
	fn, ok := writers[format]
	mu.RUnlock()

	if !ok {
		return fmt.Errorf("unknown report format %q (have %v)", format, Formats())
	}
	return fn(w, report)
}

// Formats lists the registered formats in sorted order.
func Formats() []string {
	mu.RLock()
	defer mu.RUnlock()

	formats := make([]string, 0, len(writers))
	for f := range writers {
		formats = append(formats, f)
	}
	sort.Strings(formats)
	return formats
}
