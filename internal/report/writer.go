package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/natefinch/atomic"
)

const timestampLayout = "2006-01-02T15-04-05"

// Writer persists reports below root/reports.
type Writer struct {
	root string
}

// NewWriter returns a writer rooted at root.
func NewWriter(root string) *Writer {
	return &Writer{root: root}
}

// Path returns where a report made at t would be written. forFile is the
// name of the single input file of the run, if any.
func (w *Writer) Path(t time.Time, forFile string) string {
	name := t.Format(timestampLayout)
	if forFile != "" {
		name += "_for_file_" + filepath.Base(forFile)
	}
	return filepath.Join(w.root, "reports", strconv.Itoa(t.Year()), name+".report.txt")
}

// Save writes rep and returns its path.
func (w *Writer) Save(rep Report, t time.Time, forFile string) (string, error) {
	path := w.Path(t, forFile)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	content := rep.Subject + "\n\n" + rep.Body
	if err := atomic.WriteFile(path, strings.NewReader(content)); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Chmod(path, 0o640); err != nil {
		return "", fmt.Errorf("failed to set report permissions: %w", err)
	}
	return path, nil
}
