package paper

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"livetrader-go/internal/execution"
)

// JSONLRecorder appends one JSON object per fill so later runs and the fills command can replay them.
type JSONLRecorder struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *bufio.Writer
	err  error
}

// NewJSONLRecorder opens path for append, creating parent directories.
func NewJSONLRecorder(path string) (*JSONLRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("fills dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open fills: %w", err)
	}
	return &JSONLRecorder{path: path, file: file, w: bufio.NewWriter(file)}, nil
}

// Record writes fill and flushes. The first write error sticks and is returned by Err and Close.
func (r *JSONLRecorder) Record(fill execution.Fill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil || r.err != nil {
		return
	}
	line, err := json.Marshal(fill)
	if err == nil {
		line = append(line, '\n')
		if _, err = r.w.Write(line); err == nil {
			err = r.w.Flush()
		}
	}
	if err != nil {
		r.err = fmt.Errorf("record fill to %s: %w", r.path, err)
	}
}

// Err reports the first failed write.
func (r *JSONLRecorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close flushes and closes the file. Closing twice is a no-op.
func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return r.err
	}
	if err := r.w.Flush(); err != nil && r.err == nil {
		r.err = err
	}
	if err := r.file.Close(); err != nil && r.err == nil {
		r.err = err
	}
	r.file = nil
	return r.err
}

// ReadFills loads a JSONL fills file written by JSONLRecorder. Blank lines are skipped.
func ReadFills(path string) ([]execution.Fill, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fills: %w", err)
	}
	defer file.Close()

	var out []execution.Fill
	scanner := bufio.NewScanner(file)
	for n := 1; scanner.Scan(); n++ {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var f execution.Fill
		if err := json.Unmarshal(line, &f); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, n, err)
		}
		out = append(out, f)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read fills: %w", err)
	}
	return out, nil
}
