package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/levanduc-dev/tick-trader/pkg/types"
)

// Journal is the durable append-only fill log. One JSON record per
// line; appends are synced so that a confirmed fill survives a crash.
// Replayed in order on startup it reconstructs ledger state exactly.
type Journal struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// Open opens (or creates) the journal file for appending
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	return &Journal{path: path, file: file}, nil
}

// Append writes one fill record and syncs it to disk. The fsync per
// fill is deliberate: fill volume is low and a lost confirmed fill is
// unrecoverable.
func (j *Journal) Append(fill types.Fill) error {
	data, err := json.Marshal(fill)
	if err != nil {
		return fmt.Errorf("failed to encode fill %s: %w", fill.FillID, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return fmt.Errorf("journal is closed")
	}
	if _, err := j.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append fill %s: %w", fill.FillID, err)
	}
	return j.file.Sync()
}

// Close flushes and closes the journal file
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}
	if err := j.file.Sync(); err != nil {
		j.file.Close()
		j.file = nil
		return err
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// Path returns the journal file location
func (j *Journal) Path() string {
	return j.path
}

// Replay reads the journal at path and invokes fn for each fill in
// append order. A missing file is an empty journal. A corrupt record
// is tolerated only as the final line (a crash mid-append); corruption
// anywhere else is an error.
func Replay(path string, fn func(types.Fill) error) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to open journal for replay: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	count := 0
	var pending []byte
	for scanner.Scan() {
		if pending != nil {
			// The previous line failed to decode and was not the last
			return count, fmt.Errorf("corrupt journal record at line %d", count+1)
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var fill types.Fill
		if err := json.Unmarshal(line, &fill); err != nil {
			pending = append([]byte(nil), line...)
			continue
		}

		if err := fn(fill); err != nil {
			return count, err
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("failed to read journal: %w", err)
	}
	return count, nil
}
