package store

import (
	"bufio"
	"os"
)

// ScanJSONL calls fn with each non-empty line of a JSONL file. Lines are
// capped at maxLine bytes (default 1 MiB) to bound memory on hostile input;
// fn returning an error stops the scan.
func ScanJSONL(path string, maxLine int, fn func(line []byte) error) error {
	if maxLine <= 0 {
		maxLine = 1024 * 1024
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return sc.Err()
}
