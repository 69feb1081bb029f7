package worker

import "os"

// OSReader reads file contents directly from disk. It's the Reader used in
// production; tests substitute their own in-memory Reader instead.
type OSReader struct{}

// Read implements Reader.
func (OSReader) Read(filePath string) ([]byte, error) {
	return os.ReadFile(filePath)
}
