package commands

import (
	"fmt"
	"os"
)

// readSpecFile reads a specification file from disk, wrapping the error
// with the path for easier diagnosis in command output and logs.
func readSpecFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
