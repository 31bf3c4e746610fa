package bridge

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// StampStore keeps the stamp of the last program flashed to each port.
type StampStore struct {
	Dir string
}

// NewStampStore creates a StampStore in dir.
func NewStampStore(dir string) *StampStore {
	return &StampStore{Dir: dir}
}

func (s *StampStore) path(port string) string {
	name := strings.Trim(strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(port), "_")
	return filepath.Join(s.Dir, name+".stamp")
}

// Load returns the stamp recorded for port, empty if none.
func (s *StampStore) Load(port string) (string, error) {
	data, err := os.ReadFile(s.path(port))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Save records stamp for port.
func (s *StampStore) Save(port, stamp string) error {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(s.path(port), []byte(stamp+"\n"), 0644)
}

// Forget drops the stamp of port.
func (s *StampStore) Forget(port string) error {
	err := os.Remove(s.path(port))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
