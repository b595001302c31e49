package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

// WriteTextfile writes the recorder's metrics to path in the text exposition
// format, creating the parent directory if needed. The file is replaced
// atomically.
func (r *Recorder) WriteTextfile(path string) error {
	return WriteTextfile(path, r.registry)
}

// WriteTextfile writes everything g gathers to path.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
