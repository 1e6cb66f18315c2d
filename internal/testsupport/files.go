package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// FakePDF returns a minimal byte sequence with a PDF header. Distinct labels
// yield distinct content hashes.
func FakePDF(label string) []byte {
	return []byte(fmt.Sprintf("%%PDF-1.4\n%% %s\n1 0 obj << >> endobj\n%%%%EOF\n", label))
}

// WriteFile writes data to path, creating parent directories.
func WriteFile(t testing.TB, path string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
