package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SaveDir writes the bundle as dir/model.json, creating dir. Returns the
// directory path.
func SaveDir(dir string, b *Bundle) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if _, err := SaveFile(filepath.Join(dir, ModelFile), b); err != nil {
		return "", err
	}
	return dir, nil
}

// SaveFile writes the bundle as a single JSON document at path.
func SaveFile(path string, b *Bundle) (string, error) {
	if err := b.Validate(); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal artifact: %w", err)
	}

	// write to a sibling temp file, then rename into place
	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*")
	if err != nil {
		return "", fmt.Errorf("failed to create artifact file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to create artifact file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to save artifact: %w", err)
	}
	return path, nil
}

// Load reads a bundle from a directory-form or single-file artifact.
func Load(path string) (*Bundle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	if info.IsDir() {
		path = filepath.Join(path, ModelFile)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnknownFormat, err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}
