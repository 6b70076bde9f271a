package dataset

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const ipfsScheme = "ipfs://"

// Fetcher retrieves content-addressed data, implemented by pkg/ipfs.
type Fetcher interface {
	Cat(ctx context.Context, cid string) (io.ReadCloser, error)
}

// IsRemote reports whether the input names an IPFS object rather than a local file.
func IsRemote(input string) bool {
	return strings.HasPrefix(input, ipfsScheme)
}

// Stem returns the base name of the input without directory or extension.
// For ipfs:// inputs the CID is the stem.
func Stem(input string) string {
	if IsRemote(input) {
		return strings.Trim(strings.TrimPrefix(input, ipfsScheme), "/")
	}
	base := filepath.Base(input)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// CheckLocal verifies a local input exists and is a regular file.
func CheckLocal(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInputNotFound, path)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrInputNotFound, path)
	}
	return nil
}

// Load reads the input into a frame. Remote inputs need a non-nil fetcher.
func Load(ctx context.Context, input string, fetcher Fetcher) (*Frame, error) {
	if IsRemote(input) {
		if fetcher == nil {
			return nil, fmt.Errorf("no IPFS client configured for %s", input)
		}
		rc, err := fetcher.Cat(ctx, Stem(input))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", input, err)
		}
		defer rc.Close()
		return Read(rc)
	}

	file, err := os.Open(input)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, input)
		}
		return nil, fmt.Errorf("failed to open %s: %w", input, err)
	}
	defer file.Close()
	return Read(file)
}

// Save writes the frame to a local CSV file.
func Save(path string, f *Frame) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Write(file, f); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
