package ipfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	shell "github.com/ipfs/go-ipfs-api"

	"github.com/theblitlabs/csvtrain/pkg/logger"
)

const component = "ipfs"

// Service represents the IPFS service
type Service struct {
	shell *shell.Shell
}

// Config represents the IPFS service configuration
type Config struct {
	APIEndpoint string // IPFS API endpoint (e.g., "localhost:5001")
	Timeout     time.Duration
}

// New creates a new IPFS service instance. The node is not contacted until
// the first request.
func New(config Config) *Service {
	if config.APIEndpoint == "" {
		config.APIEndpoint = "localhost:5001" // Default IPFS API endpoint
	}

	sh := shell.NewShell(config.APIEndpoint)
	if config.Timeout > 0 {
		sh.SetTimeout(config.Timeout)
	}
	return &Service{shell: sh}
}

// Cat streams the content behind cid. The caller closes the reader.
func (s *Service) Cat(ctx context.Context, cid string) (io.ReadCloser, error) {
	log := logger.WithComponent(component)

	resp, err := s.shell.Request("cat", cid).Send(ctx)
	if err != nil {
		log.Error().Err(err).Str("cid", cid).Msg("Failed to retrieve data")
		return nil, fmt.Errorf("failed to retrieve data from IPFS: %w", err)
	}
	if resp.Error != nil {
		resp.Close()
		log.Error().Str("cid", cid).Str("error", resp.Error.Message).Msg("IPFS node rejected cat")
		return nil, fmt.Errorf("failed to retrieve data from IPFS: %s", resp.Error.Message)
	}

	log.Debug().Str("cid", cid).Msg("Streaming data from IPFS")
	return resp.Output, nil
}

// Publish adds a file or a directory to IPFS, pinned, and returns its CID.
// File uploads stop when ctx is cancelled. Directory uploads go through the
// shell's recursive add, which only honours ctx before it starts and is
// otherwise bounded by the configured timeout.
func (s *Service) Publish(ctx context.Context, path string) (string, error) {
	log := logger.WithComponent(component)

	if err := ctx.Err(); err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}

	var cid string
	if info.IsDir() {
		cid, err = s.shell.AddDir(path)
	} else {
		cid, err = s.uploadFile(ctx, path)
	}
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to upload to IPFS")
		return "", fmt.Errorf("failed to upload to IPFS: %w", err)
	}

	log.Info().Str("path", path).Str("cid", cid).Msg("Artifact published to IPFS")
	return cid, nil
}

func (s *Service) uploadFile(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var out struct {
		Hash string
	}
	err = s.shell.Request("add").
		Option("pin", true).
		Option("cid-version", 1).
		FileBody(file).
		Exec(ctx, &out)
	if err != nil {
		return "", err
	}
	return out.Hash, nil
}
