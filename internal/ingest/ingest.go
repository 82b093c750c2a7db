package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/joseph-ayodele/illustration-analyzer/constants"
	"github.com/joseph-ayodele/illustration-analyzer/internal/common"
)

// IngestionResult describes one discovered illustration file.
type IngestionResult struct {
	SourcePath   string
	FileExt      string
	Format       constants.FileFormat
	HashHex      string
	Size         int64
	Deduplicated bool // same content was seen earlier by this Ingestor
	Err          string
}

// Ingestor validates and fingerprints local files. Content hashes are kept in
// memory only, so a file rewritten with identical bytes is not analyzed twice
// while the process runs.
type Ingestor struct {
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]string // hash -> first path
}

func NewIngestor(logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{logger: logger, seen: make(map[string]string)}
}

func (i *Ingestor) IngestPath(ctx context.Context, path string) (IngestionResult, error) {
	var out IngestionResult
	if err := ctx.Err(); err != nil {
		return out, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, fmt.Errorf("abs path: %w", err)
	}
	out.SourcePath = abs

	ext := constants.NormalizeExt(filepath.Ext(abs))
	format, ok := constants.MapExtToFormat(ext)
	if !ok {
		return out, common.NewAppError(common.CodeUnsupportedFormat, "unsupported or missing extension "+ext, common.ErrUnsupportedFormat)
	}
	out.FileExt, out.Format = ext, format

	f, err := os.Open(abs)
	if err != nil {
		return out, fmt.Errorf("open: %w", err)
	}
	defer func(f *os.File) {
		if err := f.Close(); err != nil {
			i.logger.Warn("ingest.close_error", "path", abs, "error", err)
		}
	}(f)

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return out, fmt.Errorf("hash: %w", err)
	}
	out.Size = n
	out.HashHex = hex.EncodeToString(h.Sum(nil))

	i.mu.Lock()
	if first, dup := i.seen[out.HashHex]; dup {
		out.Deduplicated = true
		i.logger.Debug("ingest.duplicate", "path", abs, "first_path", first)
	} else {
		i.seen[out.HashHex] = abs
	}
	i.mu.Unlock()
	return out, nil
}

// Forget drops a hash so its content is analyzed again next time.
func (i *Ingestor) Forget(hashHex string) {
	i.mu.Lock()
	delete(i.seen, hashHex)
	i.mu.Unlock()
}
