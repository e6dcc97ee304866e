package s3blob

import (
	"bytes"
	"context"
	"fmt"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

// multipartThreshold is the ledger size above which the archiver switches
// to multipart upload.
const multipartThreshold = 8 * 1024 * 1024

// Archiver implements domain.Archiver. A run is stored as
//
//	runs/<run_id>/ledger.csv
//	runs/<run_id>/report.txt
//	runs/<run_id>/metrics.yaml
//
// Report and metrics are skipped when the run has none.
type Archiver struct {
	writer domain.BlobWriter
}

var _ domain.Archiver = (*Archiver)(nil)

// NewArchiver creates an Archiver that uploads through writer.
func NewArchiver(writer domain.BlobWriter) *Archiver {
	return &Archiver{writer: writer}
}

// RunPrefix returns the key prefix of a run's artifacts.
func RunPrefix(runID string) string {
	return "runs/" + runID + "/"
}

// ArchiveRun uploads the artifacts of one run and returns their prefix.
func (a *Archiver) ArchiveRun(ctx context.Context, art domain.RunArtifacts) (string, error) {
	if art.RunID == "" {
		return "", fmt.Errorf("s3blob: archive run: empty run id")
	}
	prefix := RunPrefix(art.RunID)

	ledgerKey := prefix + "ledger.csv"
	var err error
	if len(art.Ledger) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, ledgerKey, bytes.NewReader(art.Ledger), minPartSize)
	} else {
		err = a.writer.Put(ctx, ledgerKey, bytes.NewReader(art.Ledger), "text/csv")
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive run %s ledger: %w", art.RunID, err)
	}

	files := []struct {
		name, contentType string
		data              []byte
	}{
		{"report.txt", "text/plain", art.Report},
		{"metrics.yaml", "application/yaml", art.Metrics},
	}
	for _, f := range files {
		if f.data == nil {
			continue
		}
		if err := a.writer.Put(ctx, prefix+f.name, bytes.NewReader(f.data), f.contentType); err != nil {
			return "", fmt.Errorf("s3blob: archive run %s %s: %w", art.RunID, f.name, err)
		}
	}
	return prefix, nil
}
