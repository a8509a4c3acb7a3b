package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ictbot/internal/domain/models"
	domrepo "ictbot/internal/domain/repository"
)

// FileReportStore writes one indented JSON document per run:
// <dir>/backtest_<symbol>_<tf>_<yyyymmdd_hhmmss>_<run id>.json
type FileReportStore struct {
	dir string
}

func NewFileReportStore(dir string) *FileReportStore {
	return &FileReportStore{dir: dir}
}

// Path returns where a report is written.
func (s *FileReportStore) Path(md models.ReportMetadata) string {
	name := fmt.Sprintf("backtest_%s_%s_%s_%s.json",
		md.Symbol, md.Timeframe, md.Timestamp.UTC().Format("20060102_150405"), md.RunID)
	return filepath.Join(s.dir, name)
}

func (s *FileReportStore) Save(_ context.Context, r *models.Report) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	// write then rename so readers never see a partial file
	path := s.Path(r.Metadata)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func (s *FileReportStore) Get(_ context.Context, runID string) (*models.Report, error) {
	if runID == "" || strings.ContainsAny(runID, `/\*?[`) {
		return nil, fmt.Errorf("%w: %q", ErrReportNotFound, runID)
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, "backtest_*_"+runID+".json"))
	if err != nil {
		return nil, fmt.Errorf("find report: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, runID)
	}
	return readReport(matches[0])
}

func readReport(path string) (*models.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var r models.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", filepath.Base(path), err)
	}
	return &r, nil
}

// List returns report headers, newest first.
func (s *FileReportStore) List(_ context.Context, symbol string, limit int) ([]models.ReportMetadata, error) {
	pattern := "backtest_*.json"
	if symbol != "" {
		pattern = "backtest_" + symbol + "_*.json"
	}
	paths, err := filepath.Glob(filepath.Join(s.dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}

	out := make([]models.ReportMetadata, 0, len(paths))
	for _, p := range paths {
		r, err := readReport(p)
		if err != nil {
			continue
		}
		if symbol != "" && r.Metadata.Symbol != symbol {
			continue
		}
		out = append(out, r.Metadata)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ domrepo.ReportStore = (*FileReportStore)(nil)
