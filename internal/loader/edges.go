package loader

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/network-cli/internal/model"
	"github.com/sells-group/network-cli/internal/store"
)

// Summary reports the outcome of an import.
type Summary struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// bulkEdgeImporter is satisfied by stores that merge edges in one round
// trip. The loader falls back to per-edge upserts otherwise.
type bulkEdgeImporter interface {
	BulkImportEdges(ctx context.Context, edges []model.Edge) (int64, error)
}

// LoadEdges imports edges from a CSV or XLSX file. Expected columns:
// from_id, to_id, trust, strength, last_interaction (RFC3339, optional).
// Malformed rows are skipped and logged, never fatal; a bad row in a
// bulk import must not sink the rest of the file.
func LoadEdges(ctx context.Context, st store.Store, path string) (*Summary, error) {
	rows, err := readRows(ctx, path)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("file", filepath.Base(path)))
	summary := &Summary{}
	var edges []model.Edge
	for i, row := range rows {
		edge, err := parseEdgeRow(row)
		if err != nil {
			if i == 0 && looksLikeHeader(row) {
				continue
			}
			log.Warn("loader: skipping edge row", zap.Int("row", i+1), zap.Error(err))
			summary.Skipped++
			continue
		}
		edges = append(edges, edge)
	}

	if bi, ok := st.(bulkEdgeImporter); ok {
		if _, err := bi.BulkImportEdges(ctx, edges); err != nil {
			return nil, eris.Wrap(err, "loader: bulk import edges")
		}
		summary.Imported = len(edges)
		return summary, nil
	}

	for _, e := range edges {
		if err := st.PutEdge(ctx, e); err != nil {
			log.Warn("loader: skipping edge", zap.String("from", e.From), zap.String("to", e.To), zap.Error(err))
			summary.Skipped++
			continue
		}
		summary.Imported++
	}
	return summary, nil
}

// LoadProfiles imports participant profiles from a JSON array file.
func LoadProfiles(ctx context.Context, st store.Store, path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "loader: read profiles file")
	}

	var profiles []model.Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, eris.Wrap(err, "loader: parse profiles json")
	}

	log := zap.L().With(zap.String("file", filepath.Base(path)))
	summary := &Summary{}
	for i := range profiles {
		if err := st.SaveProfile(ctx, &profiles[i]); err != nil {
			log.Warn("loader: skipping profile", zap.String("participant", profiles[i].ParticipantID), zap.Error(err))
			summary.Skipped++
			continue
		}
		summary.Imported++
	}
	return summary, nil
}

func readRows(ctx context.Context, path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "loader: open csv")
		}
		defer f.Close()

		rowCh, errCh := StreamCSV(ctx, f, CSVOptions{TrimSpace: true})
		var rows [][]string
		for row := range rowCh {
			rows = append(rows, row)
		}
		if err := <-errCh; err != nil {
			return nil, err
		}
		return rows, nil
	case ".xlsx":
		return ReadXLSX(path, XLSXOptions{})
	default:
		return nil, eris.Errorf("loader: unsupported file type %q", filepath.Ext(path))
	}
}

func parseEdgeRow(row []string) (model.Edge, error) {
	if len(row) < 4 {
		return model.Edge{}, eris.Errorf("loader: edge row has %d columns, want at least 4", len(row))
	}
	trust, err := strconv.ParseFloat(row[2], 64)
	if err != nil {
		return model.Edge{}, eris.Wrap(err, "loader: parse trust")
	}
	strength, err := strconv.ParseFloat(row[3], 64)
	if err != nil {
		return model.Edge{}, eris.Wrap(err, "loader: parse strength")
	}

	e := model.Edge{From: row[0], To: row[1], Trust: trust, Strength: strength}
	if len(row) > 4 && row[4] != "" {
		ts, err := time.Parse(time.RFC3339, row[4])
		if err != nil {
			return model.Edge{}, eris.Wrap(err, "loader: parse last_interaction")
		}
		e.LastInteraction = ts.UTC()
	}
	if err := e.Validate(); err != nil {
		return model.Edge{}, err
	}
	return e, nil
}

func looksLikeHeader(row []string) bool {
	if len(row) < 4 {
		return false
	}
	_, err := strconv.ParseFloat(row[2], 64)
	return err != nil
}
