package sheet

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/origin-cli/internal/model"
)

// ErrUnsupportedFormat is returned for files that are not XLSX or CSV.
var ErrUnsupportedFormat = eris.New("unsupported file format")

// AllowedExtensions lists the upload extensions accepted at the boundary.
// Legacy .xls passes the allow-list but is rejected by the loader.
var AllowedExtensions = []string{"xlsx", "xls", "csv"}

// Allowed reports whether filename carries an accepted extension.
func Allowed(filename string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	for _, a := range AllowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

// Load reads and normalizes the costing sheet at path.
func Load(ctx context.Context, path string) ([]model.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "sheet: open")
	}
	defer f.Close() //nolint:errcheck

	return LoadReader(ctx, filepath.Base(path), f)
}

// LoadReader reads and normalizes a costing sheet; name selects the format
// by extension.
func LoadReader(ctx context.Context, name string, r io.Reader) ([]model.Row, error) {
	var records [][]string
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".xlsx":
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, eris.Wrap(err, "sheet: read xlsx")
		}
		records, err = ReadXLSXBytes(data, XLSXOptions{})
		if err != nil {
			return nil, err
		}
	case ".csv":
		var err error
		records, err = ReadCSV(ctx, r, CSVOptions{TrimSpace: true, LazyQuotes: true})
		if err != nil {
			return nil, err
		}
	default:
		return nil, eris.Wrapf(ErrUnsupportedFormat, "sheet: %s", name)
	}

	if len(records) > 0 {
		zap.L().Debug("sheet: columns", zap.String("file", name), zap.Strings("columns", records[0]))
	}
	rows := Normalize(records)
	zap.L().Info("sheet: loaded", zap.String("file", name), zap.Int("rows", len(rows)))
	return rows, nil
}
