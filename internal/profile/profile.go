// Package profile reads the user data table attached to a health question.
package profile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"health-rag/internal/models"
)

// ErrInvalidProfile is wrapped by every error Load returns.
var ErrInvalidProfile = errors.New("invalid user profile")

// Loader reads a profile from a path. The service calls it on every health
// request so edits to the file are picked up without a restart.
type Loader interface {
	Load(path string) (*models.UserProfile, error)
}

// FileLoader loads CSV and XLSX files from the local filesystem.
type FileLoader struct{}

func (FileLoader) Load(path string) (*models.UserProfile, error) {
	return Load(path)
}

// Load reads the table at path. An empty path yields an empty profile.
func Load(path string) (*models.UserProfile, error) {
	if strings.TrimSpace(path) == "" {
		return &models.UserProfile{}, nil
	}

	var (
		p   *models.UserProfile
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		p, err = loadCSV(path)
	case ".xlsx":
		p, err = loadXLSX(path)
	default:
		err = fmt.Errorf("unsupported file format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidProfile, path, err)
	}

	log.Debug().Str("path", path).Int("rows", len(p.Rows)).Msg("Loaded user profile")
	return p, nil
}

func loadCSV(path string) (*models.UserProfile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, errors.New("no header row")
	}
	if err != nil {
		return nil, err
	}

	p := &models.UserProfile{Columns: header}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		p.Rows = append(p.Rows, rec)
	}
	return p, nil
}

func loadXLSX(path string) (*models.UserProfile, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || isBlank(rows[0]) {
		return nil, errors.New("no header row")
	}

	p := &models.UserProfile{Columns: rows[0]}
	for i, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		if len(row) > len(p.Columns) {
			return nil, fmt.Errorf("row %d has %d cells, header has %d", i+2, len(row), len(p.Columns))
		}
		// excelize trims trailing empty cells
		for len(row) < len(p.Columns) {
			row = append(row, "")
		}
		p.Rows = append(p.Rows, row)
	}
	return p, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
