package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"kellyq/internal/domain"
)

var _ Source = (*CSVSource)(nil)

// DefaultDateLayout is the day-first layout used by the CSV exports kellyq
// was first fed with.
const DefaultDateLayout = "02/01/2006"

// CSVSource reads <dir>/<SYMBOL>.csv files with at least a "date" and a
// "close" column. Column order does not matter and header matching is
// case-insensitive.
type CSVSource struct {
	dir    string
	layout string
}

// NewCSVSource returns a CSVSource rooted at dir. An empty layout selects
// DefaultDateLayout.
func NewCSVSource(dir, layout string) *CSVSource {
	if layout == "" {
		layout = DefaultDateLayout
	}
	return &CSVSource{dir: dir, layout: layout}
}

// Prices parses the CSV file for symbol.
func (c *CSVSource) Prices(ctx context.Context, symbol string) ([]domain.PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(c.dir, strings.ToUpper(symbol)+".csv")
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrSymbolNotFound)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	points, err := c.parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return normalize(symbol, points)
}

func (c *CSVSource) parse(r io.Reader) ([]domain.PricePoint, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	dateCol, closeCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "date":
			dateCol = i
		case "close":
			closeCol = i
		}
	}
	if dateCol < 0 || closeCol < 0 {
		return nil, fmt.Errorf("header %v lacks date and close columns", header)
	}

	var points []domain.PricePoint
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		date, err := time.ParseInLocation(c.layout, strings.TrimSpace(rec[dateCol]), time.UTC)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		closePx, err := strconv.ParseFloat(strings.TrimSpace(rec[closeCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		points = append(points, domain.PricePoint{Date: date, Close: closePx})
	}
	return points, nil
}
