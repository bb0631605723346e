// Package importer loads leads in bulk from CSV and XLSX files.
package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/leadflow/internal/model"
)

// Result reports what an import produced.
type Result struct {
	Leads   []model.Lead `json:"-"`
	Total   int          `json:"total"`
	Skipped int          `json:"skipped"`
	Errors  []string     `json:"errors,omitempty"`
}

// column aliases accepted in the header row, all compared lowercase.
var columnAliases = map[string]string{
	"company":        "company_name",
	"company_name":   "company_name",
	"company name":   "company_name",
	"name":           "company_name",
	"website":        "website",
	"url":            "website",
	"industry":       "industry",
	"sector":         "industry",
	"company_size":   "company_size",
	"company size":   "company_size",
	"employees":      "company_size",
	"size":           "company_size",
	"revenue":        "revenue",
	"annual revenue": "revenue",
	"annual_revenue": "revenue",
	"location":       "location",
	"city":           "location",
	"email":          "contact_email",
	"contact_email":  "contact_email",
	"contact":        "contact_name",
	"contact_name":   "contact_name",
}

var titleCaser = cases.Title(language.English)

// FromFile imports leads from a CSV or XLSX file, dispatching on extension.
func FromFile(ctx context.Context, path string) (*Result, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "importer: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return FromCSV(ctx, f)
	case ".xlsx":
		return FromXLSX(ctx, path)
	default:
		return nil, eris.Errorf("importer: unsupported file type %s", filepath.Ext(path))
	}
}

// FromCSV imports leads from CSV data. The first row must be a header.
func FromCSV(ctx context.Context, r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // allow variable fields

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "importer: read csv header")
	}
	cols := mapHeader(header)
	if _, ok := cols["company_name"]; !ok {
		return nil, eris.New("importer: no company name column found")
	}

	result := &Result{}
	for line := 2; ; line++ {
		if ctx.Err() != nil {
			return result, eris.Wrap(ctx.Err(), "importer: cancelled")
		}
		record, readErr := reader.Read()
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return result, eris.Wrap(readErr, "importer: read csv row")
		}
		result.add(rowToLead(record, cols), line)
	}
	return result, nil
}

// FromXLSX imports leads from the first sheet of an XLSX workbook.
func FromXLSX(ctx context.Context, path string) (*Result, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "importer: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("importer: workbook has no sheets")
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, eris.New("importer: sheet is empty")
	}

	cols := mapHeader(rowToStrings(sheet.Rows[0]))
	if _, ok := cols["company_name"]; !ok {
		return nil, eris.New("importer: no company name column found")
	}

	result := &Result{}
	for i, row := range sheet.Rows[1:] {
		if ctx.Err() != nil {
			return result, eris.Wrap(ctx.Err(), "importer: cancelled")
		}
		result.add(rowToLead(rowToStrings(row), cols), i+2)
	}
	return result, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

// mapHeader resolves header names to canonical columns.
func mapHeader(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if canonical, ok := columnAliases[key]; ok {
			if _, taken := cols[canonical]; !taken {
				cols[canonical] = i
			}
		}
	}
	return cols
}

// rowToLead builds a lead from one data row. Returns nil for rows with no
// company name.
func rowToLead(record []string, cols map[string]int) *model.Lead {
	get := func(col string) string {
		idx, ok := cols[col]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	name := get("company_name")
	if name == "" {
		return nil
	}

	lead := &model.Lead{
		CompanyName:  titleCaser.String(name),
		Website:      get("website"),
		Industry:     strings.ToLower(get("industry")),
		Location:     get("location"),
		ContactEmail: strings.ToLower(get("contact_email")),
		Stage:        model.StageNew,
	}
	if contact := get("contact_name"); contact != "" {
		lead.ContactName = titleCaser.String(contact)
	}
	if sizeStr := get("company_size"); sizeStr != "" {
		if size, err := strconv.Atoi(strings.ReplaceAll(sizeStr, ",", "")); err == nil && size > 0 {
			lead.CompanySize = &size
		}
	}
	if revStr := get("revenue"); revStr != "" {
		cleaned := strings.ReplaceAll(strings.TrimPrefix(revStr, "$"), ",", "")
		if rev, err := strconv.ParseFloat(cleaned, 64); err == nil && rev > 0 {
			lead.Revenue = &rev
		}
	}
	return lead
}

// add appends a parsed lead or counts the skip.
func (r *Result) add(lead *model.Lead, line int) {
	r.Total++
	if lead == nil {
		r.Skipped++
		r.Errors = append(r.Errors, fmt.Sprintf("line %d: missing company name", line))
		return
	}
	r.Leads = append(r.Leads, *lead)
}
