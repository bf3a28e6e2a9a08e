package suppression

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// ReadFile parses a CSV or XLSX export into bulk add requests. The first
// row may be a header; the email column is found by name ("email") or
// defaults to the first column. An optional "reason" column overrides
// defReason per row.
func ReadFile(path string, defReason model.SuppressionReason, source string) ([]Request, error) {
	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = readXLSX(path)
	default:
		rows, err = readCSV(path)
	}
	if err != nil {
		return nil, err
	}
	return toRequests(rows, defReason, source), nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "suppression: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "suppression: read csv %s", path)
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "suppression: open xlsx %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("suppression: %s has no sheets", path)
	}
	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, c := range row.Cells {
			cells[j] = c.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func toRequests(rows [][]string, defReason model.SuppressionReason, source string) []Request {
	if len(rows) == 0 {
		return nil
	}
	emailCol, reasonCol := 0, -1
	start := 0
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "email", "email_address":
			emailCol, start = i, 1
		case "reason":
			reasonCol, start = i, 1
		}
	}

	reqs := make([]Request, 0, len(rows)-start)
	for _, row := range rows[start:] {
		if emailCol >= len(row) || strings.TrimSpace(row[emailCol]) == "" {
			continue
		}
		reason := defReason
		if reasonCol >= 0 && reasonCol < len(row) && strings.TrimSpace(row[reasonCol]) != "" {
			reason = model.SuppressionReason(strings.ToLower(strings.TrimSpace(row[reasonCol])))
		}
		reqs = append(reqs, Request{Identity: row[emailCol], Reason: reason, Source: source})
	}
	return reqs
}
