// Package export renders the detailed dataset as a spreadsheet with one sheet
// per year bucket.
package export

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/jerrybase-cli/internal/dataset"
	"github.com/sells-group/jerrybase-cli/internal/model"
)

// Header is the column layout of every sheet.
var Header = []string{
	"year", "date", "url", "venue", "band", "songs", "category", "act_type",
	"show_id", "date_from_title", "date_note", "setlist", "musicians", "notes",
}

// WriteXLSX writes ds to path. Buckets without records get no sheet.
// It returns the number of sheets written.
func WriteXLSX(ds *dataset.Detailed, path string) (int, error) {
	log := zap.L().With(zap.String("component", "export"))

	f := xlsx.NewFile()
	sheets := 0
	for _, bucket := range ds.Buckets() {
		recs := ds.Records(bucket)
		if len(recs) == 0 {
			continue
		}

		sheet, err := f.AddSheet(bucket)
		if err != nil {
			return 0, eris.Wrapf(err, "export: add sheet %s", bucket)
		}
		writeRow(sheet, Header)
		for _, rec := range recs {
			writeRow(sheet, Row(bucket, rec))
		}
		sheets++
		log.Debug("sheet written", zap.String("bucket", bucket), zap.Int("rows", len(recs)))
	}

	if sheets == 0 {
		return 0, eris.New("export: dataset has no records")
	}
	if err := f.Save(path); err != nil {
		return 0, eris.Wrapf(err, "export: save %s", path)
	}
	log.Info("spreadsheet written", zap.String("path", path), zap.Int("sheets", sheets), zap.Int("records", ds.Len()))
	return sheets, nil
}

// Row flattens one record into Header order.
func Row(bucket string, rec model.DetailRecord) []string {
	return []string{
		bucket,
		rec.Date,
		rec.URL,
		rec.Venue.Name,
		rec.Band.Name,
		rec.Songs,
		string(rec.Category),
		string(rec.ActType),
		rec.ShowID,
		rec.DateVerification.TitleDate,
		rec.DateVerification.Note,
		strings.Join(rec.Setlist, ", "),
		formatMusicians(rec.Musicians),
		strings.Join(rec.Notes, ", "),
	}
}

func formatMusicians(ms []model.Musician) string {
	parts := make([]string, len(ms))
	for i, m := range ms {
		name := m.Name
		if name == "" {
			name = "Unknown"
		}
		if m.Instrument != "" {
			name += " - " + m.Instrument
		}
		parts[i] = name
	}
	return strings.Join(parts, ", ")
}

func writeRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, v := range cells {
		row.AddCell().SetString(v)
	}
}

// ReadXLSX returns the rows of the named sheet, header included.
func ReadXLSX(path, sheetName string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "export: open file")
	}
	sheet, ok := f.Sheet[sheetName]
	if !ok {
		return nil, eris.Errorf("export: sheet %q not found", sheetName)
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// SheetNames lists the sheets of the workbook at path in order.
func SheetNames(path string) ([]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "export: open file")
	}
	names := make([]string, len(f.Sheets))
	for i, s := range f.Sheets {
		names[i] = s.Name
	}
	return names, nil
}
