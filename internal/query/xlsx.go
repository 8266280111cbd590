package query

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/coverage-cli/internal/model"
)

// loadXLSX reads entities from the first sheet of a workbook. The first row
// is the header; Company and Founders columns are matched by name, ignoring
// case. Other columns are skipped.
func loadXLSX(path string) ([]model.Entity, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "query: open xlsx %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("query: xlsx %s has no sheets", path)
	}

	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, nil
	}

	companyCol, foundersCol := -1, -1
	for i, cell := range sheet.Rows[0].Cells {
		switch strings.ToLower(strings.TrimSpace(cell.String())) {
		case "company":
			companyCol = i
		case "founders":
			foundersCol = i
		}
	}
	if companyCol < 0 && foundersCol < 0 {
		return nil, eris.Errorf("query: xlsx %s has neither a Company nor a Founders column", path)
	}

	var entities []model.Entity
	for _, row := range sheet.Rows[1:] {
		e := model.Entity{
			Company:  strings.TrimSpace(cellAt(row, companyCol)),
			Founders: model.Founders{Raw: strings.TrimSpace(cellAt(row, foundersCol))},
		}
		if e.Company == "" && e.Founders.IsZero() {
			continue
		}
		entities = append(entities, e)
	}
	return entities, nil
}

func cellAt(row *xlsx.Row, i int) string {
	if row == nil || i < 0 || i >= len(row.Cells) {
		return ""
	}
	return row.Cells[i].String()
}
