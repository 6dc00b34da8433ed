package registry

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/doc-intake/internal/model"
)

// LoadXLSX reads client records from a spreadsheet with Client, Contact and
// Email columns (matched case-insensitively on the first row). Each row is
// one contact; rows for the same client are merged. An empty sheet name
// selects the first sheet.
func LoadXLSX(path, sheetName string) ([]model.ClientRecord, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: open xlsx")
	}

	var sheet *xlsx.Sheet
	if sheetName != "" {
		s, ok := f.Sheet[sheetName]
		if !ok {
			return nil, eris.Errorf("registry: sheet %q not found", sheetName)
		}
		sheet = s
	} else {
		if len(f.Sheets) == 0 {
			return nil, eris.New("registry: xlsx has no sheets")
		}
		sheet = f.Sheets[0]
	}

	if len(sheet.Rows) == 0 {
		return nil, nil
	}

	cols := map[string]int{"client": -1, "contact": -1, "email": -1}
	for i, cell := range sheet.Rows[0].Cells {
		key := strings.ToLower(strings.TrimSpace(cell.String()))
		if _, ok := cols[key]; ok {
			cols[key] = i
		}
	}
	if cols["client"] < 0 {
		return nil, eris.New("registry: xlsx missing Client column")
	}

	cellAt := func(row *xlsx.Row, idx int) string {
		if idx < 0 || idx >= len(row.Cells) {
			return ""
		}
		return strings.TrimSpace(row.Cells[idx].String())
	}

	var records []model.ClientRecord
	index := make(map[string]int)
	for _, row := range sheet.Rows[1:] {
		if row == nil {
			continue
		}
		name := cellAt(row, cols["client"])
		if name == "" {
			continue
		}
		pos, ok := index[name]
		if !ok {
			pos = len(records)
			index[name] = pos
			records = append(records, model.ClientRecord{Name: name})
		}
		email := cellAt(row, cols["email"])
		if email == "" {
			continue
		}
		records[pos].Contacts = append(records[pos].Contacts, model.Contact{
			Name:  cellAt(row, cols["contact"]),
			Email: email,
		})
	}
	return records, nil
}
