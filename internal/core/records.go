package core

import (
	"context"
	"strings"

	"github.com/JonMunkholm/corpfetch/internal/csvstream"
)

// ProjectCompanies reads an enriched file into CompanyRecords. The corporate
// registration number is the last field of each row (the enrichment column
// has no header). Columns absent from the header project as empty strings.
func ProjectCompanies(ctx context.Context, path string) ([]CompanyRecord, error) {
	var (
		records []CompanyRecord
		idx     map[string]int
	)

	err := csvstream.Walk(ctx, path, func(header, fields []string) error {
		if idx == nil {
			idx = indexColumns(header)
		}
		records = append(records, CompanyRecord{
			TelSalesNum:        field(fields, idx, ColumnTelSalesNum),
			CompanyName:        field(fields, idx, ColumnCompanyName),
			BusRegistrationNum: field(fields, idx, ColumnBusinessNum),
			CorRegistrationNum: cleanCell(fields[len(fields)-1]),
			AdDistrictCode:     field(fields, idx, ColumnDistrictCode),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func indexColumns(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}
	return idx
}

func field(fields []string, idx map[string]int, column string) string {
	i, ok := idx[column]
	if !ok || i >= len(fields) {
		return ""
	}
	return cleanCell(fields[i])
}

// cleanCell strips spreadsheet artifacts from a projected value:
// surrounding whitespace, an ="..." formula wrapper and surrounding quotes.
func cleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}
	return strings.Trim(s, `"'`)
}
