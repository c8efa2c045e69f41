package parsers

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Workbooks can be enormous; indexing caps out per sheet.
const maxCellsPerSheet = 1000

// XlsxParser extracts cell text from Excel workbooks.
type XlsxParser struct{}

func (p *XlsxParser) Name() string { return "xlsx" }

func (p *XlsxParser) Extensions() []string { return []string{".xlsx"} }

func (p *XlsxParser) Parse(ctx context.Context, path string, raw []byte) (*Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, parseError("xlsx", path, "failed to open workbook", err)
	}
	defer f.Close()

	result := &Result{Title: titleFromPath(path)}

	var parts []string
	sheets := f.GetSheetList()
	for _, sheetName := range sheets {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}

		var sheetText strings.Builder
		sheetText.WriteString(fmt.Sprintf("Sheet: %s\n", sheetName))

		cellCount := 0
	rowLoop:
		for rowIndex, row := range rows {
			for colIndex, cell := range row {
				if cellCount >= maxCellsPerSheet {
					sheetText.WriteString("... (truncated)\n")
					break rowLoop
				}
				if text := strings.TrimSpace(cell); text != "" {
					ref, err := excelize.CoordinatesToCellName(colIndex+1, rowIndex+1)
					if err != nil {
						continue
					}
					sheetText.WriteString(fmt.Sprintf("%s: %s\n", ref, text))
					cellCount++
				}
			}
		}

		result.addMeta("sheets", sheetName)
		parts = append(parts, strings.TrimSpace(sheetText.String()))
	}

	content := strings.Join(parts, "\n\n")
	if strings.TrimSpace(content) == "" {
		return nil, parseError("xlsx", path, "no extractable text", nil)
	}

	result.Content = content
	result.WordCount = len(strings.Fields(content))
	result.Pages = len(sheets)
	return result, nil
}
