// Copyright 2025
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package exporter

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/penny-vault/kpi-refresh/kpitable"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "Summary"
	readmeSheet  = "README"

	// first data column; A-C hold the KPI code, description and units
	firstDataCol = 4
)

var readmeLines = []string{
	"KPI Dashboard Workbook",
	"",
	"One worksheet per company. Columns are fiscal periods: annual periods",
	"newest to oldest, then quarterly periods newest to oldest.",
	"",
	"Each KPI occupies three rows: the reported value, quarter-over-quarter",
	"growth, and year-over-year growth. Growth rows are percentages.",
	"Values at or above one million are shown in millions; such rows are",
	"marked with a (Millions) units qualifier.",
	"",
	"Blank growth cells mean the comparison period is missing or zero.",
}

// WriteWorkbook renders all company tables into a timestamped xlsx file
// with a summary sheet, a README sheet, and one formatted sheet per
// company.
func WriteWorkbook(dir string, tables []*kpitable.Table, companyNames map[string]string, asOf time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	book := excelize.NewFile()
	defer func() {
		if err := book.Close(); err != nil {
			log.Error().Err(err).Msg("error closing excel workbook")
		}
	}()

	// rename the default sheet to the summary sheet
	if err := book.SetSheetName("Sheet1", summarySheet); err != nil {
		return "", err
	}

	styles, err := newWorkbookStyles(book)
	if err != nil {
		return "", err
	}

	if err := writeSummarySheet(book, styles, tables, companyNames, asOf); err != nil {
		return "", err
	}

	for _, table := range tables {
		if err := writeCompanySheet(book, styles, table); err != nil {
			return "", err
		}
	}

	if err := writeReadmeSheet(book); err != nil {
		return "", err
	}

	fn := filepath.Join(dir, fmt.Sprintf("KPI_Dashboard_%s.xlsx", asOf.Format("20060102_150405")))
	if err := book.SaveAs(fn); err != nil {
		return "", err
	}

	return fn, nil
}

type workbookStyles struct {
	header  int
	number  int
	percent int
}

func newWorkbookStyles(book *excelize.File) (*workbookStyles, error) {
	header, err := book.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"366092"}},
	})
	if err != nil {
		return nil, err
	}

	numberFmt := "#,##0.00"
	number, err := book.NewStyle(&excelize.Style{CustomNumFmt: &numberFmt})
	if err != nil {
		return nil, err
	}

	percentFmt := `0.0"%"`
	percent, err := book.NewStyle(&excelize.Style{CustomNumFmt: &percentFmt})
	if err != nil {
		return nil, err
	}

	return &workbookStyles{header: header, number: number, percent: percent}, nil
}

func writeCompanySheet(book *excelize.File, styles *workbookStyles, table *kpitable.Table) error {
	sheet := sheetName(table.Ticker)
	if _, err := book.NewSheet(sheet); err != nil {
		return err
	}

	headers := append([]string{"KPI Code", "KPI Description", "Units"}, table.Columns...)
	for idx, header := range headers {
		cell, err := excelize.CoordinatesToCellName(idx+1, 1)
		if err != nil {
			return err
		}
		if err := book.SetCellValue(sheet, cell, header); err != nil {
			return err
		}
		if err := book.SetCellStyle(sheet, cell, cell, styles.header); err != nil {
			return err
		}
	}

	for rowIdx, row := range table.Rows {
		excelRow := rowIdx + 2

		code := row.Metric.Code
		description := row.Metric.Description
		if row.Kind != kpitable.Base {
			code = fmt.Sprintf("%s - %s", row.Metric.Code, row.Kind)
			description = fmt.Sprintf("%s - %s", row.Metric.Description, row.Kind)
		}

		labels := []interface{}{code, description, row.Units()}
		for idx, label := range labels {
			cell, err := excelize.CoordinatesToCellName(idx+1, excelRow)
			if err != nil {
				return err
			}
			if err := book.SetCellValue(sheet, cell, label); err != nil {
				return err
			}
		}

		valueStyle := styles.number
		if row.Kind != kpitable.Base {
			valueStyle = styles.percent
		}

		for colIdx, val := range row.Values {
			if val == nil {
				continue
			}

			cell, err := excelize.CoordinatesToCellName(firstDataCol+colIdx, excelRow)
			if err != nil {
				return err
			}
			if err := book.SetCellValue(sheet, cell, *val); err != nil {
				return err
			}
			if err := book.SetCellStyle(sheet, cell, cell, valueStyle); err != nil {
				return err
			}
		}
	}

	// freeze the header row and the three label columns
	return book.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		XSplit:      firstDataCol - 1,
		YSplit:      1,
		TopLeftCell: "D2",
		ActivePane:  "bottomRight",
	})
}

func writeSummarySheet(book *excelize.File, styles *workbookStyles, tables []*kpitable.Table, companyNames map[string]string, asOf time.Time) error {
	headers := []string{"Ticker", "Company", "KPIs", "Periods", "Retrieved"}
	for idx, header := range headers {
		cell, err := excelize.CoordinatesToCellName(idx+1, 1)
		if err != nil {
			return err
		}
		if err := book.SetCellValue(summarySheet, cell, header); err != nil {
			return err
		}
		if err := book.SetCellStyle(summarySheet, cell, cell, styles.header); err != nil {
			return err
		}
	}

	for idx, table := range tables {
		numMetrics := 0
		for _, row := range table.Rows {
			if row.Kind == kpitable.Base {
				numMetrics++
			}
		}

		values := []interface{}{
			table.Ticker,
			companyNames[table.CompanyID],
			numMetrics,
			len(table.Columns),
			asOf.Format("2006-01-02 15:04:05"),
		}

		for colIdx, val := range values {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, idx+2)
			if err != nil {
				return err
			}
			if err := book.SetCellValue(summarySheet, cell, val); err != nil {
				return err
			}
		}
	}

	return nil
}

func writeReadmeSheet(book *excelize.File) error {
	if _, err := book.NewSheet(readmeSheet); err != nil {
		return err
	}

	for idx, line := range readmeLines {
		cell, err := excelize.CoordinatesToCellName(1, idx+1)
		if err != nil {
			return err
		}
		if err := book.SetCellValue(readmeSheet, cell, line); err != nil {
			return err
		}
	}

	return nil
}

// sheetName truncates tickers to Excel's 31 character sheet name limit.
func sheetName(ticker string) string {
	if len(ticker) > 31 {
		return ticker[:31]
	}

	return ticker
}
