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

// Package exporter serializes KPI tables to CSV, Excel, and parquet and
// writes the run manifest. Exporters only format; all table semantics live
// in kpitable.
package exporter

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/gosimple/slug"
	"github.com/penny-vault/kpi-refresh/kpitable"
)

// LongRow is one line of the long-format CSV export: one row per (ticker,
// metric, period, variant) with a value present. Null cells are omitted.
type LongRow struct {
	Ticker         string  `csv:"ticker"`
	CompanyName    string  `csv:"company_name"`
	CompanyID      string  `csv:"company_id"`
	KpiCode        string  `csv:"kpi_code"`
	KpiDescription string  `csv:"kpi_description"`
	Period         string  `csv:"period"`
	PeriodType     string  `csv:"period_type"`
	MetricType     string  `csv:"metric_type"`
	Value          float64 `csv:"value"`
	Units          string  `csv:"units"`
	LastUpdated    string  `csv:"last_updated"`
}

// CompanyError records a per-company failure during a batch refresh; one
// company's failure never aborts the batch.
type CompanyError struct {
	Ticker string `csv:"ticker"`
	Error  string `csv:"error"`
}

// LongRows flattens a table into long-format export rows.
func LongRows(table *kpitable.Table, companyName string) []*LongRow {
	rows := make([]*LongRow, 0, len(table.Rows)*len(table.Columns))
	retrieved := table.RetrievedAt.Format(time.RFC3339)

	for _, row := range table.Rows {
		for idx, val := range row.Values {
			if val == nil {
				continue
			}

			rows = append(rows, &LongRow{
				Ticker:         table.Ticker,
				CompanyName:    companyName,
				CompanyID:      table.CompanyID,
				KpiCode:        row.Metric.Code,
				KpiDescription: row.Metric.Description,
				Period:         table.Columns[idx],
				PeriodType:     table.ColumnKinds[idx].String(),
				MetricType:     row.Kind.String(),
				Value:          *val,
				Units:          row.Units(),
				LastUpdated:    retrieved,
			})
		}
	}

	return rows
}

// WriteCompanyCSV writes a single company's long-format rows to
// <ticker>.csv in dir and returns the file path.
func WriteCompanyCSV(dir string, table *kpitable.Table, companyName string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	fn := filepath.Join(dir, fmt.Sprintf("%s.csv", slug.Make(table.Ticker)))
	fh, err := os.Create(fn)
	if err != nil {
		return "", err
	}
	defer fh.Close()

	rows := LongRows(table, companyName)
	if err := gocsv.MarshalFile(&rows, fh); err != nil {
		return "", err
	}

	return fn, nil
}

// WriteConsolidatedCSV writes every company's rows to all_companies.csv.
func WriteConsolidatedCSV(dir string, tables []*kpitable.Table, companyNames map[string]string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	rows := make([]*LongRow, 0)
	for _, table := range tables {
		rows = append(rows, LongRows(table, companyNames[table.CompanyID])...)
	}

	fn := filepath.Join(dir, "all_companies.csv")
	fh, err := os.Create(fn)
	if err != nil {
		return "", err
	}
	defer fh.Close()

	if err := gocsv.MarshalFile(&rows, fh); err != nil {
		return "", err
	}

	return fn, nil
}

// WriteErrorsCSV records per-company failures for the batch; returns the
// empty string when there were no errors.
func WriteErrorsCSV(dir string, errs []*CompanyError, asOf time.Time) (string, error) {
	if len(errs) == 0 {
		return "", nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	fn := filepath.Join(dir, fmt.Sprintf("errors_%s.csv", asOf.Format("20060102_150405")))
	fh, err := os.Create(fn)
	if err != nil {
		return "", err
	}
	defer fh.Close()

	if err := gocsv.MarshalFile(&errs, fh); err != nil {
		return "", err
	}

	return fn, nil
}
