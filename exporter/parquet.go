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
	"os"
	"path/filepath"

	"github.com/penny-vault/kpi-refresh/kpitable"
	"github.com/rs/zerolog/log"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetRow struct {
	Ticker         string  `parquet:"name=ticker, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	CompanyName    string  `parquet:"name=company_name, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	CompanyID      string  `parquet:"name=company_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	KpiCode        string  `parquet:"name=kpi_code, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	KpiDescription string  `parquet:"name=kpi_description, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Period         string  `parquet:"name=period, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	PeriodType     string  `parquet:"name=period_type, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	MetricType     string  `parquet:"name=metric_type, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Value          float64 `parquet:"name=value, type=DOUBLE"`
	Units          string  `parquet:"name=units, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	LastUpdated    string  `parquet:"name=last_updated, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// WriteParquet stores every non-empty cell across all company tables into a
// single long-format parquet file.
func WriteParquet(dir string, tables []*kpitable.Table, companyNames map[string]string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	rows := make([]*parquetRow, 0, 1024)
	for _, table := range tables {
		for _, long := range LongRows(table, companyNames[table.CompanyID]) {
			rows = append(rows, &parquetRow{
				Ticker:         long.Ticker,
				CompanyName:    long.CompanyName,
				CompanyID:      long.CompanyID,
				KpiCode:        long.KpiCode,
				KpiDescription: long.KpiDescription,
				Period:         long.Period,
				PeriodType:     long.PeriodType,
				MetricType:     long.MetricType,
				Value:          long.Value,
				Units:          long.Units,
				LastUpdated:    long.LastUpdated,
			})
		}
	}

	fn := filepath.Join(dir, "all_companies.parquet")

	fh, err := local.NewLocalFileWriter(fn)
	if err != nil {
		log.Error().Err(err).Str("FileName", fn).Msg("cannot create local file")
		return "", err
	}
	defer fh.Close()

	pw, err := writer.NewParquetWriter(fh, new(parquetRow), 4)
	if err != nil {
		log.Error().Err(err).Msg("parquet writer creation failed")
		return "", err
	}

	pw.RowGroupSize = 128 * 1024 * 1024 // 128M
	pw.PageSize = 8 * 1024              // 8k
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, r := range rows {
		if err = pw.Write(r); err != nil {
			log.Error().
				Err(err).
				Str("Ticker", r.Ticker).Str("KpiCode", r.KpiCode).
				Str("Period", r.Period).
				Msg("parquet write failed for row")
		}
	}

	if err = pw.WriteStop(); err != nil {
		log.Error().Err(err).Msg("parquet write failed")
		return "", err
	}

	log.Info().Int("NumRows", len(rows)).Str("FileName", fn).Msg("parquet write finished")
	return fn, nil
}
