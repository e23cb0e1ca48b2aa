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

// Package kpitable pivots raw vendor observations into the wide KPI matrix
// consumed by every exporter: one column per catalog period, three rows per
// metric (base value, QoQ growth, YoY growth).
package kpitable

import (
	"time"

	"github.com/penny-vault/kpi-refresh/data"
	"github.com/penny-vault/kpi-refresh/period"
)

type RowKind int

const (
	Base RowKind = iota
	QoQGrowth
	YoYGrowth
)

// String returns the metric_type label used in exports; the lower-case
// growth labels match the long-standing export format.
func (kind RowKind) String() string {
	switch kind {
	case Base:
		return "Value"
	case QoQGrowth:
		return "qoq growth"
	case YoYGrowth:
		return "yoy growth"
	default:
		return "Unknown"
	}
}

// Row is one line of the KPI table. Values is aligned with Table.Columns;
// a nil entry means no value is defined for that period. Millions is set on
// base rows whose values were rescaled at ingestion.
type Row struct {
	Metric   data.Metric
	Kind     RowKind
	Millions bool
	Values   []*float64
}

// Units returns the display units for the row; growth rows are always
// percentages regardless of the metric's natural units.
func (row *Row) Units() string {
	if row.Kind == Base {
		if row.Millions {
			return row.Metric.Units + " (Millions)"
		}
		return row.Metric.Units
	}

	return "Percentage"
}

// Table is the full KPI matrix for one company. It is built fresh on every
// refresh and never mutated afterwards.
type Table struct {
	Ticker      string
	CompanyID   string
	Columns     []string
	ColumnKinds []period.Kind
	Rows        []*Row
	RetrievedAt time.Time
}

// ColumnIndex returns the position of the named period column, or -1.
func (table *Table) ColumnIndex(name string) int {
	for idx, col := range table.Columns {
		if col == name {
			return idx
		}
	}

	return -1
}

// BaseRow returns the base row for the given metric code, or nil.
func (table *Table) BaseRow(code string) *Row {
	for _, row := range table.Rows {
		if row.Kind == Base && row.Metric.Code == code {
			return row
		}
	}

	return nil
}

// EmptyMetrics lists requested metrics whose base row contains no values at
// all; these are surfaced in the manifest so missing data is never silent.
func (table *Table) EmptyMetrics() []data.Metric {
	empty := make([]data.Metric, 0)

	for _, row := range table.Rows {
		if row.Kind != Base {
			continue
		}

		hasValue := false
		for _, val := range row.Values {
			if val != nil {
				hasValue = true
				break
			}
		}

		if !hasValue {
			empty = append(empty, row.Metric)
		}
	}

	return empty
}
