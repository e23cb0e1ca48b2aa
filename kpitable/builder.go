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
package kpitable

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/penny-vault/kpi-refresh/data"
	"github.com/penny-vault/kpi-refresh/period"
	"github.com/rs/zerolog/log"
)

// millionsThreshold rescales any value at or above one million into
// millions at ingestion. The threshold is fixed and the rescale is
// irreversible within the table; every consumer sees unit-consistent
// values without re-deriving the cutoff.
const millionsThreshold = 1_000_000

var (
	ErrPeriodRejected = errors.New("observation has an unclassifiable period")
)

// Rejected records an observation excluded from the table because its
// period name could not be classified.
type Rejected struct {
	Observation *data.Observation
	Err         error
}

// Builder accumulates observations for a single company and produces the
// final Table. It is not safe for concurrent use; refreshes are sequential.
type Builder struct {
	ticker    string
	companyID string
	catalog   *period.Catalog

	metrics  []data.Metric
	known    map[string]bool
	cells    map[string]map[string]*float64
	millions map[string]bool
	rejected []Rejected
}

// NewBuilder creates a builder over the company's period catalog. The
// requested metrics are registered up front so that a metric returning no
// data still produces an all-null base row.
func NewBuilder(ticker, companyID string, catalog *period.Catalog, requested []data.Metric) *Builder {
	builder := &Builder{
		ticker:    ticker,
		companyID: companyID,
		catalog:   catalog,
		metrics:   make([]data.Metric, 0, len(requested)),
		known:     make(map[string]bool, len(requested)),
		cells:     make(map[string]map[string]*float64, len(requested)),
		millions:  make(map[string]bool, len(requested)),
		rejected:  make([]Rejected, 0),
	}

	for _, metric := range requested {
		builder.register(metric)
	}

	return builder
}

// register records a metric the first time its code is seen. Metrics
// registered up front keep their mapping metadata; a later observation for
// the same code never re-registers with vendor metadata.
func (builder *Builder) register(metric data.Metric) {
	if builder.known[metric.Code] {
		return
	}

	builder.known[metric.Code] = true
	builder.metrics = append(builder.metrics, metric)
	builder.cells[metric.Code] = make(map[string]*float64, period.MaxAnnual+period.MaxQuarterly)
}

// Add ingests one observation. Observations with an unclassifiable period
// name are excluded from the table and reported via Rejected(); periods
// outside the catalog window are dropped; duplicate (metric, period) values
// keep the first value seen and log the conflict, they are never averaged.
func (builder *Builder) Add(obs *data.Observation) error {
	if _, err := period.Parse(obs.PeriodName); err != nil {
		rejectErr := fmt.Errorf("%w: %s", ErrPeriodRejected, obs.PeriodName)
		builder.rejected = append(builder.rejected, Rejected{Observation: obs, Err: rejectErr})
		log.Warn().Err(err).Str("Ticker", obs.Ticker).Str("MetricCode", obs.MetricCode).
			Str("Period", obs.PeriodName).Msg("excluding observation with unclassifiable period")
		return rejectErr
	}

	if !builder.catalog.Contains(obs.PeriodName) {
		// outside the annual/quarterly window
		return nil
	}

	builder.register(data.Metric{
		Code:        obs.MetricCode,
		Description: obs.MetricDescription,
		Units:       obs.Units,
	})

	if _, ok := builder.cells[obs.MetricCode][obs.PeriodName]; ok {
		log.Warn().Str("Ticker", obs.Ticker).Str("MetricCode", obs.MetricCode).
			Str("Period", obs.PeriodName).Msg("duplicate observation for period; keeping first value")
		return nil
	}

	if obs.Value == nil {
		builder.cells[obs.MetricCode][obs.PeriodName] = nil
		return nil
	}

	val := *obs.Value
	if math.Abs(val) >= millionsThreshold {
		val /= millionsThreshold
		builder.millions[obs.MetricCode] = true
	}

	builder.cells[obs.MetricCode][obs.PeriodName] = &val

	return nil
}

// Rejected returns the observations excluded for data-shape reasons.
func (builder *Builder) Rejected() []Rejected {
	return builder.rejected
}

// Build assembles the final table: catalog-ordered columns, then for each
// metric a base row followed by its QoQ and YoY growth rows. Growth rows
// are always emitted, even when every cell is null, so row presence means
// "this metric was requested" independent of data completeness.
func (builder *Builder) Build() *Table {
	columns := builder.catalog.Columns()

	kinds := make([]period.Kind, len(columns))
	for idx := range builder.catalog.Annual {
		kinds[idx] = period.Annual
	}
	for idx := range builder.catalog.Quarterly {
		kinds[len(builder.catalog.Annual)+idx] = period.Quarterly
	}

	table := &Table{
		Ticker:      builder.ticker,
		CompanyID:   builder.companyID,
		Columns:     columns,
		ColumnKinds: kinds,
		Rows:        make([]*Row, 0, len(builder.metrics)*3),
		RetrievedAt: time.Now(),
	}

	annualIdx := make([]int, 0, len(builder.catalog.Annual))
	quarterlyIdx := make([]int, 0, len(builder.catalog.Quarterly))
	for idx, kind := range kinds {
		if kind == period.Annual {
			annualIdx = append(annualIdx, idx)
		} else {
			quarterlyIdx = append(quarterlyIdx, idx)
		}
	}

	for _, metric := range builder.metrics {
		base := &Row{
			Metric:   metric,
			Kind:     Base,
			Millions: builder.millions[metric.Code],
			Values:   make([]*float64, len(columns)),
		}

		for idx, col := range columns {
			base.Values[idx] = builder.cells[metric.Code][col]
		}

		table.Rows = append(table.Rows,
			base,
			qoqRow(base, quarterlyIdx),
			yoyRow(base, annualIdx, quarterlyIdx),
		)
	}

	return table
}

// growth computes a period-over-period percentage change. A nil operand or
// a zero denominator yields nil, never an error and never zero.
func growth(cur, prev *float64) *float64 {
	if cur == nil || prev == nil || *prev == 0 {
		return nil
	}

	pct := (*cur - *prev) / math.Abs(*prev) * 100
	return &pct
}

// qoqRow compares each quarterly column with the next-older quarterly
// column. Annual columns are never part of a QoQ comparison.
func qoqRow(base *Row, quarterlyIdx []int) *Row {
	row := &Row{
		Metric: base.Metric,
		Kind:   QoQGrowth,
		Values: make([]*float64, len(base.Values)),
	}

	for j := 0; j+1 < len(quarterlyIdx); j++ {
		cur := quarterlyIdx[j]
		prev := quarterlyIdx[j+1]
		row.Values[cur] = growth(base.Values[cur], base.Values[prev])
	}

	return row
}

// yoyRow compares annual columns with the prior year and quarterly columns
// with the same quarter one year earlier (four quarterly positions back).
func yoyRow(base *Row, annualIdx, quarterlyIdx []int) *Row {
	row := &Row{
		Metric: base.Metric,
		Kind:   YoYGrowth,
		Values: make([]*float64, len(base.Values)),
	}

	for j := 0; j+1 < len(annualIdx); j++ {
		cur := annualIdx[j]
		prev := annualIdx[j+1]
		row.Values[cur] = growth(base.Values[cur], base.Values[prev])
	}

	for j := 0; j+4 < len(quarterlyIdx); j++ {
		cur := quarterlyIdx[j]
		prev := quarterlyIdx[j+4]
		row.Values[cur] = growth(base.Values[cur], base.Values[prev])
	}

	return row
}
