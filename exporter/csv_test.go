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
package exporter_test

import (
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/penny-vault/kpi-refresh/data"
	"github.com/penny-vault/kpi-refresh/exporter"
	"github.com/penny-vault/kpi-refresh/kpitable"
	"github.com/penny-vault/kpi-refresh/period"
)

func catalogOf(names ...string) *period.Catalog {
	periods := make([]period.Period, 0, len(names))
	for _, name := range names {
		p, err := period.Parse(name)
		Expect(err).To(BeNil())
		periods = append(periods, p)
	}
	return period.NewCatalog(periods)
}

func obs(code, periodName string, value float64) *data.Observation {
	val := value
	return &data.Observation{
		Ticker:            "TEST",
		CompanyID:         "0001",
		MetricCode:        code,
		MetricDescription: code + " description",
		Units:             "US Dollars",
		PeriodName:        periodName,
		Value:             &val,
	}
}

var revenueMetric = data.Metric{Code: "MO_RIS_REV", Description: "Total Revenue", Units: "US Dollars"}

// revenueTable builds a small two-column table with FY24 populated and FY23
// null so exports exercise both cases.
func revenueTable() *kpitable.Table {
	builder := kpitable.NewBuilder("TEST", "0001",
		catalogOf("FY23", "FY24"), []data.Metric{revenueMetric})
	Expect(builder.Add(obs("MO_RIS_REV", "FY24", 2_000_000))).To(Succeed())
	return builder.Build()
}

var _ = Describe("LongRows", func() {
	It("omits null cells and labels row variants", func() {
		table := revenueTable()
		rows := exporter.LongRows(table, "Example Corp")

		// FY24 base value only; FY23 is null everywhere and both growth
		// rows have no computable values with a single observation
		Expect(rows).To(HaveLen(1))
		Expect(rows[0].Ticker).To(Equal("TEST"))
		Expect(rows[0].CompanyName).To(Equal("Example Corp"))
		Expect(rows[0].KpiCode).To(Equal("MO_RIS_REV"))
		Expect(rows[0].Period).To(Equal("FY24"))
		Expect(rows[0].PeriodType).To(Equal("Annual"))
		Expect(rows[0].MetricType).To(Equal("Value"))
		Expect(rows[0].Value).To(Equal(2.0))
		Expect(rows[0].Units).To(Equal("US Dollars (Millions)"))
	})

	It("includes growth rows when they have values", func() {
		builder := kpitable.NewBuilder("TEST", "0001",
			catalogOf("FY23", "FY24"), []data.Metric{revenueMetric})
		Expect(builder.Add(obs("MO_RIS_REV", "FY24", 120))).To(Succeed())
		Expect(builder.Add(obs("MO_RIS_REV", "FY23", 100))).To(Succeed())

		rows := exporter.LongRows(builder.Build(), "Example Corp")

		metricTypes := make([]string, 0, len(rows))
		for _, row := range rows {
			metricTypes = append(metricTypes, row.MetricType)
		}
		Expect(metricTypes).To(ConsistOf("Value", "Value", "yoy growth"))
	})

	It("stamps every row with the table retrieval time", func() {
		table := revenueTable()
		rows := exporter.LongRows(table, "Example Corp")
		Expect(rows[0].LastUpdated).To(Equal(table.RetrievedAt.Format(time.RFC3339)))
	})
})

var _ = Describe("WriteCompanyCSV", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("writes rows to a slugified ticker filename", func() {
		builder := kpitable.NewBuilder("BRK.B", "0002",
			catalogOf("FY24"), []data.Metric{revenueMetric})
		Expect(builder.Add(obs("MO_RIS_REV", "FY24", 500))).To(Succeed())

		fn, err := exporter.WriteCompanyCSV(dir, builder.Build(), "Berkshire")
		Expect(err).To(BeNil())
		Expect(filepath.Base(fn)).To(Equal("brk-b.csv"))

		fh, err := os.Open(fn)
		Expect(err).To(BeNil())
		defer fh.Close()

		parsed := make([]*exporter.LongRow, 0, 1)
		Expect(gocsv.UnmarshalFile(fh, &parsed)).To(Succeed())
		Expect(parsed).To(HaveLen(1))
		Expect(parsed[0].Value).To(Equal(500.0))
	})
})

var _ = Describe("WriteConsolidatedCSV", func() {
	It("combines every company's rows into all_companies.csv", func() {
		dir := GinkgoT().TempDir()

		other := kpitable.NewBuilder("OTHR", "0002",
			catalogOf("FY24"), []data.Metric{revenueMetric})
		Expect(other.Add(&data.Observation{
			Ticker: "OTHR", CompanyID: "0002", MetricCode: "MO_RIS_REV",
			Units: "US Dollars", PeriodName: "FY24", Value: floatPtr(42),
		})).To(Succeed())

		tables := []*kpitable.Table{revenueTable(), other.Build()}
		names := map[string]string{"0001": "Example Corp", "0002": "Other Corp"}

		fn, err := exporter.WriteConsolidatedCSV(dir, tables, names)
		Expect(err).To(BeNil())
		Expect(filepath.Base(fn)).To(Equal("all_companies.csv"))

		fh, err := os.Open(fn)
		Expect(err).To(BeNil())
		defer fh.Close()

		parsed := make([]*exporter.LongRow, 0, 2)
		Expect(gocsv.UnmarshalFile(fh, &parsed)).To(Succeed())
		Expect(parsed).To(HaveLen(2))
		Expect(parsed[0].CompanyName).To(Equal("Example Corp"))
		Expect(parsed[1].CompanyName).To(Equal("Other Corp"))
	})
})

var _ = Describe("WriteErrorsCSV", func() {
	It("returns an empty filename when there are no errors", func() {
		fn, err := exporter.WriteErrorsCSV(GinkgoT().TempDir(), nil, time.Now())
		Expect(err).To(BeNil())
		Expect(fn).To(Equal(""))
	})

	It("writes a timestamped error report", func() {
		dir := GinkgoT().TempDir()
		asOf := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

		fn, err := exporter.WriteErrorsCSV(dir, []*exporter.CompanyError{
			{Ticker: "MISSING", Error: "ticker not found in company mappings"},
		}, asOf)
		Expect(err).To(BeNil())
		Expect(filepath.Base(fn)).To(Equal("errors_20250314_092653.csv"))

		fh, err := os.Open(fn)
		Expect(err).To(BeNil())
		defer fh.Close()

		parsed := make([]*exporter.CompanyError, 0, 1)
		Expect(gocsv.UnmarshalFile(fh, &parsed)).To(Succeed())
		Expect(parsed).To(HaveLen(1))
		Expect(parsed[0].Ticker).To(Equal("MISSING"))
	})
})

func floatPtr(val float64) *float64 {
	return &val
}
