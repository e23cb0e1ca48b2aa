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
package kpitable_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/penny-vault/kpi-refresh/data"
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

var _ = Describe("Builder", func() {
	var (
		builder *kpitable.Builder
		catalog *period.Catalog
	)

	BeforeEach(func() {
		catalog = catalogOf("FY23", "FY24", "Q1-24", "Q4-23", "Q3-23", "Q2-23", "Q1-23")
		builder = kpitable.NewBuilder("TEST", "0001", catalog, []data.Metric{revenueMetric})
	})

	Describe("column assembly", func() {
		It("orders annual columns before quarterly columns, newest first", func() {
			small := kpitable.NewBuilder("TEST", "0001",
				catalogOf("FY23", "FY24", "Q4-23", "Q1-24"), []data.Metric{revenueMetric})
			table := small.Build()
			Expect(table.Columns).To(Equal([]string{"FY24", "FY23", "Q1-24", "Q4-23"}))
			Expect(table.ColumnKinds[0]).To(Equal(period.Annual))
			Expect(table.ColumnKinds[2]).To(Equal(period.Quarterly))
		})
	})

	Describe("millions scaling", func() {
		It("scales values at or above one million and flags the row", func() {
			Expect(builder.Add(obs("MO_RIS_REV", "FY24", 1_000_000))).To(Succeed())
			table := builder.Build()

			row := table.BaseRow("MO_RIS_REV")
			Expect(row.Millions).To(BeTrue())
			Expect(*row.Values[table.ColumnIndex("FY24")]).To(Equal(1.0))
			Expect(row.Units()).To(Equal("US Dollars (Millions)"))
		})

		It("leaves values below one million unscaled", func() {
			Expect(builder.Add(obs("MO_RIS_REV", "FY24", 999_999))).To(Succeed())
			table := builder.Build()

			row := table.BaseRow("MO_RIS_REV")
			Expect(row.Millions).To(BeFalse())
			Expect(*row.Values[table.ColumnIndex("FY24")]).To(Equal(999_999.0))
			Expect(row.Units()).To(Equal("US Dollars"))
		})

		It("scales large negative values", func() {
			Expect(builder.Add(obs("MO_RIS_REV", "FY24", -2_500_000))).To(Succeed())
			table := builder.Build()

			row := table.BaseRow("MO_RIS_REV")
			Expect(row.Millions).To(BeTrue())
			Expect(*row.Values[table.ColumnIndex("FY24")]).To(Equal(-2.5))
		})
	})

	Describe("growth rows", func() {
		It("computes annual YoY growth against the adjacent annual column", func() {
			Expect(builder.Add(obs("MO_RIS_REV", "FY24", 1_200_000))).To(Succeed())
			Expect(builder.Add(obs("MO_RIS_REV", "FY23", 1_000_000))).To(Succeed())
			table := builder.Build()

			yoy := table.Rows[2]
			Expect(yoy.Kind).To(Equal(kpitable.YoYGrowth))
			Expect(*yoy.Values[table.ColumnIndex("FY24")]).To(BeNumerically("~", 20.0, 1e-9))
			Expect(yoy.Values[table.ColumnIndex("FY23")]).To(BeNil())
		})

		It("computes quarterly QoQ against the adjacent quarter and YoY against the same quarter last year", func() {
			Expect(builder.Add(obs("MO_RIS_REV", "Q1-24", 110))).To(Succeed())
			Expect(builder.Add(obs("MO_RIS_REV", "Q4-23", 100))).To(Succeed())
			Expect(builder.Add(obs("MO_RIS_REV", "Q1-23", 90))).To(Succeed())
			table := builder.Build()

			qoq := table.Rows[1]
			Expect(qoq.Kind).To(Equal(kpitable.QoQGrowth))
			Expect(*qoq.Values[table.ColumnIndex("Q1-24")]).To(BeNumerically("~", 10.0, 1e-9))

			yoy := table.Rows[2]
			Expect(*yoy.Values[table.ColumnIndex("Q1-24")]).To(BeNumerically("~", 22.2222222, 1e-6))
		})

		It("never emits growth on annual columns of the QoQ row", func() {
			Expect(builder.Add(obs("MO_RIS_REV", "FY24", 120))).To(Succeed())
			Expect(builder.Add(obs("MO_RIS_REV", "FY23", 100))).To(Succeed())
			table := builder.Build()

			qoq := table.Rows[1]
			Expect(qoq.Values[table.ColumnIndex("FY24")]).To(BeNil())
			Expect(qoq.Values[table.ColumnIndex("FY23")]).To(BeNil())
		})

		It("propagates nulls instead of computing partial growth", func() {
			Expect(builder.Add(obs("MO_RIS_REV", "Q1-24", 110))).To(Succeed())
			table := builder.Build()

			qoq := table.Rows[1]
			Expect(qoq.Values[table.ColumnIndex("Q1-24")]).To(BeNil())
		})

		It("yields null growth when the comparison value is zero", func() {
			Expect(builder.Add(obs("MO_RIS_REV", "Q1-24", 110))).To(Succeed())
			Expect(builder.Add(obs("MO_RIS_REV", "Q4-23", 0))).To(Succeed())
			table := builder.Build()

			qoq := table.Rows[1]
			Expect(qoq.Values[table.ColumnIndex("Q1-24")]).To(BeNil())
		})

		It("divides by the absolute value when the comparison is negative", func() {
			Expect(builder.Add(obs("MO_RIS_REV", "Q1-24", 50))).To(Succeed())
			Expect(builder.Add(obs("MO_RIS_REV", "Q4-23", -100))).To(Succeed())
			table := builder.Build()

			qoq := table.Rows[1]
			Expect(*qoq.Values[table.ColumnIndex("Q1-24")]).To(BeNumerically("~", 150.0, 1e-9))
		})

		It("labels growth rows as percentages", func() {
			table := builder.Build()
			Expect(table.Rows[1].Units()).To(Equal("Percentage"))
			Expect(table.Rows[2].Units()).To(Equal("Percentage"))
		})
	})

	Describe("observation handling", func() {
		It("rejects observations with unclassifiable period names", func() {
			err := builder.Add(obs("MO_RIS_REV", "H1-24", 100))
			Expect(err).To(MatchError(kpitable.ErrPeriodRejected))
			Expect(builder.Rejected()).To(HaveLen(1))
		})

		It("silently drops periods outside the catalog window", func() {
			Expect(builder.Add(obs("MO_RIS_REV", "FY19", 100))).To(Succeed())
			Expect(builder.Rejected()).To(BeEmpty())

			table := builder.Build()
			for _, val := range table.BaseRow("MO_RIS_REV").Values {
				Expect(val).To(BeNil())
			}
		})

		It("keeps the first value when duplicates arrive", func() {
			Expect(builder.Add(obs("MO_RIS_REV", "FY24", 100))).To(Succeed())
			Expect(builder.Add(obs("MO_RIS_REV", "FY24", 200))).To(Succeed())
			table := builder.Build()

			Expect(*table.BaseRow("MO_RIS_REV").Values[table.ColumnIndex("FY24")]).To(Equal(100.0))
		})

		It("keeps the mapping metadata when vendor metadata differs", func() {
			vendorObs := obs("MO_RIS_REV", "FY24", 100)
			vendorObs.Units = "Reported Dollars"
			vendorObs.MetricDescription = "Vendor revenue label"
			Expect(builder.Add(vendorObs)).To(Succeed())
			table := builder.Build()

			// three rows per metric even though metadata differed
			Expect(table.Rows).To(HaveLen(3))
			Expect(table.BaseRow("MO_RIS_REV").Metric.Units).To(Equal("US Dollars"))
		})
	})

	Describe("requested metrics with no data", func() {
		It("still produces all-null base and growth rows", func() {
			table := builder.Build()

			Expect(table.Rows).To(HaveLen(3))
			for _, row := range table.Rows {
				for _, val := range row.Values {
					Expect(val).To(BeNil())
				}
			}
			Expect(table.EmptyMetrics()).To(HaveLen(1))
			Expect(table.EmptyMetrics()[0].Code).To(Equal("MO_RIS_REV"))
		})
	})

	Describe("unrequested metrics in the data", func() {
		It("registers them in arrival order after the requested metrics", func() {
			Expect(builder.Add(obs("MO_RIS_GM", "FY24", 0.55))).To(Succeed())
			table := builder.Build()

			Expect(table.Rows).To(HaveLen(6))
			Expect(table.Rows[0].Metric.Code).To(Equal("MO_RIS_REV"))
			Expect(table.Rows[3].Metric.Code).To(Equal("MO_RIS_GM"))
		})
	})
})
