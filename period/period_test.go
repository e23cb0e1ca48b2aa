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
package period_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/penny-vault/kpi-refresh/period"
)

func mustParse(names ...string) []period.Period {
	periods := make([]period.Period, 0, len(names))
	for _, name := range names {
		p, err := period.Parse(name)
		Expect(err).To(BeNil())
		periods = append(periods, p)
	}
	return periods
}

var _ = Describe("Parse", func() {
	Context("with annual period names", func() {
		It("classifies FY24", func() {
			p, err := period.Parse("FY24")
			Expect(err).To(BeNil())
			Expect(p.Kind).To(Equal(period.Annual))
			Expect(p.Year).To(Equal(2024))
			Expect(p.Quarter).To(Equal(0))
		})

		It("classifies FY05", func() {
			p, err := period.Parse("FY05")
			Expect(err).To(BeNil())
			Expect(p.Year).To(Equal(2005))
		})
	})

	Context("with quarterly period names", func() {
		It("classifies Q3-24", func() {
			p, err := period.Parse("Q3-24")
			Expect(err).To(BeNil())
			Expect(p.Kind).To(Equal(period.Quarterly))
			Expect(p.Year).To(Equal(2024))
			Expect(p.Quarter).To(Equal(3))
		})

		It("rejects quarter numbers outside 1-4", func() {
			_, err := period.Parse("Q5-24")
			Expect(err).To(MatchError(period.ErrUnrecognizedPeriod))
		})
	})

	Context("with malformed names", func() {
		It("rejects empty strings", func() {
			_, err := period.Parse("")
			Expect(err).To(MatchError(period.ErrUnrecognizedPeriod))
		})

		It("rejects four-digit years", func() {
			_, err := period.Parse("FY2024")
			Expect(err).To(MatchError(period.ErrUnrecognizedPeriod))
		})

		It("rejects half-year periods", func() {
			_, err := period.Parse("H1-24")
			Expect(err).To(MatchError(period.ErrUnrecognizedPeriod))
		})

		It("rejects lowercase names", func() {
			_, err := period.Parse("fy24")
			Expect(err).To(MatchError(period.ErrUnrecognizedPeriod))
		})
	})
})

var _ = Describe("Catalog", func() {
	Context("with a mix of annual and quarterly periods", func() {
		It("orders annual before quarterly, each newest first", func() {
			catalog := period.NewCatalog(mustParse("FY23", "FY24", "Q4-23", "Q1-24"))
			Expect(catalog.Columns()).To(Equal([]string{"FY24", "FY23", "Q1-24", "Q4-23"}))
		})

		It("sorts Q4 of a year before Q1 of the following year when newer", func() {
			catalog := period.NewCatalog(mustParse("Q4-23", "Q1-24", "Q2-24", "Q3-23"))
			Expect(catalog.Columns()).To(Equal([]string{"Q2-24", "Q1-24", "Q4-23", "Q3-23"}))
		})
	})

	Context("with more periods than the window allows", func() {
		It("keeps the five most recent annual periods", func() {
			catalog := period.NewCatalog(mustParse(
				"FY17", "FY18", "FY19", "FY20", "FY21", "FY22", "FY23", "FY24"))
			Expect(catalog.Columns()).To(Equal([]string{"FY24", "FY23", "FY22", "FY21", "FY20"}))
		})

		It("keeps the twelve most recent quarterly periods", func() {
			names := []string{}
			for _, yy := range []string{"21", "22", "23", "24"} {
				for _, q := range []string{"1", "2", "3", "4"} {
					names = append(names, "Q"+q+"-"+yy)
				}
			}

			catalog := period.NewCatalog(mustParse(names...))
			Expect(catalog.Quarterly).To(HaveLen(12))
			Expect(catalog.Columns()[0]).To(Equal("Q4-24"))
			Expect(catalog.Columns()[11]).To(Equal("Q1-22"))
		})
	})

	Context("with fewer periods than the window", func() {
		It("keeps whatever is present", func() {
			catalog := period.NewCatalog(mustParse("FY24", "Q1-24"))
			Expect(catalog.Annual).To(HaveLen(1))
			Expect(catalog.Quarterly).To(HaveLen(1))
		})

		It("handles an empty period list", func() {
			catalog := period.NewCatalog(nil)
			Expect(catalog.Columns()).To(BeEmpty())
		})
	})

	Context("with duplicate period names", func() {
		It("collapses duplicates", func() {
			catalog := period.NewCatalog(mustParse("FY24", "FY24", "Q1-24", "Q1-24"))
			Expect(catalog.Columns()).To(Equal([]string{"FY24", "Q1-24"}))
		})
	})

	Describe("Contains", func() {
		It("reports window membership", func() {
			catalog := period.NewCatalog(mustParse(
				"FY17", "FY18", "FY19", "FY20", "FY21", "FY22", "FY23", "FY24"))
			Expect(catalog.Contains("FY24")).To(BeTrue())
			Expect(catalog.Contains("FY20")).To(BeTrue())
			Expect(catalog.Contains("FY19")).To(BeFalse())
			Expect(catalog.Contains("Q1-24")).To(BeFalse())
		})
	})
})
