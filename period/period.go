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

// Package period classifies fiscal period names and assembles the canonical
// column ordering used by KPI tables: annual periods newest to oldest,
// followed by quarterly periods newest to oldest.
package period

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"time"
)

type Kind int

const (
	Annual Kind = iota
	Quarterly
)

func (kind Kind) String() string {
	switch kind {
	case Annual:
		return "Annual"
	case Quarterly:
		return "Quarterly"
	default:
		return "Unknown"
	}
}

const (
	// MaxAnnual and MaxQuarterly cap how many periods of each kind are kept
	// in a catalog; the window is driven by the periods actually present in
	// the company's model, intersected with these caps.
	MaxAnnual    = 5
	MaxQuarterly = 12
)

var (
	ErrUnrecognizedPeriod = errors.New("unrecognized period name")

	annualRe    = regexp.MustCompile(`^FY(\d{2})$`)
	quarterlyRe = regexp.MustCompile(`^Q([1-4])-(\d{2})$`)
)

// Period is a classified fiscal period. Year is the full four-digit year;
// Quarter is 1-4 for quarterly periods and 0 for annual periods. StartDate
// and EndDate are carried through from the vendor when known.
type Period struct {
	Name      string
	Kind      Kind
	Year      int
	Quarter   int
	StartDate time.Time
	EndDate   time.Time
}

// Parse classifies a period name. Classification is total: a name is either
// annual (FY##), quarterly (Q#-##), or an error -- never silently coerced.
func Parse(name string) (Period, error) {
	if m := annualRe.FindStringSubmatch(name); m != nil {
		year, _ := strconv.Atoi(m[1])
		return Period{
			Name: name,
			Kind: Annual,
			Year: 2000 + year,
		}, nil
	}

	if m := quarterlyRe.FindStringSubmatch(name); m != nil {
		quarter, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[2])
		return Period{
			Name:    name,
			Kind:    Quarterly,
			Year:    2000 + year,
			Quarter: quarter,
		}, nil
	}

	return Period{}, fmt.Errorf("%w: %q", ErrUnrecognizedPeriod, name)
}

// sortKey orders periods within a kind; higher sorts first. Quarterly keys
// multiply the year by 10 so Q4 of a year sorts before Q1 of the same year.
func (p Period) sortKey() int {
	if p.Kind == Annual {
		return p.Year
	}

	return p.Year*10 + p.Quarter
}

// Catalog holds the classified periods of a single company model, sorted
// most recent first and truncated to the annual/quarterly windows.
type Catalog struct {
	Annual    []Period
	Quarterly []Period
}

// NewCatalog builds a catalog from the periods present in the source data.
// Duplicate names are collapsed; ordering is descending by (year, quarter).
func NewCatalog(periods []Period) *Catalog {
	catalog := &Catalog{
		Annual:    make([]Period, 0, MaxAnnual),
		Quarterly: make([]Period, 0, MaxQuarterly),
	}

	seen := make(map[string]bool, len(periods))
	annual := make([]Period, 0, len(periods))
	quarterly := make([]Period, 0, len(periods))

	for _, p := range periods {
		if seen[p.Name] {
			continue
		}
		seen[p.Name] = true

		switch p.Kind {
		case Annual:
			annual = append(annual, p)
		case Quarterly:
			quarterly = append(quarterly, p)
		}
	}

	byKeyDesc := func(a, b Period) int {
		return b.sortKey() - a.sortKey()
	}

	slices.SortFunc(annual, byKeyDesc)
	slices.SortFunc(quarterly, byKeyDesc)

	catalog.Annual = append(catalog.Annual, annual[:min(len(annual), MaxAnnual)]...)
	catalog.Quarterly = append(catalog.Quarterly, quarterly[:min(len(quarterly), MaxQuarterly)]...)

	return catalog
}

// Columns returns the assembled column sequence: annual names newest to
// oldest followed by quarterly names newest to oldest.
func (catalog *Catalog) Columns() []string {
	columns := make([]string, 0, len(catalog.Annual)+len(catalog.Quarterly))
	for _, p := range catalog.Annual {
		columns = append(columns, p.Name)
	}
	for _, p := range catalog.Quarterly {
		columns = append(columns, p.Name)
	}

	return columns
}

// Contains reports whether the named period is inside the catalog window.
func (catalog *Catalog) Contains(name string) bool {
	for _, p := range catalog.Annual {
		if p.Name == name {
			return true
		}
	}
	for _, p := range catalog.Quarterly {
		if p.Name == name {
			return true
		}
	}

	return false
}
