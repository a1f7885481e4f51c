// Package catalog defines the admissions reference data: programs, curriculum,
// groups and enrollment results. Values are immutable once fetched and are
// replaced wholesale when the catalog is refreshed.
package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
)

// Level distinguishes undergraduate from graduate offerings.
type Level int

const (
	Undergraduate Level = iota
	Graduate
)

// String returns the backend label for the level.
func (l Level) String() string {
	if l == Graduate {
		return "postgrado"
	}
	return "grado"
}

// Label is the display label used in replies.
func (l Level) Label() string {
	if l == Graduate {
		return "POSTGRADO"
	}
	return "GRADO"
}

// Pricing holds the fees of a program. CreditTransfer is nil when the
// program has no homologation fee.
type Pricing struct {
	Enrollment     float64  `json:"enrollment"`
	Tuition        float64  `json:"tuition"`
	Installments   int      `json:"installments"`
	CreditTransfer *float64 `json:"credit_transfer,omitempty"`
}

// Program is an academic offering.
type Program struct {
	ID         int      `json:"id"`
	Name       string   `json:"name"`
	Sessions   []string `json:"sessions,omitempty"`
	Modalities []string `json:"modalities,omitempty"`
	Pricing    *Pricing `json:"pricing,omitempty"`
}

// Catalog is the complete set of programs.
type Catalog struct {
	Undergraduate []Program `json:"undergraduate"`
	Graduate      []Program `json:"graduate"`
}

// Len returns the number of programs across both levels.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Undergraduate) + len(c.Graduate)
}

// Names returns the id to display-name mapping used for entity resolution.
func (c *Catalog) Names() map[int]string {
	names := make(map[int]string, c.Len())
	if c == nil {
		return names
	}
	for _, p := range c.Undergraduate {
		names[p.ID] = p.Name
	}
	for _, p := range c.Graduate {
		names[p.ID] = p.Name
	}
	return names
}

// Find looks a program up by id.
func (c *Catalog) Find(id int) (Program, Level, bool) {
	if c == nil {
		return Program{}, Undergraduate, false
	}
	for _, p := range c.Undergraduate {
		if p.ID == id {
			return p, Undergraduate, true
		}
	}
	for _, p := range c.Graduate {
		if p.ID == id {
			return p, Graduate, true
		}
	}
	return Program{}, Undergraduate, false
}

// Validate checks that ids are positive and unique across both levels.
func (c *Catalog) Validate() error {
	if c == nil {
		return fmt.Errorf("catalog is nil")
	}
	seen := make(map[int]string, c.Len())
	check := func(p Program) error {
		if p.ID <= 0 {
			return fmt.Errorf("program %q has invalid id %d", p.Name, p.ID)
		}
		if prev, dup := seen[p.ID]; dup {
			return fmt.Errorf("duplicate program id %d (%q and %q)", p.ID, prev, p.Name)
		}
		seen[p.ID] = p.Name
		return nil
	}
	for _, p := range c.Undergraduate {
		if err := check(p); err != nil {
			return err
		}
	}
	for _, p := range c.Graduate {
		if err := check(p); err != nil {
			return err
		}
	}
	return nil
}

// SortedIDs returns all program ids in ascending order.
func (c *Catalog) SortedIDs() []int {
	ids := make([]int, 0, c.Len())
	for id := range c.Names() {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Fingerprint is a stable content hash used to skip redundant snapshot writes.
func (c *Catalog) Fingerprint() string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// Course is one subject of a curriculum level.
type Course struct {
	Name    string  `json:"name"`
	Hours   float64 `json:"hours"`
	Credits *int    `json:"credits,omitempty"`
}

// CurriculumLevel is one ordered level (semester) of a curriculum.
type CurriculumLevel struct {
	Label   string   `json:"label"`
	Courses []Course `json:"courses"`
}

// CurriculumTotals summarizes a curriculum.
type CurriculumTotals struct {
	Levels  int
	Courses int
	Credits int
}

// Totals counts levels, courses and declared credits.
func Totals(levels []CurriculumLevel) CurriculumTotals {
	t := CurriculumTotals{Levels: len(levels)}
	for _, lvl := range levels {
		t.Courses += len(lvl.Courses)
		for _, c := range lvl.Courses {
			if c.Credits != nil {
				t.Credits += *c.Credits
			}
		}
	}
	return t
}

// Group is a scheduled cohort of a program.
type Group struct {
	Program   string `json:"program"`
	Section   string `json:"section"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Capacity  int    `json:"capacity"`
	Session   string `json:"session"`
	Modality  string `json:"modality"`
	Level     string `json:"level"`
}

// EnrollmentResult is the backend answer to an enrollment submission.
type EnrollmentResult struct {
	Status string `json:"status"`
}

// OK reports whether the backend accepted the enrollment.
func (r *EnrollmentResult) OK() bool {
	return r != nil && r.Status == "success"
}
