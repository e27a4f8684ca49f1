// Package area models the JMA region taxonomy: centers (地方) grouping
// forecast offices (府県予報区). Office codes are the parent codes used when
// syncing forecasts.
package area

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Center is a regional grouping of offices.
type Center struct {
	Code       string   `json:"code"`
	Name       string   `json:"name"`
	EnName     string   `json:"enName"`
	OfficeName string   `json:"officeName"`
	Children   []string `json:"children"`
}

// Office is a forecast office; its code addresses forecast documents.
type Office struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	EnName       string `json:"enName"`
	OfficeName   string `json:"officeName"`
	ParentCenter string `json:"parentCenter"`
}

// Taxonomy maps centers to their offices.
type Taxonomy struct {
	Centers map[string]Center
	Offices map[string]Office
}

// New builds a Taxonomy from flat lists, deriving each center's children
// from the offices' parent codes.
func New(centers []Center, offices []Office) Taxonomy {
	t := Taxonomy{
		Centers: make(map[string]Center, len(centers)),
		Offices: make(map[string]Office, len(offices)),
	}
	for _, c := range centers {
		c.Children = nil
		t.Centers[c.Code] = c
	}

	sorted := append([]Office(nil), offices...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Code < sorted[j].Code })
	for _, o := range sorted {
		t.Offices[o.Code] = o
		if c, ok := t.Centers[o.ParentCenter]; ok {
			c.Children = append(c.Children, o.Code)
			t.Centers[o.ParentCenter] = c
		}
	}
	return t
}

// SortedCenters returns centers ordered by code.
func (t Taxonomy) SortedCenters() []Center {
	out := make([]Center, 0, len(t.Centers))
	for _, c := range t.Centers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// OfficesOf returns the offices of a center in the center's children order.
func (t Taxonomy) OfficesOf(centerCode string) ([]Office, bool) {
	c, ok := t.Centers[centerCode]
	if !ok {
		return nil, false
	}
	out := make([]Office, 0, len(c.Children))
	for _, code := range c.Children {
		if o, ok := t.Offices[code]; ok {
			out = append(out, o)
		}
	}
	return out, true
}

// Office looks up an office by code.
func (t Taxonomy) Office(code string) (Office, bool) {
	o, ok := t.Offices[code]
	return o, ok
}

// areaJSON is the subset of common/const/area.json we use.
type areaJSON struct {
	Centers map[string]struct {
		Name       string   `json:"name"`
		EnName     string   `json:"enName"`
		OfficeName string   `json:"officeName"`
		Children   []string `json:"children"`
	} `json:"centers"`
	Offices map[string]struct {
		Name       string `json:"name"`
		EnName     string `json:"enName"`
		OfficeName string `json:"officeName"`
		Parent     string `json:"parent"`
	} `json:"offices"`
}

// Parse decodes area.json. An office's center is taken from the centers'
// children lists, falling back to the office's own parent field.
func Parse(data []byte) (Taxonomy, error) {
	var raw areaJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return Taxonomy{}, fmt.Errorf("decode area.json: %w", err)
	}
	if len(raw.Centers) == 0 {
		return Taxonomy{}, fmt.Errorf("decode area.json: no centers")
	}

	parentOf := make(map[string]string)
	centers := make([]Center, 0, len(raw.Centers))
	for code, c := range raw.Centers {
		centers = append(centers, Center{Code: code, Name: c.Name, EnName: c.EnName, OfficeName: c.OfficeName})
		for _, child := range c.Children {
			parentOf[child] = code
		}
	}

	offices := make([]Office, 0, len(raw.Offices))
	for code, o := range raw.Offices {
		parent, ok := parentOf[code]
		if !ok {
			parent = o.Parent
		}
		offices = append(offices, Office{Code: code, Name: o.Name, EnName: o.EnName, OfficeName: o.OfficeName, ParentCenter: parent})
	}

	return New(centers, offices), nil
}
