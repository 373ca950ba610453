// Package report turns consolidated criterion judgments into an OpenACR document.
package report

import (
	"sort"
	"time"

	"ACRScanner/internal/config"
	"ACRScanner/internal/domain"
)

// Level is a WCAG conformance tier.
type Level string

const (
	LevelA   Level = "A"
	LevelAA  Level = "AA"
	LevelAAA Level = "AAA"
)

// Chapter keys, one per level.
const (
	ChapterA   = "success_criteria_level_a"
	ChapterAA  = "success_criteria_level_aa"
	ChapterAAA = "success_criteria_level_aaa"
)

// Component names in emission order; only the first carries the assessment.
var componentNames = []string{"web", "documentation", "software", "authoring-tool"}

// wcagLevels lists every WCAG 2.2 success criterion with its level.
var wcagLevels = map[string]Level{
	"1.1.1": LevelA,
	"1.2.1": LevelA, "1.2.2": LevelA, "1.2.3": LevelA, "1.2.4": LevelAA, "1.2.5": LevelAA,
	"1.2.6": LevelAAA, "1.2.7": LevelAAA, "1.2.8": LevelAAA, "1.2.9": LevelAAA,
	"1.3.1": LevelA, "1.3.2": LevelA, "1.3.3": LevelA, "1.3.4": LevelAA, "1.3.5": LevelAA, "1.3.6": LevelAAA,
	"1.4.1": LevelA, "1.4.2": LevelA, "1.4.3": LevelAA, "1.4.4": LevelAA, "1.4.5": LevelAA,
	"1.4.6": LevelAAA, "1.4.7": LevelAAA, "1.4.8": LevelAAA, "1.4.9": LevelAAA,
	"1.4.10": LevelAA, "1.4.11": LevelAA, "1.4.12": LevelAA, "1.4.13": LevelAA,

	"2.1.1": LevelA, "2.1.2": LevelA, "2.1.3": LevelAAA, "2.1.4": LevelA,
	"2.2.1": LevelA, "2.2.2": LevelA, "2.2.3": LevelAAA, "2.2.4": LevelAAA, "2.2.5": LevelAAA, "2.2.6": LevelAAA,
	"2.3.1": LevelA, "2.3.2": LevelAAA, "2.3.3": LevelAAA,
	"2.4.1": LevelA, "2.4.2": LevelA, "2.4.3": LevelA, "2.4.4": LevelA, "2.4.5": LevelAA,
	"2.4.6": LevelAA, "2.4.7": LevelAA, "2.4.8": LevelAAA, "2.4.9": LevelAAA, "2.4.10": LevelAAA,
	"2.4.11": LevelAA, "2.4.12": LevelAAA, "2.4.13": LevelAAA,
	"2.5.1": LevelA, "2.5.2": LevelA, "2.5.3": LevelA, "2.5.4": LevelA, "2.5.5": LevelAAA,
	"2.5.6": LevelAAA, "2.5.7": LevelAA, "2.5.8": LevelAA,

	"3.1.1": LevelA, "3.1.2": LevelAA, "3.1.3": LevelAAA, "3.1.4": LevelAAA, "3.1.5": LevelAAA, "3.1.6": LevelAAA,
	"3.2.1": LevelA, "3.2.2": LevelA, "3.2.3": LevelAA, "3.2.4": LevelAA, "3.2.5": LevelAAA, "3.2.6": LevelA,
	"3.3.1": LevelA, "3.3.2": LevelA, "3.3.3": LevelAA, "3.3.4": LevelAA, "3.3.5": LevelAAA,
	"3.3.6": LevelAAA, "3.3.7": LevelA, "3.3.8": LevelAA, "3.3.9": LevelAAA,

	"4.1.1": LevelA, "4.1.2": LevelA, "4.1.3": LevelAA,
}

// LevelOf returns the WCAG level of a criterion; anything unrecognized is AA.
func LevelOf(criterion string) Level {
	if level, ok := wcagLevels[criterion]; ok {
		return level
	}
	return LevelAA
}

func chapterOf(level Level) string {
	switch level {
	case LevelA:
		return ChapterA
	case LevelAAA:
		return ChapterAAA
	default:
		return ChapterAA
	}
}

// Document is the OpenACR report tree.
type Document struct {
	Title            string             `yaml:"title" json:"title"`
	Product          Product            `yaml:"product" json:"product"`
	Author           Contact            `yaml:"author" json:"author"`
	Vendor           Contact            `yaml:"vendor" json:"vendor"`
	ReportDate       string             `yaml:"report_date" json:"report_date"`
	LastModifiedDate string             `yaml:"last_modified_date" json:"last_modified_date"`
	Catalog          string             `yaml:"catalog" json:"catalog"`
	Chapters         map[string]Chapter `yaml:"chapters" json:"chapters"`
}

// Product describes the evaluated product.
type Product struct {
	Name        string `yaml:"name" json:"name"`
	Version     string `yaml:"version,omitempty" json:"version,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Contact is an author or vendor block.
type Contact struct {
	Name    string `yaml:"name" json:"name"`
	Company string `yaml:"company_name,omitempty" json:"company_name,omitempty"`
	Email   string `yaml:"email,omitempty" json:"email,omitempty"`
	Website string `yaml:"website,omitempty" json:"website,omitempty"`
}

// Chapter holds the criteria of one level.
type Chapter struct {
	Criteria []Criterion `yaml:"criteria" json:"criteria"`
}

// Criterion is one success criterion entry.
type Criterion struct {
	Num        string      `yaml:"num" json:"num"`
	Components []Component `yaml:"components" json:"components"`
}

// Component carries the adherence for one product surface.
type Component struct {
	Name      string    `yaml:"name" json:"name"`
	Adherence Adherence `yaml:"adherence" json:"adherence"`
}

// Adherence is the conformance level plus notes; empty on secondary components.
type Adherence struct {
	Level string `yaml:"level" json:"level"`
	Notes string `yaml:"notes" json:"notes"`
}

// Emit builds a document from judgments. Every judgment lands in the chapter
// of its criterion's level; criteria are ordered by number within a chapter.
func Emit(cfg config.ReportConfig, judgments []domain.Judgment, now time.Time) Document {
	date := now.Format("2006-01-02")
	doc := Document{
		Title: cfg.Title,
		Product: Product{
			Name:        cfg.Product.Name,
			Version:     cfg.Product.Version,
			Description: cfg.Product.Description,
		},
		Author:           contactFrom(cfg.Author),
		Vendor:           contactFrom(cfg.Vendor),
		ReportDate:       date,
		LastModifiedDate: date,
		Catalog:          cfg.Catalog,
		Chapters: map[string]Chapter{
			ChapterA:   {Criteria: []Criterion{}},
			ChapterAA:  {Criteria: []Criterion{}},
			ChapterAAA: {Criteria: []Criterion{}},
		},
	}

	sorted := make([]domain.Judgment, len(judgments))
	copy(sorted, judgments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return domain.CriterionLess(sorted[i].CriterionID, sorted[j].CriterionID)
	})

	for _, j := range sorted {
		key := chapterOf(LevelOf(j.CriterionID))
		chapter := doc.Chapters[key]
		chapter.Criteria = append(chapter.Criteria, criterionFrom(j))
		doc.Chapters[key] = chapter
	}
	return doc
}

func criterionFrom(j domain.Judgment) Criterion {
	components := make([]Component, 0, len(componentNames))
	for i, name := range componentNames {
		c := Component{Name: name}
		if i == 0 {
			c.Adherence = Adherence{Level: string(j.Level), Notes: j.Remarks}
		}
		components = append(components, c)
	}
	return Criterion{Num: j.CriterionID, Components: components}
}

func contactFrom(c config.ContactInfo) Contact {
	return Contact{Name: c.Name, Company: c.Company, Email: c.Email, Website: c.Website}
}
