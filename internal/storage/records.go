// Package storage holds the study table layout shared by the SQL backends.
package storage

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/JakeFAU/geo-harvester/internal/geo"
)

// DefaultTable is the study table name.
const DefaultTable = "geo_studies"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Columns lists the writable columns in insert order. The surrogate id is
// assigned by the database.
var Columns = []string{
	"study_id",
	"status",
	"title",
	"organism",
	"experiment_type",
	"summary",
	"overall_design",
	"citations",
	"bioproject",
	"platforms",
	"num_samples",
	"sample_ids",
	"sample_metadata",
	"ai_annotation",
}

// ValidateTable checks that name is a plain SQL identifier and returns the
// default table when name is empty.
func ValidateTable(name string) (string, error) {
	if name == "" {
		return DefaultTable, nil
	}
	if !validTableName.MatchString(name) {
		return "", fmt.Errorf("invalid table name %q", name)
	}
	return name, nil
}

// ColumnList returns the writable columns joined for a SELECT or INSERT.
func ColumnList() string {
	return strings.Join(Columns, ", ")
}

// InsertArgs returns the record values in Columns order.
func InsertArgs(r geo.StudyRecord) []any {
	return []any{
		string(r.StudyID),
		r.Status,
		r.Title,
		r.Organism,
		r.ExperimentType,
		r.Summary,
		r.OverallDesign,
		r.Citations,
		r.BioProject,
		r.Platforms,
		r.NumSamples,
		r.SampleIDs,
		r.SampleMetadata,
		r.AIAnnotation,
	}
}

// ScanDest returns pointers into r matching "id" followed by Columns.
func ScanDest(r *geo.StudyRecord, studyID *string) []any {
	return []any{
		&r.ID,
		studyID,
		&r.Status,
		&r.Title,
		&r.Organism,
		&r.ExperimentType,
		&r.Summary,
		&r.OverallDesign,
		&r.Citations,
		&r.BioProject,
		&r.Platforms,
		&r.NumSamples,
		&r.SampleIDs,
		&r.SampleMetadata,
		&r.AIAnnotation,
	}
}
