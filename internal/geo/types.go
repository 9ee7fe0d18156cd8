// Package geo defines the core types shared by the harvesting subsystems.
package geo

import (
	"encoding/json"
	"sort"
)

// StudyKey identifies a GEO series, e.g. "GSE123".
type StudyKey string

// SampleKey identifies a GEO sample within a series, e.g. "GSM456".
type SampleKey string

// Source labels of the recognized study rows.
const (
	FieldTitle          = "Title"
	FieldStatus         = "Status"
	FieldOrganism       = "Organism"
	FieldExperimentType = "Experiment type"
	FieldSummary        = "Summary"
	FieldOverallDesign  = "Overall design"
	FieldCitations      = "Citation(s)"
	FieldBioProject     = "BioProject"
	FieldPlatforms      = "Platform(s)"
	FieldNumSamples     = "Number of Samples"
	FieldSamples        = "Samples"
	FieldSampleMetadata = "sample_metadata"
)

// Row is one scraped (attribute-name, attribute-value) pair.
type Row struct {
	Name  string
	Value string
}

// AttributeTable is the ordered sequence of rows scraped from a document.
// Names may repeat, so lookups return the first match.
type AttributeTable []Row

// First returns the value of the first row whose name equals name exactly.
func (t AttributeTable) First(name string) (string, bool) {
	for _, row := range t {
		if row.Name == name {
			return row.Value, true
		}
	}
	return "", false
}

// StudyMetadata holds the recognized fields of a study document. Scalar fields
// are nil when the corresponding row is absent.
type StudyMetadata struct {
	Title          *string
	Status         *string
	Organism       *string
	ExperimentType *string
	Summary        *string
	OverallDesign  *string
	Citations      *string
	BioProject     *string
	Platforms      []string
	Samples        []SampleKey
	// SampleCount is tallied while scanning rows, independently of Samples.
	SampleCount int
}

// Fields returns the metadata keyed by source label. Absent scalars are
// omitted so downstream coercion can tell "missing" from "empty".
func (m StudyMetadata) Fields() map[string]any {
	out := map[string]any{
		FieldPlatforms:  append([]string{}, m.Platforms...),
		FieldNumSamples: m.SampleCount,
		FieldSamples:    append([]SampleKey{}, m.Samples...),
	}
	scalars := map[string]*string{
		FieldTitle:          m.Title,
		FieldStatus:         m.Status,
		FieldOrganism:       m.Organism,
		FieldExperimentType: m.ExperimentType,
		FieldSummary:        m.Summary,
		FieldOverallDesign:  m.OverallDesign,
		FieldCitations:      m.Citations,
		FieldBioProject:     m.BioProject,
	}
	for label, v := range scalars {
		if v != nil {
			out[label] = *v
		}
	}
	return out
}

// SampleAttributes holds the characteristics extracted from a sample document.
type SampleAttributes struct {
	// Characteristics maps characteristic name to value; the first value seen
	// for a name is kept.
	Characteristics map[string]string
	SourceName      *string
	// RawStrings keeps the verbatim cell text of every parsed field.
	RawStrings []string
}

// Set records value under key unless key is already present.
func (s *SampleAttributes) Set(key, value string) bool {
	if s.Characteristics == nil {
		s.Characteristics = make(map[string]string)
	}
	if _, ok := s.Characteristics[key]; ok {
		return false
	}
	s.Characteristics[key] = value
	return true
}

// AggregatedSampleMetadata summarizes the samples of one study.
type AggregatedSampleMetadata struct {
	// Values holds the distinct values per attribute name, sorted.
	Values            map[string][]string
	AllMetadataFields []string
	RawStrings        []string
}

const (
	allMetadataFieldsKey = "all_metadata_fields"
	rawStringsKey        = "raw_strings"
)

// MarshalJSON flattens the aggregate into a single object: one key per
// attribute plus all_metadata_fields and raw_strings.
func (a AggregatedSampleMetadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a.Values)+2)
	for k, v := range a.Values {
		out[k] = nonNil(v)
	}
	out[allMetadataFieldsKey] = nonNil(a.AllMetadataFields)
	out[rawStringsKey] = nonNil(a.RawStrings)
	return json.Marshal(out)
}

// UnmarshalJSON reverses MarshalJSON.
func (a *AggregatedSampleMetadata) UnmarshalJSON(data []byte) error {
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.Values = make(map[string][]string, len(raw))
	for k, v := range raw {
		switch k {
		case allMetadataFieldsKey:
			a.AllMetadataFields = v
		case rawStringsKey:
			a.RawStrings = v
		default:
			a.Values[k] = v
		}
	}
	return nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

// AssembledStudy is the pre-coercion result of assembling one study.
type AssembledStudy struct {
	Key            StudyKey
	Metadata       StudyMetadata
	SampleMetadata AggregatedSampleMetadata
}

// Fields returns the study fields plus the aggregated sample metadata.
func (s AssembledStudy) Fields() map[string]any {
	out := s.Metadata.Fields()
	out[FieldSampleMetadata] = s.SampleMetadata
	return out
}

// StudyRecord is the persisted unit, one row per study.
type StudyRecord struct {
	ID             int64
	StudyID        StudyKey
	Status         *string
	Title          *string
	Organism       *string
	ExperimentType *string
	Summary        *string
	OverallDesign  *string
	Citations      *string
	BioProject     *string
	Platforms      *string
	NumSamples     *int64
	SampleIDs      *string
	SampleMetadata *string
	// AIAnnotation is reserved for a downstream annotator and is never set here.
	AIAnnotation *string
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StringPtr returns a pointer to a copy of s.
func StringPtr(s string) *string {
	return &s
}
