package extract

import (
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/geo-harvester/internal/geo"
)

const (
	platformMarker = "GPL"
	sampleMarker   = "GSM"

	rowCharacteristics = "Characteristics"
	rowDescription     = "Description"
	rowSourceName      = "Source name"
)

// sampleFields lists the sample rows that carry characteristics, in merge
// order. Earlier fields win on key collisions.
var sampleFields = []string{rowCharacteristics, rowDescription}

// Extractor parses study and sample documents. It never fails: malformed or
// missing content yields nil and empty values.
type Extractor struct {
	parsers Chain
	logger  *zap.Logger
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithParsers replaces the characteristics parser chain.
func WithParsers(chain Chain) Option {
	return func(e *Extractor) { e.parsers = chain }
}

// New constructs an Extractor.
func New(logger *zap.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Extractor{parsers: DefaultChain(), logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StudyFields extracts the recognized study rows from a series page.
func (e *Extractor) StudyFields(body []byte) geo.StudyMetadata {
	doc, err := parseDocument(body)
	if err != nil {
		e.logger.Warn("study document unparsable", zap.Error(err))
	}

	var meta geo.StudyMetadata
	for _, row := range ParseTable(doc) {
		if slot := scalarSlot(&meta, row.Name); slot != nil {
			*slot = geo.StringPtr(row.Value)
			continue
		}
		switch {
		case strings.Contains(row.Name, platformMarker):
			meta.Platforms = append(meta.Platforms, row.Name)
		case strings.Contains(row.Name, sampleMarker):
			meta.Samples = append(meta.Samples, geo.SampleKey(row.Name))
			meta.SampleCount++
		}
	}
	return meta
}

// SampleFields extracts characteristics, the source name, and the raw
// characteristics text from a sample page.
func (e *Extractor) SampleFields(body []byte) geo.SampleAttributes {
	doc, err := parseDocument(body)
	if err != nil {
		e.logger.Warn("sample document unparsable", zap.Error(err))
	}
	cells := rows(doc)

	attrs := geo.SampleAttributes{Characteristics: map[string]string{}}
	for _, field := range sampleFields {
		c, ok := firstCell(cells, field)
		if !ok {
			continue
		}
		raw := c.value.Text()
		attrs.RawStrings = append(attrs.RawStrings, raw)

		parsed, parser := e.parsers.Parse(strippedStrings(c.value), raw)
		if parser == "" {
			e.logger.Debug("characteristics unparsable",
				zap.String("field", field),
				zap.Error(geo.ErrParse),
			)
		}
		for _, key := range geo.SortedKeys(parsed) {
			attrs.Set(key, parsed[key])
		}
	}

	if name, ok := attributes(cells).First(rowSourceName); ok {
		attrs.SourceName = geo.StringPtr(name)
	}
	return attrs
}

func firstCell(cells []cell, name string) (cell, bool) {
	for _, c := range cells {
		if c.name == name {
			return c, true
		}
	}
	return cell{}, false
}

// scalarSlot returns the field of m for an exactly matching label, or nil
// when the label is not one of the recognized scalars.
func scalarSlot(m *geo.StudyMetadata, label string) **string {
	switch label {
	case geo.FieldTitle:
		return &m.Title
	case geo.FieldStatus:
		return &m.Status
	case geo.FieldOrganism:
		return &m.Organism
	case geo.FieldExperimentType:
		return &m.ExperimentType
	case geo.FieldSummary:
		return &m.Summary
	case geo.FieldOverallDesign:
		return &m.OverallDesign
	case geo.FieldCitations:
		return &m.Citations
	case geo.FieldBioProject:
		return &m.BioProject
	default:
		return nil
	}
}
