package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/geo-harvester/internal/geo"
	"github.com/JakeFAU/geo-harvester/internal/metrics"
)

var errMissing = errors.New("field missing")

// Coerce maps assembled fields onto the storage schema. Each field is
// converted on its own; a failure nulls only that field.
func (c *Coordinator) Coerce(key geo.StudyKey, fields map[string]any) geo.StudyRecord {
	rec := geo.StudyRecord{StudyID: key}

	text := func(label string) *string {
		v, err := toText(fields, label)
		if err != nil {
			c.nulled(key, label, err)
			return nil
		}
		return v
	}

	rec.Status = text(geo.FieldStatus)
	rec.Title = text(geo.FieldTitle)
	rec.Organism = text(geo.FieldOrganism)
	rec.ExperimentType = text(geo.FieldExperimentType)
	rec.Summary = text(geo.FieldSummary)
	rec.OverallDesign = text(geo.FieldOverallDesign)
	rec.Citations = text(geo.FieldCitations)
	rec.BioProject = text(geo.FieldBioProject)
	rec.Platforms = text(geo.FieldPlatforms)
	rec.SampleIDs = text(geo.FieldSamples)
	rec.SampleMetadata = text(geo.FieldSampleMetadata)

	n, err := toInt(fields, geo.FieldNumSamples)
	if err != nil {
		c.nulled(key, geo.FieldNumSamples, err)
	} else {
		rec.NumSamples = n
	}
	return rec
}

func (c *Coordinator) nulled(key geo.StudyKey, label string, err error) {
	cerr := &geo.CoercionError{Field: label, Err: err}
	metrics.ObserveFieldNulled(label)
	c.logger.Debug("field stored as null",
		zap.String("study_id", string(key)),
		zap.Error(cerr),
	)
}

// toText renders scalars as-is and lists or maps as JSON.
func toText(fields map[string]any, label string) (*string, error) {
	raw, ok := fields[label]
	if !ok || raw == nil {
		return nil, errMissing
	}
	switch v := raw.(type) {
	case string:
		return &v, nil
	case *string:
		if v == nil {
			return nil, errMissing
		}
		s := *v
		return &s, nil
	case fmt.Stringer:
		s := v.String()
		return &s, nil
	case []string, []geo.SampleKey, map[string][]string, geo.AggregatedSampleMetadata:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		s := string(b)
		return &s, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", raw)
	}
}

// toInt accepts integer kinds and base-10 numeric strings.
func toInt(fields map[string]any, label string) (*int64, error) {
	raw, ok := fields[label]
	if !ok || raw == nil {
		return nil, errMissing
	}
	var n int64
	switch v := raw.(type) {
	case int:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, err
		}
		n = parsed
	default:
		return nil, fmt.Errorf("unsupported type %T", raw)
	}
	return &n, nil
}
