package main

import (
	"errors"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charlie42/facets-validity/pipeline"
)

type RunConfig struct {
	FacetsPath         string
	ChecklistPath      string
	DiagnosisPath      string
	TranslationsPath   string
	FacetsIDMapPath    string
	ChecklistIDMapPath string
	OutDir             string

	Pretty    bool
	Overwrite bool
}

func defaultRunConfig() RunConfig {
	return RunConfig{
		FacetsPath:       filepath.FromSlash("data/facets.json"),
		ChecklistPath:    filepath.FromSlash("data/sdq.csv"),
		TranslationsPath: "facets_item_translation.csv",
		FacetsIDMapPath:  filepath.FromSlash("data/id_mapping_facets.csv"),
		OutDir:           "data",
	}
}

func (c RunConfig) Validate() error {
	if c.FacetsPath == "" {
		return errors.New("missing --facets")
	}
	if c.ChecklistPath == "" {
		return errors.New("missing --checklist")
	}
	if c.TranslationsPath == "" {
		return errors.New("missing --translations")
	}
	if c.FacetsIDMapPath == "" {
		return errors.New("missing --facets-id-map")
	}
	if c.OutDir == "" {
		return errors.New("missing --out")
	}
	return nil
}

type VerifyConfig struct {
	DataDir        string
	ParticipantKey string
	RaterKey       string
	JSON           bool
}

func defaultVerifyConfig() VerifyConfig {
	return VerifyConfig{
		DataDir:        "data",
		ParticipantKey: pipeline.ColStudyID,
		RaterKey:       pipeline.ColPairID,
	}
}

func (c VerifyConfig) Validate() error {
	if c.DataDir == "" {
		return errors.New("missing --data")
	}
	return validateKeys(c.ParticipantKey, c.RaterKey)
}

type ReportConfig struct {
	DataDir        string
	OutDir         string
	ParticipantKey string
	RaterKey       string
	Raters         []string
}

func defaultReportConfig() ReportConfig {
	return ReportConfig{
		DataDir:        "data",
		OutDir:         "output",
		ParticipantKey: pipeline.ColStudyID,
		RaterKey:       pipeline.ColPairID,
	}
}

func (c ReportConfig) Validate() error {
	if c.DataDir == "" {
		return errors.New("missing --data")
	}
	if c.OutDir == "" {
		return errors.New("missing --out")
	}
	if len(c.Raters) != 0 && len(c.Raters) != 2 {
		return errors.New("--raters takes exactly two rater ids")
	}
	return validateKeys(c.ParticipantKey, c.RaterKey)
}

func validateKeys(participant, rater string) error {
	for _, k := range []string{participant, rater} {
		if !slices.Contains(pipeline.FacetKeys, k) {
			return errors.New("unknown key column " + k + " (want one of " + strings.Join(pipeline.FacetKeys, ", ") + ")")
		}
	}
	if participant == rater {
		return errors.New("participant and rater keys must differ")
	}
	return nil
}

type InspectConfig struct {
	FacetsPath string
	Limit      int
}

func defaultInspectConfig() InspectConfig {
	return InspectConfig{FacetsPath: filepath.FromSlash("data/facets.json"), Limit: 1}
}

func (c InspectConfig) Validate() error {
	if c.FacetsPath == "" {
		return errors.New("missing --facets")
	}
	if c.Limit < 0 {
		return errors.New("limit must be >= 0")
	}
	return nil
}
