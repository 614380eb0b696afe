package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

type TargetType string

const (
	TargetLocal  TargetType = "local"
	TargetGDrive TargetType = "gdrive"
)

type ConflictPolicy string

const (
	PolicyRename    ConflictPolicy = "rename"
	PolicyOverwrite ConflictPolicy = "overwrite"
	PolicySkip      ConflictPolicy = "skip"
)

// Job is a durable backup configuration. The engine never mutates a Job
// except to clear its Active flag; everything else belongs to the authoring
// side.
type Job struct {
	gorm.Model
	Name            string         `gorm:"not null"`
	Sources         string         `gorm:"not null"` // JSON array of paths
	IncludePatterns string         // ';'-joined globs
	ExcludePatterns string         // ';'-joined globs
	TargetType      TargetType     `gorm:"not null;default:'local'"`
	TargetConfig    string         // JSON, opaque to the engine
	ConflictPolicy  ConflictPolicy `gorm:"not null;default:'rename'"`
	ScheduleCron    string
	Active          bool `gorm:"not null;default:true"`

	Executions []Execution `gorm:"constraint:OnDelete:CASCADE"`
}

func (j *Job) SourceList() ([]string, error) {
	var sources []string
	if err := json.Unmarshal([]byte(j.Sources), &sources); err != nil {
		return nil, fmt.Errorf("invalid sources for job %d: %w", j.ID, err)
	}
	return sources, nil
}

func (j *Job) SetSources(sources []string) error {
	data, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("failed to encode sources: %w", err)
	}
	j.Sources = string(data)
	return nil
}

func (j *Job) TargetConfigMap() (map[string]string, error) {
	cfg := make(map[string]string)
	if j.TargetConfig == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(j.TargetConfig), &cfg); err != nil {
		return nil, fmt.Errorf("invalid target config for job %d: %w", j.ID, err)
	}
	return cfg, nil
}

// SplitPatterns turns the stored ';'-joined pattern string into a clean list.
func SplitPatterns(raw string) []string {
	if raw == "" {
		return nil
	}

	var patterns []string
	for _, p := range strings.Split(raw, ";") {
		p = strings.TrimSpace(p)
		if p != "" {
			patterns = append(patterns, p)
		}
	}
	return patterns
}
