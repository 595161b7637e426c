package feature

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// File names searched for a project's feature list, in order.
const (
	ListFileJSON = "feature_list.json"
	ListFileYAML = "feature_list.yaml"
)

// ErrNoListFile indicates the project has no feature list file.
var ErrNoListFile = errors.New("no feature list file")

// ListItem is one entry of a feature_list.json file.
type ListItem struct {
	Description        string    `json:"description" yaml:"description"`
	Category           string    `json:"category,omitempty" yaml:"category,omitempty"`
	Passes             bool      `json:"passes" yaml:"passes"`
	InProgress         bool      `json:"inProgress" yaml:"inProgress"`
	Steps              []string  `json:"steps,omitempty" yaml:"steps,omitempty"`
	WorkCount          int       `json:"workCount,omitempty" yaml:"workCount,omitempty"`
	CompletionCriteria *Criteria `json:"completionCriteria,omitempty" yaml:"completionCriteria,omitempty"`
	IsSessionWork      bool      `json:"isSessionWork,omitempty" yaml:"isSessionWork,omitempty"`
}

// Format is a feature list encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the encoding from a file extension.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// ParseList decodes a feature list.
func ParseList(data []byte, format Format) ([]ListItem, error) {
	var items []ListItem
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &items)
	default:
		err = json.Unmarshal(data, &items)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s feature list: %w", format, err)
	}
	return items, nil
}

// EncodeList encodes a feature list.
func EncodeList(items []ListItem, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(items)
	default:
		return json.MarshalIndent(items, "", "  ")
	}
}

// FromList converts list items into features for projectDir. Only the first
// in-progress item stays in progress; later ones are demoted to pending so a
// project never has two active features.
func FromList(projectDir string, items []ListItem, now time.Time) []*Feature {
	features := make([]*Feature, 0, len(items))
	sawActive := false
	for i, item := range items {
		f := &Feature{
			ID:            IDFor(projectDir, i),
			ProjectDir:    projectDir,
			Position:      i,
			Description:   item.Description,
			Category:      item.Category,
			WorkCount:     item.WorkCount,
			Steps:         item.Steps,
			IsSessionWork: item.IsSessionWork,
			Status:        StatusPending,
		}
		if item.CompletionCriteria != nil {
			f.Criteria = *item.CompletionCriteria
		}
		switch {
		case item.Passes:
			f.Status = StatusComplete
			t := now
			f.CompletedAt = &t
		case item.InProgress && !sawActive:
			f.Status = StatusInProgress
			sawActive = true
		}
		if f.WorkCount < 0 {
			f.WorkCount = 0
		}
		f.ApplyDefaults(now)
		features = append(features, f)
	}
	return features
}

// Merge reconciles a re-imported list with the project's stored features,
// matching by ID. A matched feature keeps its stored progress (status, work
// count, timestamps, version) and takes its description, category, criteria,
// steps and position from the list. Unmatched items are added as imported and
// stored features absent from the list are dropped. A new in-progress item is
// demoted to pending when a kept feature is already in progress.
func Merge(stored, imported []*Feature) []*Feature {
	byID := make(map[string]*Feature, len(stored))
	for _, f := range stored {
		byID[f.ID] = f
	}
	active := false
	for _, f := range imported {
		if s, ok := byID[f.ID]; ok && s.Status == StatusInProgress {
			active = true
		}
	}

	out := make([]*Feature, 0, len(imported))
	for _, item := range imported {
		f := item.Clone()
		if s, ok := byID[f.ID]; ok {
			f.Status = s.Status
			f.WorkCount = max(s.WorkCount, f.WorkCount)
			f.CreatedAt = s.CreatedAt
			f.UpdatedAt = s.UpdatedAt
			f.CompletedAt = s.Clone().CompletedAt
			f.Version = s.Version
		} else if f.Status == StatusInProgress {
			if active {
				f.Status = StatusPending
			}
			active = true
		}
		out = append(out, f)
	}
	return out
}

// ToList converts features back into list items.
func ToList(features []*Feature) []ListItem {
	items := make([]ListItem, 0, len(features))
	for _, f := range features {
		c := f.Criteria
		items = append(items, ListItem{
			Description:        f.Description,
			Category:           f.Category,
			Passes:             f.Status == StatusComplete,
			InProgress:         f.Status == StatusInProgress,
			Steps:              f.Steps,
			WorkCount:          f.WorkCount,
			CompletionCriteria: &c,
			IsSessionWork:      f.IsSessionWork,
		})
	}
	return items
}

// FindListFile returns the path of the project's feature list file.
func FindListFile(projectDir string) (string, error) {
	for _, name := range []string{ListFileJSON, ListFileYAML} {
		path := filepath.Join(projectDir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrNoListFile, projectDir)
}

// LoadListFile reads and converts the project's feature list file.
func LoadListFile(projectDir string, now time.Time) ([]*Feature, error) {
	path, err := FindListFile(projectDir)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	items, err := ParseList(data, FormatForPath(path))
	if err != nil {
		return nil, err
	}
	return FromList(projectDir, items, now), nil
}
