package data

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/yola1107/puppeteer/internal/biz/registry"
)

type assignmentFile struct {
	Version     int               `yaml:"version"`
	Assignments []registry.Record `yaml:"assignments"`
}

const assignmentVersion = 1

type assignmentRepo struct {
	data *Data
}

// NewAssignmentRepo stores registry records as YAML in the blob store.
func NewAssignmentRepo(data *Data) registry.Repo {
	return &assignmentRepo{data: data}
}

func (r *assignmentRepo) Load(ctx context.Context) ([]registry.Record, error) {
	b, err := r.data.store.Load(ctx)
	if errors.Is(err, ErrBlobNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}
	var f assignmentFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode assignments: %w", err)
	}
	if f.Version > assignmentVersion {
		return nil, fmt.Errorf("decode assignments: version %d is newer than %d", f.Version, assignmentVersion)
	}
	return f.Assignments, nil
}

func (r *assignmentRepo) Save(ctx context.Context, records []registry.Record) error {
	b, err := yaml.Marshal(assignmentFile{Version: assignmentVersion, Assignments: records})
	if err != nil {
		return fmt.Errorf("encode assignments: %w", err)
	}
	if err := r.data.store.Save(ctx, b); err != nil {
		return fmt.Errorf("save assignments: %w", err)
	}
	return nil
}
