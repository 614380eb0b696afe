package connector

import (
	"fmt"

	"packrat/internal/model"
)

// GDrive is the cloud destination variant. It exposes the full connector
// contract but is not implemented: Initialize always fails, so a job pointing
// at it can never become active.
type GDrive struct{}

func NewGDrive() *GDrive {
	return &GDrive{}
}

func (g *GDrive) Initialize(map[string]string) error {
	return fmt.Errorf("google drive target is not implemented")
}

func (g *GDrive) Copy(string, string, model.ConflictPolicy) (Result, error) {
	return Result{}, fmt.Errorf("google drive target is not implemented")
}

func (g *GDrive) Exists(string) bool {
	return false
}

func (g *GDrive) CreateDirectory(string) error {
	return fmt.Errorf("google drive target is not implemented")
}

func (g *GDrive) Cleanup() {}
