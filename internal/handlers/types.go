package handlers

import (
	"context"
	"runonsave/internal/saverun"
	"runonsave/internal/workspace"
)

// SaveService runs commands for saved documents
type SaveService interface {
	HandleSave(ctx context.Context, doc workspace.Document)
	Snapshot() []saverun.RunInfo
}

// SettingsService reads and writes the enabled flag
type SettingsService interface {
	Enabled(ctx context.Context) bool
	SetEnabled(ctx context.Context, v bool) error
}

// DocumentResolver maps a saved path to a document
type DocumentResolver interface {
	Document(path string) (workspace.Document, error)
}

// StatusSource lists the active status-bar messages
type StatusSource interface {
	Messages() []string
}

type SaveRequest struct {
	Path string `json:"path" binding:"required"`
}

type SaveResponse struct {
	Key string `json:"key"`
}

type SettingsResponse struct {
	Enabled bool `json:"enabled"`
}

type StatusResponse struct {
	Enabled  bool              `json:"enabled"`
	Messages []string          `json:"messages"`
	Runs     []saverun.RunInfo `json:"runs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
