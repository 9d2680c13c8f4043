// Package workspace manages isolated multi-step task directories: an
// input/steps/output tree per workspace, with an authoritative state.json
// that mirrors types.Workspace exactly. Source files are copied into
// input/, never moved or rewritten in place, so the caller's original files
// are untouched regardless of how many steps a workspace runs. Grounded on
// beads' internal/daemonrunner (JSON metadata file + atomic write idiom) and
// internal/slackbot.StateManager's temp-file-then-rename persistence.
package workspace

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/0xcha05/prime/internal/types"
)

// Manager creates and mutates workspace directory trees under root.
type Manager struct {
	root string
}

// New returns a Manager rooted at dir, creating it if necessary.
func New(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("workspace: create root %s: %w", dir, err)
	}
	return &Manager{root: dir}, nil
}

func (m *Manager) dir(id string) string       { return filepath.Join(m.root, id) }
func (m *Manager) inputDir(id string) string  { return filepath.Join(m.dir(id), types.WorkspaceInputDir) }
func (m *Manager) stepsDir(id string) string  { return filepath.Join(m.dir(id), types.WorkspaceStepsDir) }
func (m *Manager) outputDir(id string) string { return filepath.Join(m.dir(id), types.WorkspaceOutputDir) }
func (m *Manager) statePath(id string) string { return filepath.Join(m.dir(id), types.WorkspaceStateFile) }

// Create allocates a new workspace ID, builds its directory tree, copies
// sourceFiles into input/ byte-for-byte, and writes the initial state.json.
func (m *Manager) Create(sourceFiles []string) (*types.Workspace, error) {
	id := uuid.NewString()
	for _, dir := range []string{m.inputDir(id), m.stepsDir(id), m.outputDir(id)} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("workspace: create %s: %w", dir, err)
		}
	}

	copied := make([]string, 0, len(sourceFiles))
	for _, src := range sourceFiles {
		dstName := filepath.Base(src)
		dst := filepath.Join(m.inputDir(id), dstName)
		if err := copyFile(src, dst); err != nil {
			return nil, fmt.Errorf("workspace: copy source file %s: %w", src, err)
		}
		copied = append(copied, dstName)
	}

	ws := &types.Workspace{
		ID:          id,
		Root:        m.dir(id),
		CreatedAt:   time.Now(),
		SourceFiles: copied,
	}
	if err := m.writeState(ws); err != nil {
		return nil, err
	}
	return ws, nil
}

// AddSource copies src into the workspace's input/ directory and appends
// its base name to SourceFiles, for sources discovered after Create.
func (m *Manager) AddSource(id, src string) (*types.Workspace, error) {
	ws, err := m.Load(id)
	if err != nil {
		return nil, err
	}
	dstName := filepath.Base(src)
	if err := copyFile(src, filepath.Join(m.inputDir(id), dstName)); err != nil {
		return nil, fmt.Errorf("workspace: add source %s: %w", src, err)
	}
	ws.SourceFiles = append(ws.SourceFiles, dstName)
	if err := m.writeState(ws); err != nil {
		return nil, err
	}
	return ws, nil
}

// Finalize copies src into the workspace's output/ directory, for a
// completed task's deliverable.
func (m *Manager) Finalize(id, src string) (*types.Workspace, error) {
	ws, err := m.Load(id)
	if err != nil {
		return nil, err
	}
	dstName := filepath.Base(src)
	if err := copyFile(src, filepath.Join(m.outputDir(id), dstName)); err != nil {
		return nil, fmt.Errorf("workspace: finalize %s: %w", src, err)
	}
	return ws, nil
}

// RecordStep appends a step to the workspace's state and rewrites
// state.json atomically; it never touches the input/ tree.
func (m *Manager) RecordStep(id, description, command string, outputFiles []string) (*types.Workspace, error) {
	ws, err := m.Load(id)
	if err != nil {
		return nil, err
	}
	ws.Steps = append(ws.Steps, types.WorkspaceStep{
		Number:      len(ws.Steps) + 1,
		Description: description,
		Command:     command,
		OutputFiles: outputFiles,
		Timestamp:   time.Now(),
	})
	if err := m.writeState(ws); err != nil {
		return nil, err
	}
	return ws, nil
}

// Load reads a workspace's authoritative state.json.
func (m *Manager) Load(id string) (*types.Workspace, error) {
	data, err := os.ReadFile(m.statePath(id))
	if err != nil {
		return nil, fmt.Errorf("workspace: read state for %s: %w", id, err)
	}
	var ws types.Workspace
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("workspace: parse state for %s: %w", id, err)
	}
	return &ws, nil
}

// InputDir, StepsDir, and OutputDir expose the three fixed subdirectories so
// callers (the brain loop's workspace tools) can resolve concrete paths.
func (m *Manager) InputDir(id string) string  { return m.inputDir(id) }
func (m *Manager) StepsDir(id string) string  { return m.stepsDir(id) }
func (m *Manager) OutputDir(id string) string { return m.outputDir(id) }

// writeState persists ws via a temp-file-then-rename so a crash mid-write
// never leaves a truncated state.json behind.
func (m *Manager) writeState(ws *types.Workspace) error {
	data, err := json.MarshalIndent(ws, "", "  ")
	if err != nil {
		return fmt.Errorf("workspace: marshal state: %w", err)
	}
	path := m.statePath(ws.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("workspace: write temp state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("workspace: rename state: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
