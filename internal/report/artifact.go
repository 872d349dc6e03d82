package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const ArtifactSchemaVersion = 1

// Artifact is the JSON envelope written next to the Markdown rendering.
type Artifact struct {
	SchemaVersion int       `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	Report        Report    `json:"report"`
}

// ArtifactPaths lists the files written by WriteArtifacts.
type ArtifactPaths struct {
	JSON     string
	Markdown string
}

// WriteArtifacts writes <dir>/weekly-<slug>.json and .md atomically.
func WriteArtifacts(dir string, r Report, generatedAt time.Time) (ArtifactPaths, error) {
	if dir == "" {
		return ArtifactPaths{}, fmt.Errorf("report directory is required")
	}
	base := filepath.Join(dir, "weekly-"+r.Period.Slug())
	paths := ArtifactPaths{JSON: base + ".json", Markdown: base + ".md"}

	data, err := json.MarshalIndent(Artifact{
		SchemaVersion: ArtifactSchemaVersion,
		GeneratedAt:   generatedAt.UTC(),
		Report:        r,
	}, "", "  ")
	if err != nil {
		return ArtifactPaths{}, fmt.Errorf("marshal report: %w", err)
	}
	data = append(data, '\n')

	if err := writeFileAtomic(paths.JSON, data); err != nil {
		return ArtifactPaths{}, err
	}
	if err := writeFileAtomic(paths.Markdown, []byte(RenderMarkdown(r))); err != nil {
		return ArtifactPaths{}, err
	}
	return paths, nil
}

// LoadArtifact reads a JSON artifact written by WriteArtifacts.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	if a.SchemaVersion != ArtifactSchemaVersion {
		return nil, fmt.Errorf("unsupported report schema_version %d", a.SchemaVersion)
	}
	return &a, nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure report dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp report: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename report: %w", err)
	}
	return nil
}
