package kpistore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/pmezard/go-difflib/difflib"
)

// ProposalMetadata describes a stored KPI change proposal.
type ProposalMetadata struct {
	ID          string    `json:"id"`
	Author      string    `json:"author"`
	CreatedAt   time.Time `json:"created_at"`
	KPIsDir     string    `json:"kpis_dir"`
	ProposalDir string    `json:"proposal_dir"`
	UpdatesDir  string    `json:"updates_dir"`
	Files       []string  `json:"files"`
	DiffFile    string    `json:"diff_file,omitempty"`
	Note        string    `json:"note,omitempty"`
}

// ProposalOptions configures CreateProposal.
type ProposalOptions struct {
	Author        string
	UpdatesDir    string
	KPIsDir       string
	ProposalsRoot string
	Note          string
}

// CreateProposal validates a directory of edited KPI documents and packages it
// with a unified diff against the live documents.
func CreateProposal(opts ProposalOptions) (*ProposalMetadata, error) {
	author := strings.TrimSpace(opts.Author)
	if author == "" {
		return nil, fmt.Errorf("author is required")
	}
	if opts.UpdatesDir == "" {
		return nil, fmt.Errorf("updates directory is required")
	}
	kpisDir := opts.KPIsDir
	if kpisDir == "" {
		kpisDir = "kpis"
	}
	proposalsRoot := opts.ProposalsRoot
	if proposalsRoot == "" {
		proposalsRoot = filepath.Join("artifacts", "proposals")
	}

	if _, err := os.Stat(opts.UpdatesDir); err != nil {
		return nil, fmt.Errorf("updates directory: %w", err)
	}
	if filepath.Clean(opts.UpdatesDir) == filepath.Clean(kpisDir) {
		return nil, fmt.Errorf("updates directory must differ from kpis directory")
	}

	if _, err := LoadFromDir(opts.UpdatesDir); err != nil {
		return nil, fmt.Errorf("validate updates: %w", err)
	}

	updateFiles, err := collectYAMLFiles(opts.UpdatesDir)
	if err != nil {
		return nil, err
	}
	if len(updateFiles) == 0 {
		return nil, fmt.Errorf("no YAML files found in %s", opts.UpdatesDir)
	}

	if err := os.MkdirAll(proposalsRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create proposals root: %w", err)
	}

	now := time.Now().UTC()
	proposalID := fmt.Sprintf("%s-%s-%s", now.Format("20060102-150405"), authorSlug(author), uuid.NewString()[:8])
	proposalDir := filepath.Join(proposalsRoot, proposalID)
	if err := os.MkdirAll(proposalDir, 0o755); err != nil {
		return nil, fmt.Errorf("create proposal dir: %w", err)
	}
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.RemoveAll(proposalDir)
		}
	}()

	staged := make([]stagedDocument, 0, len(updateFiles))
	for _, src := range updateFiles {
		doc, stageErr := stageDocument(src, proposalDir)
		if stageErr != nil {
			return nil, stageErr
		}
		staged = append(staged, doc)
	}

	diffFile, err := writeProposalDiff(staged, kpisDir, proposalDir)
	if err != nil {
		return nil, err
	}
	copied := make([]string, len(staged))
	for i, doc := range staged {
		copied[i] = doc.name
	}

	meta := &ProposalMetadata{
		ID:          proposalID,
		Author:      author,
		CreatedAt:   now,
		KPIsDir:     kpisDir,
		ProposalDir: proposalDir,
		UpdatesDir:  opts.UpdatesDir,
		Files:       copied,
		DiffFile:    diffFile,
		Note:        strings.TrimSpace(opts.Note),
	}
	if err := meta.write(); err != nil {
		return nil, err
	}

	cleanup = false
	return meta, nil
}

// ApplyProposal revalidates a proposal against the live documents and copies its
// files into the kpis directory.
func ApplyProposal(proposalDir string, confirm bool) (*ProposalMetadata, error) {
	if !confirm {
		return nil, fmt.Errorf("apply requires --yes confirmation")
	}
	if proposalDir == "" {
		return nil, fmt.Errorf("proposal path is required")
	}

	meta, err := readProposal(proposalDir)
	if err != nil {
		return nil, err
	}
	if len(meta.Files) == 0 {
		return nil, fmt.Errorf("proposal metadata lists no files to apply")
	}

	proposed, err := LoadFromDir(proposalDir)
	if err != nil {
		return nil, fmt.Errorf("proposal validation failed: %w", err)
	}
	if k, _, _, _ := proposed.Counts(); k == 0 {
		return nil, fmt.Errorf("proposal contains no kpis")
	}

	if err := checkMergedIDs(meta.KPIsDir, proposalDir, meta.Files); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(meta.KPIsDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure kpis dir: %w", err)
	}
	for _, file := range meta.Files {
		data, readErr := os.ReadFile(filepath.Join(proposalDir, file))
		if readErr != nil {
			return nil, fmt.Errorf("apply %s: %w", file, readErr)
		}
		if writeErr := writeFileAtomic(filepath.Join(meta.KPIsDir, file), data); writeErr != nil {
			return nil, fmt.Errorf("apply %s: %w", file, writeErr)
		}
	}
	return meta, nil
}

// checkMergedIDs validates the documents that would result from applying the
// proposal, so ids stay unique across untouched files.
func checkMergedIDs(kpisDir, proposalDir string, files []string) error {
	replaced := make(map[string]bool, len(files))
	for _, f := range files {
		replaced[f] = true
	}

	live, err := collectYAMLFiles(kpisDir)
	if err != nil {
		return err
	}
	var merged []Collection
	for _, path := range live {
		if replaced[filepath.Base(path)] {
			continue
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return fmt.Errorf("read %s: %w", path, readErr)
		}
		coll, parseErr := ParseAndValidateDocument(data, path)
		if parseErr != nil {
			return fmt.Errorf("live documents invalid: %w", parseErr)
		}
		merged = append(merged, coll)
	}
	for _, f := range files {
		path := filepath.Join(proposalDir, f)
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return fmt.Errorf("read %s: %w", path, readErr)
		}
		coll, parseErr := ParseAndValidateDocument(data, path)
		if parseErr != nil {
			return parseErr
		}
		merged = append(merged, coll)
	}
	if errs := validateCrossDocumentUniqueness(merged); len(errs) > 0 {
		return fmt.Errorf("proposal conflicts with live documents: %w", errs)
	}
	return nil
}

// stagedDocument is an update file rewritten in canonical form inside a proposal.
type stagedDocument struct {
	name string
	coll Collection
	data []byte
}

// stageDocument parses src and writes its canonical form into proposalDir, so
// the proposal diff shows KPI changes rather than formatting.
func stageDocument(src, proposalDir string) (stagedDocument, error) {
	raw, err := os.ReadFile(src)
	if err != nil {
		return stagedDocument{}, fmt.Errorf("read %s: %w", src, err)
	}
	coll, err := ParseAndValidateDocument(raw, src)
	if err != nil {
		return stagedDocument{}, err
	}
	data, err := MarshalCollection(coll)
	if err != nil {
		return stagedDocument{}, fmt.Errorf("render %s: %w", src, err)
	}
	name := filepath.Base(src)
	if err := writeFileAtomic(filepath.Join(proposalDir, name), data); err != nil {
		return stagedDocument{}, fmt.Errorf("stage %s: %w", name, err)
	}
	return stagedDocument{name: name, coll: coll, data: data}, nil
}

// liveDocument returns the canonical form of the live document a staged file
// replaces. Missing files are empty and unparsable ones are diffed as written.
func liveDocument(kpisDir, name string) string {
	raw, err := os.ReadFile(filepath.Join(kpisDir, name))
	if err != nil {
		return ""
	}
	coll, err := ParseAndValidateDocument(raw, name)
	if err != nil {
		return string(raw)
	}
	data, err := MarshalCollection(coll)
	if err != nil {
		return string(raw)
	}
	return string(data)
}

// writeProposalDiff writes changes.diff for the staged documents that differ
// from the live ones. It returns "" when nothing changes.
func writeProposalDiff(staged []stagedDocument, kpisDir, proposalDir string) (string, error) {
	var b strings.Builder
	for _, doc := range staged {
		live := liveDocument(kpisDir, doc.name)
		if live == string(doc.data) {
			continue
		}
		text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(live),
			B:        difflib.SplitLines(string(doc.data)),
			FromFile: "kpis/" + doc.name,
			ToFile:   "proposal/" + doc.name,
			Context:  3,
		})
		if err != nil {
			return "", fmt.Errorf("diff %s: %w", doc.name, err)
		}
		kpis, tasks := documentTotals(doc.coll)
		fmt.Fprintf(&b, "# %s (%s): %d KPIs, %d tasks\n", doc.name, doc.coll.Category, kpis, tasks)
		b.WriteString(text)
	}
	if b.Len() == 0 {
		return "", nil
	}

	const diffFile = "changes.diff"
	if err := writeFileAtomic(filepath.Join(proposalDir, diffFile), []byte(b.String())); err != nil {
		return "", fmt.Errorf("write diff: %w", err)
	}
	return diffFile, nil
}

func documentTotals(coll Collection) (kpis, tasks int) {
	for _, kpi := range coll.KPIs {
		for _, act := range kpi.Activities {
			tasks += len(act.Tasks)
		}
	}
	return len(coll.KPIs), tasks
}

func (m *ProposalMetadata) write() error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode proposal.json: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(m.ProposalDir, "proposal.json"), data); err != nil {
		return fmt.Errorf("write proposal.json: %w", err)
	}
	return nil
}

// readProposal loads proposal.json and checks that every listed document is a
// plain file name inside the proposal.
func readProposal(proposalDir string) (*ProposalMetadata, error) {
	data, err := os.ReadFile(filepath.Join(proposalDir, "proposal.json"))
	if err != nil {
		return nil, fmt.Errorf("read proposal metadata: %w", err)
	}
	var meta ProposalMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse proposal metadata: %w", err)
	}
	if meta.Author == "" || meta.ID == "" {
		return nil, fmt.Errorf("proposal metadata is missing required fields")
	}
	meta.ProposalDir = proposalDir
	if meta.KPIsDir == "" {
		meta.KPIsDir = "kpis"
	}
	for _, file := range meta.Files {
		if file != filepath.Base(file) || !isYAML(file) {
			return nil, fmt.Errorf("proposal lists invalid document %q", file)
		}
	}
	return &meta, nil
}

// authorSlug lower-cases author and folds every run of other characters into
// one underscore, e.g. "Facility Ops" becomes "facility_ops".
func authorSlug(author string) string {
	var b strings.Builder
	gap := false
	for _, r := range strings.ToLower(author) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if gap && b.Len() > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			gap = false
			continue
		}
		gap = true
	}
	slug := b.String()
	if len(slug) > 32 {
		slug = strings.TrimRight(slug[:32], "_")
	}
	if slug == "" {
		return "author"
	}
	return slug
}
