// Package apply implements the Pack Applier (spec §4.7, C7): the only
// component that writes to a target working tree on a pack's behalf.
// Grounded on the teacher's pkg/fileutil (path-safety idiom, adapted in
// pathguard.go) and pkg/workflow's receipt-like "compiled output"
// write pattern, generalized here into the templates → files → jobs →
// manifest-merge application order with atomic writes and one receipt
// per application.
package apply

import (
	"context"
	"os"
	"path/filepath"

	"github.com/seanchatmangpt/gitvan/internal/gitadapter"
	"github.com/seanchatmangpt/gitvan/internal/gverr"
	"github.com/seanchatmangpt/gitvan/internal/pack"
	"github.com/seanchatmangpt/gitvan/internal/receipt"
	"github.com/seanchatmangpt/gitvan/internal/render"
	"github.com/seanchatmangpt/gitvan/pkg/fileutil"
	"github.com/seanchatmangpt/gitvan/pkg/stringutil"
)

// Status is the terminal outcome of one Apply call (spec's pack
// application state machine).
type Status string

const (
	StatusOK      Status = "OK"
	StatusPartial Status = "PARTIAL"
	StatusError   Status = "ERROR"
	StatusSkip    Status = "SKIP"
)

// AppliedItem records one successfully materialized artifact.
type AppliedItem struct {
	Action string `json:"action"` // "template" | "file" | "job" | "manifest-merge"
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// Result is the Applier's return value (spec §4.7 "{status, applied[],
// errors[]}").
type Result struct {
	Status  Status
	Applied []AppliedItem
	Errors  []string
}

// Applier materializes a pack's provides.* into a target directory.
type Applier struct {
	git      *gitadapter.Adapter
	receipts *receipt.Store
}

// New returns an Applier bound to git (for commit/receipt context) and
// receipts (for fingerprint-based idempotency).
func New(git *gitadapter.Adapter, receipts *receipt.Store) *Applier {
	return &Applier{git: git, receipts: receipts}
}

// Available describes the runtime's detected tool versions, consulted for
// a pack's requires{} precondition.
type Available map[string]string

// Apply runs the full apply contract for one pack against targetDir.
func (a *Applier) Apply(ctx context.Context, packPath, targetDir string, m *pack.Manifest, inputs map[string]any, available Available) (Result, error) {
	cc := gitadapter.CallCtx{Context: ctx, Dir: targetDir}

	if err := CheckRequires(m.Requires, available); err != nil {
		return Result{Status: StatusError, Errors: []string{err.Error()}}, err
	}

	resolvedInputs, err := ResolveInputs(m.Inputs, inputs)
	if err != nil {
		return Result{Status: StatusError, Errors: []string{err.Error()}}, err
	}

	fingerprint, err := pack.Fingerprint(m, packPath)
	if err != nil {
		return Result{Status: StatusError, Errors: []string{err.Error()}}, err
	}

	commit, commitErr := a.git.RevParse(cc, "HEAD")
	if commitErr == nil {
		if already, _ := a.receipts.Has(cc, commit, fingerprint); already {
			return Result{Status: StatusSkip}, nil
		}
	}

	var applied []AppliedItem
	var errs []string

	for _, t := range m.Provides.Templates {
		item, err := a.applyTemplate(packPath, targetDir, t, resolvedInputs)
		if err != nil {
			errs = append(errs, stringutil.SanitizeErrorMessage(err.Error()))
			continue
		}
		if item != nil {
			applied = append(applied, *item)
		}
	}
	for _, f := range m.Provides.Files {
		item, err := a.applyFile(packPath, targetDir, f)
		if err != nil {
			errs = append(errs, stringutil.SanitizeErrorMessage(err.Error()))
			continue
		}
		if item != nil {
			applied = append(applied, *item)
		}
	}
	for _, j := range m.Provides.Jobs {
		item, err := a.applyJob(packPath, targetDir, j)
		if err != nil {
			errs = append(errs, stringutil.SanitizeErrorMessage(err.Error()))
			continue
		}
		if item != nil {
			applied = append(applied, *item)
		}
	}
	for _, mm := range m.Provides.Manifests {
		item, err := a.applyManifestMerge(targetDir, mm)
		if err != nil {
			errs = append(errs, stringutil.SanitizeErrorMessage(err.Error()))
			continue
		}
		if item != nil {
			applied = append(applied, *item)
		}
	}

	status := StatusOK
	if len(errs) > 0 {
		status = StatusPartial
		if len(applied) == 0 {
			status = StatusError
		}
	}

	if commitErr == nil {
		rec := receipt.Record{
			Role:        "receipt",
			ID:          m.ID,
			Status:      string(status),
			Action:      "apply",
			Fingerprint: fingerprint,
			Commit:      commit,
			Timestamp:   a.git.NowISO(),
			Inputs:      resolvedInputs,
		}
		if len(errs) > 0 {
			rec.Error = &receipt.RecordError{Kind: string(gverr.KindTemplateRenderError), Message: errs[0]}
		}
		_ = a.receipts.Write(cc, commit, rec)
	}

	return Result{Status: status, Applied: applied, Errors: errs}, nil
}

func (a *Applier) applyTemplate(packPath, targetDir string, t pack.TemplateSpec, inputs map[string]any) (*AppliedItem, error) {
	dest, err := ResolveUnder(targetDir, t.Target)
	if err != nil {
		return nil, err
	}
	if t.Mode == "skip" && fileutil.FileExists(dest) {
		return nil, nil
	}

	raw, err := os.ReadFile(filepath.Join(packPath, "templates", t.Src))
	if err != nil {
		return nil, gverr.Wrap(gverr.KindFileSystemError, err, "reading template %s", t.Src)
	}

	split, err := render.SplitFrontMatter(string(raw))
	if err != nil {
		return nil, err
	}

	data := map[string]any{
		"inputs":      inputs,
		"frontMatter": split.FrontMatter,
	}

	out, err := render.Render(context.Background(), split.Body, data, render.Limits{})
	if err != nil {
		return nil, err
	}
	out = stringutil.NormalizeWhitespace(out)

	mode := os.FileMode(0o644)
	if t.Executable {
		mode = 0o755
	}
	if err := writeAtomic(dest, []byte(out), mode); err != nil {
		return nil, err
	}
	return &AppliedItem{Action: "template", Source: t.Src, Target: t.Target, Type: "template"}, nil
}

func (a *Applier) applyFile(packPath, targetDir string, f pack.FileSpec) (*AppliedItem, error) {
	dest, err := ResolveUnder(targetDir, f.Target)
	if err != nil {
		return nil, err
	}
	if f.Mode == "skip" && fileutil.FileExists(dest) {
		return nil, nil
	}

	srcPath := filepath.Join(packPath, "assets", f.Src)
	if !fileutil.FileExists(srcPath) {
		return nil, gverr.New(gverr.KindFileSystemError, "asset %s not found in pack", f.Src)
	}
	info, err := os.Stat(srcPath)
	if err != nil {
		return nil, gverr.Wrap(gverr.KindFileSystemError, err, "stat asset %s", f.Src)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, gverr.Wrap(gverr.KindFileSystemError, err, "creating parent dir for %s", f.Target)
	}
	if err := fileutil.CopyFile(srcPath, dest); err != nil {
		return nil, gverr.Wrap(gverr.KindFileSystemError, err, "copying asset %s", f.Src)
	}
	if err := os.Chmod(dest, info.Mode()); err != nil {
		return nil, gverr.Wrap(gverr.KindFileSystemError, err, "setting mode on %s", f.Target)
	}
	return &AppliedItem{Action: "file", Source: f.Src, Target: f.Target, Type: "file"}, nil
}

func (a *Applier) applyManifestMerge(targetDir string, mm pack.ManifestMergeSpec) (*AppliedItem, error) {
	dest, err := ResolveUnder(targetDir, mm.Target)
	if err != nil {
		return nil, err
	}
	if err := MergeManifest(dest, mm.Additions); err != nil {
		return nil, err
	}
	return &AppliedItem{Action: "manifest-merge", Target: mm.Target, Type: "manifest-merge"}, nil
}

func (a *Applier) applyJob(packPath, targetDir string, j pack.JobSpec) (*AppliedItem, error) {
	rel := filepath.Join("jobs", j.ID+"."+j.Ext)
	dest, err := ResolveUnder(targetDir, rel)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(filepath.Join(packPath, "jobs", j.Src))
	if err != nil {
		return nil, gverr.Wrap(gverr.KindFileSystemError, err, "reading job source %s", j.Src)
	}
	if err := writeAtomic(dest, content, 0o644); err != nil {
		return nil, err
	}
	return &AppliedItem{Action: "job", Source: j.Src, Target: rel, Type: "job"}, nil
}

// writeAtomic writes content to dest via a temp file in the same
// directory followed by a rename (spec §4.7 "write atomically
// (write-to-temp + rename)").
func writeAtomic(dest string, content []byte, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return gverr.Wrap(gverr.KindFileSystemError, err, "creating parent dir for %s", dest)
	}
	tmp := dest + ".gitvan-tmp"
	if err := os.WriteFile(tmp, content, mode); err != nil {
		return gverr.Wrap(gverr.KindFileSystemError, err, "writing temp file for %s", dest)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return gverr.Wrap(gverr.KindFileSystemError, err, "finalizing write to %s", dest)
	}
	return nil
}
