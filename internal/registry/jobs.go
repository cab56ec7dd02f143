// Job discovery for the Job/Event/Cron Registry (spec §4.9, C9).
// Grounded on the teacher's file-walk discovery idiom (pkg/cli/compile_watch.go's
// filepath.Walk over a workflows directory), generalized from "find
// workflow markdown files" to "find job modules under jobs/**". Cron and
// hook metadata is read from the same leading front-matter block the
// Template Renderer Facade (C8) already splits off template documents
// (internal/render.SplitFrontMatter), since job files are authored in the
// same front-matter-plus-body shape as templates and events.
package registry

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/seanchatmangpt/gitvan/internal/gitvanlog"
	"github.com/seanchatmangpt/gitvan/internal/render"
)

var jobsLog = gitvanlog.New("registry:jobs")

// JobMeta is the declared metadata a job module exports (spec §4.9 "a job
// is a module exporting {meta, cron?, hooks?[], run(ctx)}").
type JobMeta struct {
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Job is one discovered job file.
type Job struct {
	ID    string   // path under jobs/, without extension, "/"-separated
	Path  string   // absolute filesystem path
	Ext   string   // extension without leading dot
	Cron  string   // cron spec declared in the job's front matter, if any
	Hooks []string // hook names declared in the job's front matter, if any
	Meta  JobMeta
}

// DiscoverJobs walks jobsDir recursively and returns every file found,
// keyed by its path-without-extension as the job id. Directories and
// dotfiles are skipped. Front matter is read best-effort: a job with no
// front matter (or a body that isn't front-matter-shaped at all, e.g. a
// plain script) still discovers with a zero-value Cron/Hooks/Meta.
func DiscoverJobs(jobsDir string) ([]Job, error) {
	var jobs []Job
	err := filepath.WalkDir(jobsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == jobsDir {
				return filepath.SkipDir
			}
			jobsLog.Printf("walk error at %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") {
			return nil
		}
		rel, err := filepath.Rel(jobsDir, path)
		if err != nil {
			return nil
		}
		ext := strings.TrimPrefix(filepath.Ext(rel), ".")
		id := strings.TrimSuffix(rel, filepath.Ext(rel))
		id = filepath.ToSlash(id)

		job := Job{ID: id, Path: path, Ext: ext}
		if meta, cronSpec, hooks, err := readJobFrontMatter(path); err == nil {
			job.Meta, job.Cron, job.Hooks = meta, cronSpec, hooks
		} else {
			jobsLog.Printf("reading front matter for %s: %v", path, err)
		}
		jobs = append(jobs, job)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs, nil
}

// readJobFrontMatter extracts {meta, cron, hooks} from a job file's
// leading front-matter block. A file with no recognizable front matter
// yields zero values, not an error.
func readJobFrontMatter(path string) (JobMeta, string, []string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return JobMeta{}, "", nil, err
	}
	split, err := render.SplitFrontMatter(string(raw))
	if err != nil {
		return JobMeta{}, "", nil, err
	}

	var meta JobMeta
	if name, _ := split.FrontMatter["name"].(string); name != "" {
		meta.Name = name
	}
	if desc, _ := split.FrontMatter["description"].(string); desc != "" {
		meta.Description = desc
	}
	meta.Tags = toStringSlice(split.FrontMatter["tags"])

	cronSpec, _ := split.FrontMatter["cron"].(string)
	hooks := toStringSlice(split.FrontMatter["hooks"])
	return meta, cronSpec, hooks, nil
}

func toStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// FindJob returns the discovered job with the given id, or false if absent.
func FindJob(jobsDir, id string) (Job, bool, error) {
	jobs, err := DiscoverJobs(jobsDir)
	if err != nil {
		return Job{}, false, err
	}
	for _, j := range jobs {
		if j.ID == id {
			return j, true, nil
		}
	}
	return Job{}, false, nil
}
