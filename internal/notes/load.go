// Package notes loads task snapshots from markdown notes with YAML
// frontmatter. It is a thin adapter in front of the temporal engine: parsing
// happens here, so the resolver only ever sees structured values.
package notes

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tasknotes/internal/dateutil"
	appLog "tasknotes/internal/log"
	"tasknotes/internal/model"
)

const frontmatterDelim = "---"

// frontmatter mirrors the YAML block at the top of a task note.
type frontmatter struct {
	Title             string   `yaml:"title"`
	Status            string   `yaml:"status"`
	Priority          string   `yaml:"priority"`
	Due               string   `yaml:"due"`
	Scheduled         string   `yaml:"scheduled"`
	Recurrence        string   `yaml:"recurrence"`
	DTStart           string   `yaml:"dtstart"`
	RecurrenceAnchor  string   `yaml:"recurrence_anchor"`
	CompleteInstances []string `yaml:"complete_instances"`
	SkippedInstances  []string `yaml:"skipped_instances"`
}

// LoadResult carries the tasks that parsed plus per-file failures. A broken
// note never aborts the walk.
type LoadResult struct {
	Tasks  []*model.Task
	Errors map[string]error
}

// LoadDir walks dir for .md notes and parses each one's frontmatter into a
// task. loc interprets wall-clock date-times; nil means the host local zone.
func LoadDir(dir string, loc *time.Location) (LoadResult, error) {
	res := LoadResult{Errors: make(map[string]error)}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		data, rerr := os.ReadFile(path)
		if rerr != nil {
			appLog.Error("note read failed", rerr, "path", path)
			res.Errors[path] = rerr
			return nil
		}

		task, perr := ParseNote(path, data, loc)
		if perr != nil {
			if errors.Is(perr, errNoFrontmatter) {
				// Plain note, not a task.
				return nil
			}
			appLog.Error("note parse failed", perr, "path", path)
			res.Errors[path] = perr
			return nil
		}
		res.Tasks = append(res.Tasks, task)
		return nil
	})
	if err != nil {
		return res, err
	}

	appLog.Info("notes loaded", "dir", dir, "task_count", len(res.Tasks), "error_count", len(res.Errors))
	return res, nil
}

var errNoFrontmatter = errors.New("no frontmatter block")

// ParseNote parses one note body into a task. The note must open with a
// `---` fenced YAML frontmatter block.
func ParseNote(path string, data []byte, loc *time.Location) (*model.Task, error) {
	fmBlock, err := extractFrontmatter(string(data))
	if err != nil {
		return nil, err
	}

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(fmBlock), &fm); err != nil {
		return nil, fmt.Errorf("frontmatter yaml: %w", err)
	}

	task := &model.Task{
		ID:       path,
		Title:    fm.Title,
		Status:   normalizeStatus(fm.Status),
		Priority: fm.Priority,
	}
	if task.Title == "" {
		task.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	if fm.Due != "" {
		v, err := dateutil.ParseDateValue(fm.Due, loc)
		if err != nil {
			return nil, fmt.Errorf("due: %w", err)
		}
		task.Due = &v
	}
	if fm.Scheduled != "" {
		v, err := dateutil.ParseDateValue(fm.Scheduled, loc)
		if err != nil {
			return nil, fmt.Errorf("scheduled: %w", err)
		}
		task.Scheduled = &v
	}

	if fm.Recurrence != "" {
		task.Recurrence = fm.Recurrence
		if fm.DTStart != "" {
			anchor, err := dateutil.ParseLocalDate(fm.DTStart)
			if err != nil {
				return nil, fmt.Errorf("dtstart: %w", err)
			}
			task.RecurrenceAnchor = anchor
		}
		switch strings.ToLower(strings.TrimSpace(fm.RecurrenceAnchor)) {
		case "", "scheduled":
			task.AnchorMode = model.AnchorScheduled
		case "completion":
			task.AnchorMode = model.AnchorCompletion
		default:
			return nil, fmt.Errorf("unknown recurrence_anchor %q", fm.RecurrenceAnchor)
		}

		task.CompletedInstances, err = parseInstanceDates(fm.CompleteInstances)
		if err != nil {
			return nil, fmt.Errorf("complete_instances: %w", err)
		}
		task.SkippedInstances, err = parseInstanceDates(fm.SkippedInstances)
		if err != nil {
			return nil, fmt.Errorf("skipped_instances: %w", err)
		}
	}

	return task, nil
}

func extractFrontmatter(body string) (string, error) {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	if !strings.HasPrefix(body, frontmatterDelim+"\n") {
		return "", errNoFrontmatter
	}
	rest := body[len(frontmatterDelim)+1:]
	end := strings.Index(rest, "\n"+frontmatterDelim)
	if end < 0 {
		return "", errors.New("unterminated frontmatter block")
	}
	return rest[:end], nil
}

func normalizeStatus(s string) model.Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "open", "todo":
		return model.StatusOpen
	case "in-progress", "in_progress", "doing":
		return model.StatusInProgress
	case "done", "completed":
		return model.StatusDone
	default:
		return model.Status(strings.TrimSpace(s))
	}
}

func parseInstanceDates(raw []string) (map[dateutil.LocalDate]struct{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[dateutil.LocalDate]struct{}, len(raw))
	for _, s := range raw {
		d, err := dateutil.ParseLocalDate(s)
		if err != nil {
			return nil, err
		}
		out[d] = struct{}{}
	}
	return out, nil
}
