// Package tasks loads a JSON list of downloads and runs them one after another.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/heyjunin/m3u8grab/pkg/errors"
	"github.com/heyjunin/m3u8grab/pkg/logger"
)

// Task is one record of the task list
type Task struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	OutputDir string `json:"output_dir,omitempty"`
}

// Load reads a JSON array of tasks from path.
func Load(path string) ([]Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.SystemError, "Failed to read task list", errors.ErrTaskListRead)
	}
	var tasks []Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, errors.Wrap(err, errors.ParseError, "Failed to parse task list", errors.ErrTaskListParse)
	}
	if len(tasks) == 0 {
		return nil, errors.New(errors.ParseError, "Task list is empty", path, errors.ErrTaskListEmpty)
	}
	return tasks, nil
}

// RunFunc performs one download and returns the artifact path.
// index is the task position in the list.
type RunFunc func(ctx context.Context, task Task, index int, outputDir string) (string, error)

// Failure describes one failed task
type Failure struct {
	Name string
	Err  error
}

// Summary is the outcome of a batch
type Summary struct {
	Succeeded []string
	Failed    []Failure
	Skipped   []string
}

// Total is the number of tasks considered.
func (s Summary) Total() int {
	return len(s.Succeeded) + len(s.Failed) + len(s.Skipped)
}

// Batch runs tasks sequentially
type Batch struct {
	// Run performs each download.
	Run RunFunc
	// OutputDir is used for tasks without their own output_dir.
	OutputDir string
	// Extension of the artifact checked for the skip rule.
	Extension string
	// Logger defaults to the global logger.
	Logger logger.Logger
}

// OutputDirFor returns where the artifact of task goes: output_dir/name when the
// task sets an output_dir, the batch output directory otherwise.
func (b *Batch) OutputDirFor(task Task) string {
	if task.OutputDir != "" {
		return filepath.Join(task.OutputDir, task.Name)
	}
	return b.OutputDir
}

// Process runs every task in order. A failed task does not stop the others.
// An error is returned only when every task in the list failed; a skipped task
// counts as done.
func (b *Batch) Process(ctx context.Context, tasks []Task) (Summary, error) {
	log := b.Logger
	if log == nil {
		log = logger.NewLogger()
	}
	ext := strings.TrimPrefix(b.Extension, ".")
	if ext == "" {
		ext = "mp4"
	}

	var summary Summary
	log.Info("Processing task list", "tasks", map[string]interface{}{
		"tasks": len(tasks),
	})

	for i, task := range tasks {
		if ctx.Err() != nil {
			summary.Failed = append(summary.Failed, Failure{Name: task.Name, Err: taskError(task, ctx.Err())})
			continue
		}

		outDir := b.OutputDirFor(task)
		artifact := filepath.Join(outDir, task.Name+"."+ext)
		if info, err := os.Stat(artifact); err == nil && info.Mode().IsRegular() && info.Size() > 0 {
			log.Info("Output exists, skipping task", "tasks", map[string]interface{}{
				"task":   task.Name,
				"index":  i,
				"output": artifact,
			})
			summary.Skipped = append(summary.Skipped, task.Name)
			continue
		}

		log.Info("Starting task", "tasks", map[string]interface{}{
			"task":     task.Name,
			"position": fmt.Sprintf("%d/%d", i+1, len(tasks)),
		})

		out, err := b.Run(ctx, task, i, outDir)
		if err != nil {
			log.Error("Task failed", "tasks", map[string]interface{}{
				"task":  task.Name,
				"error": err.Error(),
			})
			summary.Failed = append(summary.Failed, Failure{Name: task.Name, Err: taskError(task, err)})
			continue
		}
		log.Info("Task succeeded", "tasks", map[string]interface{}{
			"task":   task.Name,
			"output": out,
		})
		summary.Succeeded = append(summary.Succeeded, task.Name)
	}

	b.logSummary(log, summary)

	if len(tasks) > 0 && len(summary.Failed) == len(tasks) {
		return summary, errors.New(errors.TaskError, "All tasks failed",
			fmt.Sprintf("%d of %d tasks failed", len(summary.Failed), summary.Total()), errors.ErrAllTasksFailed)
	}
	return summary, nil
}

func (b *Batch) logSummary(log logger.Logger, s Summary) {
	log.Info("Task list finished", "tasks", map[string]interface{}{
		"total":     s.Total(),
		"succeeded": len(s.Succeeded),
		"failed":    len(s.Failed),
		"skipped":   len(s.Skipped),
	})
	for _, f := range s.Failed {
		data := map[string]interface{}{
			"task":  f.Name,
			"error": f.Err.Error(),
		}
		if pos, ok := errors.PositionOf(f.Err); ok {
			data["position"] = pos
		}
		log.Warn("Failed task", "tasks", data)
	}
	for _, name := range s.Succeeded {
		log.Info("Succeeded task", "tasks", map[string]interface{}{"task": name})
	}
}

func taskError(task Task, err error) error {
	return errors.Wrap(err, errors.TaskError, "Task failed", errors.ErrTaskFailed).WithTask(task.Name)
}
