// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/docsync"
	"github.com/poiesic/docsync/ai"
	"github.com/poiesic/docsync/core"
)

func main() {
	app := &cli.App{
		Name:  "docsync",
		Usage: "Transactional document synchronization engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:     "data",
				Aliases:  []string{"d"},
				Usage:    "Path to the data directory",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "embedding-host",
				Usage: "Embedding service host URL",
				Value: "http://localhost:11434/v1",
			},
			&cli.StringFlag{
				Name:  "embedding-model",
				Usage: "Embedding model name",
				Value: "embeddinggemma",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Read files into a collection as documents and sync each one",
				ArgsUsage: "FILE...",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "collection",
						Aliases:  []string{"c"},
						Usage:    "Collection to ingest into (created if missing)",
						Required: true,
					},
				},
			},
			{
				Name:      "sync",
				Usage:     "Create a sync task for a document and run it to completion",
				ArgsUsage: "<doc-id>",
				Action:    syncCommand,
			},
			{
				Name:      "status",
				Usage:     "Show the most recent sync task for a document",
				ArgsUsage: "<doc-id>",
				Action:    statusCommand,
			},
			{
				Name:   "tasks",
				Usage:  "List sync tasks",
				Action: tasksCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only show tasks in this status (NEW, SPLIT_OK, VECTORIZED, SYNCED, FAILED, RETRYING)",
					},
				},
			},
			{
				Name:      "retry",
				Usage:     "Request a retry for a failed task and re-run it",
				ArgsUsage: "<task-id>",
				Action:    retryCommand,
			},
			{
				Name:      "history",
				Usage:     "Show a task's transition history",
				ArgsUsage: "<task-id>",
				Action:    historyCommand,
			},
			{
				Name:   "metrics",
				Usage:  "Show task metrics across the store",
				Action: metricsCommand,
			},
			{
				Name:   "gc",
				Usage:  "Delete terminal tasks older than the given age",
				Action: gcCommand,
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "older-than",
						Usage: "Minimum age of terminal tasks to delete",
						Value: 30 * 24 * time.Hour,
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Search a collection for chunks similar to the query",
				ArgsUsage: "<collection-id> <query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.Float64Flag{
						Name:  "min-score",
						Usage: "Minimum similarity score",
						Value: 0.6,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
						Value: 10,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func openEngine(c *cli.Context) (*docsync.Engine, error) {
	cfg := ai.NewConfig(
		ai.WithHost(c.String("embedding-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
	)
	return docsync.NewEngine(c.String("data"), docsync.WithAIConfig(cfg))
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one file argument is required")
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx := context.Background()
	collectionID := c.String("collection")
	if _, err := engine.CreateCollection(ctx, collectionID, collectionID); err != nil {
		if !errors.Is(err, core.ErrConflict) {
			return err
		}
	}

	for _, path := range c.Args().Slice() {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		title := filepath.Base(path)
		docID := collectionID + "/" + title
		if _, err := engine.CreateDocument(ctx, docID, collectionID, title, string(content)); err != nil {
			if !errors.Is(err, core.ErrConflict) {
				return err
			}
			if _, err := engine.UpdateDocumentContent(ctx, docID, title, string(content)); err != nil {
				return err
			}
		}

		task, err := engine.SyncDocument(ctx, docID)
		if err != nil {
			return fmt.Errorf("syncing %s: %w", docID, err)
		}
		fmt.Printf("%s  %s (%s)\n", docID, task.Status, task.Id)
	}
	return nil
}

func syncCommand(c *cli.Context) error {
	docID := c.Args().First()
	if docID == "" {
		return fmt.Errorf("doc-id argument is required")
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	task, err := engine.SyncDocument(context.Background(), docID)
	if task != nil {
		fmt.Printf("task %s: %s (retries %d)\n", task.Id, task.Status, task.Retries)
	}
	return err
}

func statusCommand(c *cli.Context) error {
	docID := c.Args().First()
	if docID == "" {
		return fmt.Errorf("doc-id argument is required")
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	task, err := engine.GetSyncTaskStatus(context.Background(), docID)
	if err != nil {
		return err
	}
	if task == nil {
		fmt.Printf("no sync task for document %s\n", docID)
		return nil
	}

	printTask(task)
	return nil
}

func tasksCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx := context.Background()
	var tasks []*core.SyncTask
	if statusStr := c.String("status"); statusStr != "" {
		status := core.TaskStatus(strings.ToUpper(statusStr))
		if err := core.ValidateTaskStatus(status); err != nil {
			return err
		}
		tasks, err = engine.TaskStore().GetTasksByStatus(ctx, status)
	} else {
		tasks, err = engine.GetAllSyncTasks(ctx)
	}
	if err != nil {
		return err
	}

	for _, task := range tasks {
		printTask(task)
	}
	fmt.Printf("%d task(s)\n", len(tasks))
	return nil
}

func retryCommand(c *cli.Context) error {
	taskID := c.Args().First()
	if taskID == "" {
		return fmt.Errorf("task-id argument is required")
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx := context.Background()
	handled, err := engine.HandleTransition(ctx, taskID, core.EventRetry, "")
	if err != nil {
		return err
	}
	if !handled {
		return fmt.Errorf("retry budget exhausted for task %s", taskID)
	}

	if err := engine.ExecuteTask(ctx, taskID); err != nil {
		return err
	}
	fmt.Printf("task %s completed\n", taskID)
	return nil
}

func historyCommand(c *cli.Context) error {
	taskID := c.Args().First()
	if taskID == "" {
		return fmt.Errorf("task-id argument is required")
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	records, err := engine.GetTransitionHistory(context.Background(), taskID)
	if err != nil {
		return err
	}

	for _, record := range records {
		fmt.Printf("%s  %-18s %s\n",
			record.Timestamp.Format(time.RFC3339), record.Event, record.Payload)
	}
	return nil
}

func metricsCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	metrics, err := engine.GetTaskMetrics(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("total tasks:  %d\n", metrics.TotalTasks)
	for status, count := range metrics.TasksByState {
		fmt.Printf("  %-12s %d\n", status, count)
	}
	fmt.Printf("success rate: %.2f\n", metrics.SuccessRate)
	fmt.Printf("failure rate: %.2f\n", metrics.FailureRate)
	return nil
}

func gcCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	cutoff := time.Now().UTC().Add(-c.Duration("older-than"))
	removed, err := engine.CleanupTasks(context.Background(), cutoff)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d task(s)\n", removed)
	return nil
}

func searchCommand(c *cli.Context) error {
	collectionID := c.Args().Get(0)
	query := c.Args().Get(1)
	if collectionID == "" || query == "" {
		return fmt.Errorf("collection-id and query arguments are required")
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	matches, err := engine.SearchDocuments(context.Background(), collectionID, query,
		float32(c.Float64("min-score")), c.Int("limit"))
	if err != nil {
		return err
	}

	for _, match := range matches {
		fmt.Printf("%.4f  doc=%s point=%s\n", match.Score, match.DocId, match.PointId)
	}
	return nil
}

func printTask(task *core.SyncTask) {
	fmt.Printf("%s  doc=%s status=%s retries=%d updated=%s\n",
		task.Id, task.DocId, task.Status, task.Retries,
		task.UpdatedAt.Format(time.RFC3339))
	if task.Context.LastError != "" {
		fmt.Printf("  last error: %s\n", task.Context.LastError)
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
