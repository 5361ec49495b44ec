package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/palikit/canonpress/internal/assemble"
	"github.com/palikit/canonpress/internal/depth"
	"github.com/palikit/canonpress/internal/doctree"
	"github.com/palikit/canonpress/internal/matter"
	"github.com/palikit/canonpress/internal/scapi"
	"github.com/palikit/canonpress/internal/treeindex"
)

// Fetcher is the slice of the publication API the worker needs. Satisfied by
// *scapi.Client; tests substitute an in-memory source.
type Fetcher interface {
	SuperTree(ctx context.Context) ([]byte, error)
	CollectionTree(ctx context.Context, collection string) ([]byte, error)
	EditionConfig(ctx context.Context, editionID string) (*scapi.EditionConfig, error)
	Mainmatter(ctx context.Context, editionID, uid string) ([]doctree.Segment, error)
	Extras(ctx context.Context, editionID string) (map[string]string, error)
}

// Worker assembles a single publication job.
type Worker struct {
	api       Fetcher
	overrides depth.Overrides
	log       *slog.Logger

	maxHeadingLevel      int
	mainTocDepth         int
	secondaryTocDepth    int
	maxConcurrentVolumes int
}

func NewWorker(api Fetcher, overrides depth.Overrides, log *slog.Logger, maxHeading, mainTocDepth, secondaryTocDepth, maxVolumes int) *Worker {
	if maxVolumes <= 0 {
		maxVolumes = 1
	}
	return &Worker{
		api:                  api,
		overrides:            overrides,
		log:                  log,
		maxHeadingLevel:      maxHeading,
		mainTocDepth:         mainTocDepth,
		secondaryTocDepth:    secondaryTocDepth,
		maxConcurrentVolumes: maxVolumes,
	}
}

// Process runs the full assembly pipeline for one edition. Volumes are
// assembled concurrently but in independent failure domains: a structural
// error in one volume never aborts its siblings.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "edition_id", job.EditionID)

	// Phase 1: fetch configuration and skeletons.
	job.SetStatus(StatusFetching, "fetching")

	edition, err := w.fetchEdition(ctx, job.EditionID)
	if err != nil {
		log.Error("edition config fetch failed", "error", err)
		job.AddError(fmt.Sprintf("edition config: %s", err))
		job.SetStatus(StatusFailed, "fetching")
		return
	}
	job.SetTotalVolumes(len(edition.Volumes))

	index, err := w.fetchTrees(ctx, edition.Collection)
	if err != nil {
		// Tree problems are fatal for the whole edition: every volume
		// resolves depth against the same skeletons.
		log.Error("tree load failed", "error", err)
		job.AddError(fmt.Sprintf("trees: %s", err))
		job.SetStatus(StatusFailed, "fetching")
		return
	}

	extras, err := w.fetchExtras(ctx, job.EditionID)
	if err != nil {
		log.Warn("extras fetch failed, composing without matter files", "error", err)
		extras = nil
	}

	// Phase 2: assemble volumes with bounded concurrency.
	job.SetStatus(StatusAssembling, "assembling")

	resolver := depth.NewResolver(index, w.overrides, w.log)
	assembler := assemble.New(resolver, w.maxHeadingLevel)

	mainDepth := edition.MainTocDepth
	if mainDepth == 0 {
		mainDepth = w.mainTocDepth
	}
	secondaryDepth := edition.SecondaryTocDepth
	if secondaryDepth == 0 {
		secondaryDepth = w.secondaryTocDepth
	}
	composer := matter.NewComposer(mainDepth, secondaryDepth)

	type volumeResult struct {
		volume *matter.Volume
		err    error
		number int
	}
	results := make(chan volumeResult, len(edition.Volumes))
	sem := make(chan struct{}, w.maxConcurrentVolumes)

	for _, vc := range edition.Volumes {
		sem <- struct{}{}
		go func(vc scapi.VolumeConfig) {
			defer func() { <-sem }()
			v, err := w.assembleVolume(ctx, edition, vc, assembler, composer, extras)
			results <- volumeResult{volume: v, err: err, number: vc.Number}
		}(vc)
	}

	var volumes []*matter.Volume
	hadErrors := false
	for range edition.Volumes {
		r := <-results
		if r.err != nil {
			log.Error("volume assembly failed", "volume", r.number, "error", r.err)
			job.AddError(fmt.Sprintf("volume %d: %s", r.number, r.err))
			job.MarkVolumeFailed()
			hadErrors = true
			continue
		}
		volumes = append(volumes, r.volume)
	}
	sort.Slice(volumes, func(i, j int) bool { return volumes[i].Number < volumes[j].Number })
	for _, v := range volumes {
		job.AddVolume(v)
	}

	log.Info("assembly complete", "volumes", len(volumes), "errors", hadErrors)

	switch {
	case hadErrors && len(volumes) > 0:
		job.SetStatus(StatusPartial, "done")
	case hadErrors:
		job.SetStatus(StatusFailed, "assembling")
	default:
		job.SetStatus(StatusCompleted, "done")
	}
}

// assembleVolume runs one volume end to end: fetch its segment streams,
// merge them against the skeleton, project TOCs, compose markup.
func (w *Worker) assembleVolume(ctx context.Context, edition *scapi.EditionConfig, vc scapi.VolumeConfig, assembler *assemble.Assembler, composer *matter.Composer, extras map[string]string) (*matter.Volume, error) {
	volumeID := fmt.Sprintf("%d", vc.Number)

	var stream []doctree.Segment
	for _, uid := range vc.Mainmatter {
		segments, err := w.fetchMainmatter(ctx, edition.EditionID, uid)
		if err != nil {
			return nil, fmt.Errorf("mainmatter %s: %w", uid, err)
		}
		stream = append(stream, segments...)
	}

	forest, err := assembler.Volume(edition.Collection, volumeID, stream)
	if err != nil {
		return nil, err
	}

	title := vc.RootTitle
	if title == "" {
		title = edition.Title
	}
	return composer.Compose(vc.Number, title, forest, matterFiles(vc.Frontmatter, extras), matterFiles(vc.Backmatter, extras))
}

// matterFiles resolves the volume's ordered matter names against the fetched
// extras, keeping configured order and skipping files the API did not return.
func matterFiles(names []string, extras map[string]string) []matter.MatterFile {
	var files []matter.MatterFile
	for _, name := range names {
		if content, ok := extras[name]; ok {
			files = append(files, matter.MatterFile{Name: name, Content: content})
		}
	}
	return files
}

func (w *Worker) fetchEdition(ctx context.Context, editionID string) (*scapi.EditionConfig, error) {
	var cfg *scapi.EditionConfig
	err := w.withRetry(ctx, func() error {
		var err error
		cfg, err = w.api.EditionConfig(ctx, editionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(cfg.Volumes) == 0 {
		return nil, fmt.Errorf("edition %s has no volumes", editionID)
	}
	return cfg, nil
}

func (w *Worker) fetchTrees(ctx context.Context, collection string) (*treeindex.Index, error) {
	var superDoc, collDoc []byte
	err := w.withRetry(ctx, func() error {
		var err error
		superDoc, err = w.api.SuperTree(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("super-tree: %w", err)
	}
	err = w.withRetry(ctx, func() error {
		var err error
		collDoc, err = w.api.CollectionTree(ctx, collection)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("collection tree %s: %w", collection, err)
	}
	return treeindex.New(superDoc, map[string][]byte{collection: collDoc})
}

func (w *Worker) fetchMainmatter(ctx context.Context, editionID, uid string) ([]doctree.Segment, error) {
	var segments []doctree.Segment
	err := w.withRetry(ctx, func() error {
		var err error
		segments, err = w.api.Mainmatter(ctx, editionID, uid)
		return err
	})
	return segments, err
}

func (w *Worker) fetchExtras(ctx context.Context, editionID string) (map[string]string, error) {
	var extras map[string]string
	err := w.withRetry(ctx, func() error {
		var err error
		extras, err = w.api.Extras(ctx, editionID)
		return err
	})
	return extras, err
}

// withRetry runs fn, backing off on retryable upstream errors.
func (w *Worker) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil || !IsRetryable(lastErr) {
			return lastErr
		}
		w.log.Warn("retryable fetch error", "attempt", attempt, "error", lastErr)
		select {
		case <-time.After(Backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
