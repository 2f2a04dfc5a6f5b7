// Package indexer runs one synchronization pass: resume from the archive's
// cursor, fetch newer statuses from the instance, archive them, and rebuild
// the full-text index from the archive's current contents.
package indexer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tootsearch/tootsearch/internal/mastodon"
	"github.com/tootsearch/tootsearch/internal/models"
	"github.com/tootsearch/tootsearch/internal/render"
	"github.com/tootsearch/tootsearch/internal/search"
	"github.com/tootsearch/tootsearch/internal/store"
	"github.com/tootsearch/tootsearch/pkg/config"
	"github.com/tootsearch/tootsearch/pkg/logging"
	"github.com/tootsearch/tootsearch/pkg/telemetry"
)

// StatusIter yields pages of statuses in the instance's delivery order.
// Next returns (nil, nil) once all pages are consumed.
type StatusIter interface {
	Next(ctx context.Context) ([]models.Status, error)
}

// Source is the remote collaborator consumed by a sync run.
type Source interface {
	// LookupAccount resolves a handle to its account on the instance.
	LookupAccount(ctx context.Context, acct string) (*mastodon.Account, error)

	// Statuses pages through the account's statuses with id strictly
	// greater than sinceID (zero means fetch everything).
	Statuses(accountID string, sinceID int64) StatusIter
}

// ClientSource adapts *mastodon.Client to Source.
type ClientSource struct {
	*mastodon.Client
}

// Statuses returns the client's pager as a StatusIter.
func (s ClientSource) Statuses(accountID string, sinceID int64) StatusIter {
	return s.Client.Statuses(accountID, sinceID)
}

// Stats reports what one sync run did.
type Stats struct {
	Fetched  int
	Archived int
	Indexed  int
}

// Sync manages one archive-and-reindex pass. It holds no state between runs;
// all durable state lives in the archive store.
type Sync struct {
	cfg    *config.Config
	store  *store.Store
	index  *search.Index
	remote Source
	logger *zap.Logger
}

// New creates a sync manager over an open store, index, and remote source.
func New(cfg *config.Config, st *store.Store, idx *search.Index, remote Source) *Sync {
	return &Sync{
		cfg:    cfg,
		store:  st,
		index:  idx,
		remote: remote,
		logger: logging.GetLogger().With(zap.String("component", "indexer")),
	}
}

// Run performs one full synchronization for the given user handle.
//
// Fetch failures abort the run before touching the index; a duplicate-key
// insert is a consistency defect and is never retried; an index failure
// leaves the archive authoritative, so re-running the whole pass is safe and
// idempotent. The reindex phase always runs, even when nothing new was
// fetched, so a lost or corrupted index heals on the next run.
func (s *Sync) Run(ctx context.Context, user string) (*Stats, error) {
	ctx, span := telemetry.StartSpan(ctx, "indexer.run")
	defer span.End()

	stats := &Stats{}

	cursor, ok, err := s.store.ResumeCursor(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		s.logger.Info("Resuming from cursor", zap.Int64("cursor", cursor))
	} else {
		s.logger.Info("Empty archive, fetching full history")
		cursor = 0
	}

	if err := s.fetch(ctx, user, cursor, stats); err != nil {
		return nil, err
	}

	if err := s.reindex(ctx, stats); err != nil {
		return nil, err
	}

	s.logger.Info("Sync complete",
		zap.Int("fetched", stats.Fetched),
		zap.Int("archived", stats.Archived),
		zap.Int("indexed", stats.Indexed))
	return stats, nil
}

// fetch pulls pages of statuses newer than the cursor and archives them one
// at a time. Only one page is held in memory; each insert commits
// independently, so an aborted run leaves the archive correct up to the last
// committed status.
func (s *Sync) fetch(ctx context.Context, user string, cursor int64, stats *Stats) error {
	ctx, span := telemetry.StartSpan(ctx, "indexer.fetch")
	defer span.End()

	account, err := s.remote.LookupAccount(ctx, user)
	if err != nil {
		return err
	}
	s.logger.Info("Resolved account",
		zap.String("user", user),
		zap.String("account_id", account.ID))

	iter := s.remote.Statuses(account.ID, cursor)
	for {
		page, err := iter.Next(ctx)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}

		for i := range page {
			stats.Fetched++
			if err := s.store.Insert(ctx, &page[i]); err != nil {
				// A duplicate here means the resume cursor failed
				// to bound the fetch; not retriable.
				return fmt.Errorf("archive status %d: %w", page[i].ID, err)
			}
			stats.Archived++
		}
		s.logger.Debug("Archived page", zap.Int("count", len(page)))
	}
}

// reindex rebuilds every index document from the archive's current contents.
// The index is derived state; overwriting all of it on every run keeps it
// consistent with the store regardless of what the index held before.
func (s *Sync) reindex(ctx context.Context, stats *Stats) error {
	ctx, span := telemetry.StartSpan(ctx, "indexer.reindex")
	defer span.End()

	statuses, err := s.store.Scan(ctx)
	if err != nil {
		return err
	}

	for i := range statuses {
		status := &statuses[i]
		doc := search.Document{
			ID:          status.ID,
			Account:     status.Account,
			SpoilerText: status.SpoilerText,
			Content:     strings.Join(render.Render(status.Content, s.cfg.DisplayWidth), "\n"),
		}
		if err := s.index.Upsert(ctx, doc); err != nil {
			return fmt.Errorf("reindex status %d: %w", status.ID, err)
		}
		stats.Indexed++
	}
	return nil
}
