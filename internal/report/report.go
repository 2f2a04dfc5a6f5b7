// Package report retrieves archived statuses by search query or engagement
// ranking and formats them for display.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/tootsearch/tootsearch/internal/models"
	"github.com/tootsearch/tootsearch/internal/render"
	"github.com/tootsearch/tootsearch/internal/search"
	"github.com/tootsearch/tootsearch/internal/store"
	"github.com/tootsearch/tootsearch/pkg/logging"
)

// Category selects which engagement count a top-N report ranks by.
type Category string

const (
	CategoryReplies    Category = "replies"
	CategoryBoosts     Category = "boosts"
	CategoryFavourites Category = "favourites"
)

// ParseCategory maps a CLI argument to a Category. Both the British and
// American spellings of favourites are accepted.
func ParseCategory(s string) (Category, error) {
	switch s {
	case "replies":
		return CategoryReplies, nil
	case "boosts":
		return CategoryBoosts, nil
	case "favourites", "favorites", "faves":
		return CategoryFavourites, nil
	default:
		return "", fmt.Errorf("unknown category %q (want replies, boosts, or favourites)", s)
	}
}

// Reporter renders archived statuses for display. The index supplies ids
// only; full records always come from the authoritative archive store.
type Reporter struct {
	store  *store.Store
	index  *search.Index
	width  int
	logger *zap.Logger
}

// New creates a reporter writing at the given display width.
func New(st *store.Store, idx *search.Index, width int) *Reporter {
	return &Reporter{
		store:  st,
		index:  idx,
		width:  width,
		logger: logging.GetLogger().With(zap.String("component", "report")),
	}
}

// Format renders one status as display lines: header, blank separator, the
// rendered body, another separator, and the engagement counts.
func (r *Reporter) Format(s *models.Status) []string {
	lines := []string{
		"Account: " + s.Account,
		"Date: " + s.CreatedAt.Format("2006-01-02 15:04 MST"),
		"URL: " + s.URL,
	}
	if s.SpoilerText != "" {
		lines = append(lines, "Spoiler: "+s.SpoilerText)
	}
	if summary := attachmentSummary(s.Attachments); summary != "" {
		lines = append(lines, "Attached: "+summary)
	}
	lines = append(lines, "")
	lines = append(lines, render.Render(s.Content, r.width)...)
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("Replies: %d  Boosts: %d  Faves: %d",
		s.RepliesCount, s.ReblogsCount, s.FavouritesCount))
	return render.Compress(lines)
}

// attachmentSummary aggregates media attachments by type, e.g.
// "2 image, 1 video". Types appear in first-seen order.
func attachmentSummary(attachments models.Attachments) string {
	if len(attachments) == 0 {
		return ""
	}
	var order []string
	count := map[string]int{}
	for _, a := range attachments {
		if count[a.Type] == 0 {
			order = append(order, a.Type)
		}
		count[a.Type]++
	}
	parts := make([]string, 0, len(order))
	for _, t := range order {
		parts = append(parts, fmt.Sprintf("%d %s", count[t], t))
	}
	return strings.Join(parts, ", ")
}

// write prints a horizontal rule followed by the formatted status.
func (r *Reporter) write(w io.Writer, s *models.Status) error {
	block := append([]string{strings.Repeat("-", r.width)}, r.Format(s)...)
	_, err := fmt.Fprintln(w, strings.Join(block, "\n"))
	return err
}

// Search runs a free-text query against the index and renders every match
// from the archive. An id the index knows but the archive does not is an
// index/store divergence; it is reported as a warning on that one result
// rather than aborting the whole query.
func (r *Reporter) Search(ctx context.Context, query string, w io.Writer) error {
	ids, err := r.index.Search(ctx, query)
	if err != nil {
		return err
	}

	for _, id := range ids {
		status, err := r.store.Get(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				r.logger.Warn("Indexed status missing from archive",
					zap.Int64("id", id))
				continue
			}
			return err
		}
		if err := r.write(w, status); err != nil {
			return err
		}
	}
	return nil
}

// Top renders the limit statuses with the highest count in the chosen
// category. Output is ascending, so the top entry prints last. Equal counts
// tie-break on id ascending to keep the order deterministic.
func (r *Reporter) Top(ctx context.Context, category Category, limit int, w io.Writer) error {
	statuses, err := r.store.Scan(ctx)
	if err != nil {
		return err
	}

	statuses = TopStatuses(statuses, category, limit)
	for i := range statuses {
		if err := r.write(w, &statuses[i]); err != nil {
			return err
		}
	}
	return nil
}

// TopStatuses sorts ascending by the category count, tie-breaking on id
// ascending, and keeps the last limit entries (the highest counts). Zero or
// negative limit keeps everything.
func TopStatuses(statuses []models.Status, category Category, limit int) []models.Status {
	sort.Slice(statuses, func(a, b int) bool {
		ca, cb := countFor(category, &statuses[a]), countFor(category, &statuses[b])
		if ca != cb {
			return ca < cb
		}
		return statuses[a].ID < statuses[b].ID
	})
	if limit > 0 && len(statuses) > limit {
		statuses = statuses[len(statuses)-limit:]
	}
	return statuses
}

func countFor(category Category, s *models.Status) int {
	switch category {
	case CategoryReplies:
		return s.RepliesCount
	case CategoryBoosts:
		return s.ReblogsCount
	default:
		return s.FavouritesCount
	}
}
