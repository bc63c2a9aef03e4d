package backup

import (
	"context"
	"log/slog"

	"github.com/tonimelisma/drivebackup/internal/remote"
)

// Lister enumerates objects across pages.
type Lister struct {
	store  Store
	logger *slog.Logger
	report FailureHook
}

// NewLister returns a Lister over store. report may be nil.
func NewLister(store Store, logger *slog.Logger, report FailureHook) *Lister {
	if logger == nil {
		logger = slog.Default()
	}

	return &Lister{store: store, logger: logger, report: report}
}

// ListAll returns every object visible to the caller, trashed ones
// included.
func (l *Lister) ListAll(ctx context.Context) ([]remote.Object, error) {
	return l.List(ctx, remote.Query{IncludeTrashed: true})
}

// List follows continuation tokens until the store reports no more pages.
// If a page fails, enumeration stops there: the objects gathered from the
// earlier pages are returned together with a *PartialEnumerationError.
// Objects created between page fetches may appear twice.
func (l *Lister) List(ctx context.Context, q remote.Query) ([]remote.Object, error) {
	var objects []remote.Object

	token := ""
	pages := 0

	for {
		page, err := l.store.List(ctx, q, token)
		if err != nil {
			roe := &RemoteOperationError{Op: OpList, Err: err}

			l.logger.Error("listing stopped at failed page",
				slog.Int("page", pages+1),
				slog.Int("collected", len(objects)),
				slog.String("error", err.Error()),
			)

			if l.report != nil {
				l.report(roe)
			}

			return objects, &PartialEnumerationError{Pages: pages, Items: len(objects), Err: roe}
		}

		pages++
		objects = append(objects, page.Objects...)

		l.logger.Debug("fetched page",
			slog.Int("page", pages),
			slog.Int("count", len(page.Objects)),
		)

		if page.NextPageToken == "" {
			break
		}

		token = page.NextPageToken
	}

	l.logger.Info("listing complete",
		slog.Int("pages", pages),
		slog.Int("total_objects", len(objects)),
	)

	return objects, nil
}
