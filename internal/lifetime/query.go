package lifetime

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/pretty"
	"github.com/vrlifetime/vrlifetime-lsp/internal/analyzer"
)

// QueryRunner is the part of the analyzer a lifetime query needs
type QueryRunner interface {
	RunQuery(ctx context.Context, req analyzer.QueryRequest) ([]byte, error)
	Rebuild(ctx context.Context) error
}

// Querier refreshes a Store from the analyzer
type Querier struct {
	runner QueryRunner
	store  *Store
	logger logrus.FieldLogger
}

// NewQuerier creates a querier writing into store
func NewQuerier(runner QueryRunner, store *Store, logger logrus.FieldLogger) *Querier {
	return &Querier{
		runner: runner,
		store:  store,
		logger: logger,
	}
}

// Query runs a lifetime query for symbol. If the output is malformed the
// analyzer database is rebuilt and the query retried exactly once. When the
// retry fails too the store is left as it was.
func (q *Querier) Query(ctx context.Context, req analyzer.QueryRequest, symbol string) error {
	logger := q.logger.WithFields(logrus.Fields{
		"file": req.File,
		"pos":  req.Pos,
	})

	err := q.attempt(ctx, logger, req, symbol)
	if !errors.Is(err, ErrMalformedResponse) {
		return err
	}

	logger.Info("Trying to rebuild the lifetime database")
	if rebuildErr := q.runner.Rebuild(ctx); rebuildErr != nil {
		logger.WithError(rebuildErr).Error("Failed to rebuild the lifetime database")
	}

	err = q.attempt(ctx, logger, req, symbol)
	if err != nil {
		logger.WithError(err).Error("Lifetime query failed after rebuild")
	}
	return err
}

// Refresh re-runs a query once without the rebuild retry. It is used when
// the lifetime database changed on disk, where a rebuild would rewrite the
// files that triggered the refresh.
func (q *Querier) Refresh(ctx context.Context, req analyzer.QueryRequest, symbol string) error {
	logger := q.logger.WithFields(logrus.Fields{
		"file": req.File,
		"pos":  req.Pos,
	})
	return q.attempt(ctx, logger, req, symbol)
}

func (q *Querier) attempt(ctx context.Context, logger logrus.FieldLogger, req analyzer.QueryRequest, symbol string) error {
	out, err := q.runner.RunQuery(ctx, req)
	if err != nil {
		logger.WithError(err).Error("Lifetime query could not be started")
		return err
	}

	err = q.store.Replace(symbol, out)
	if errors.Is(err, ErrMalformedResponse) {
		logger.WithError(err).Warn(string(out))
		return err
	}
	if err != nil {
		// the store was replaced, some files were skipped
		logger.WithError(err).Warn("Some lifetime ranges could not be decoded")
	}

	logger.Infof("Lifetime of %s is:\n%s", symbol, pretty.Pretty(out))
	return nil
}
