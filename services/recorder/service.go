// Package recorder wires the fetch → extract → append pipeline
// together. One Run is one invocation: it either appends exactly one
// row to the record store or leaves it untouched.
package recorder

import (
	"context"
	"log/slog"
	"time"

	"fahstats/lib/extract"
	"fahstats/lib/fetch"
	"fahstats/lib/recordstore"
	"fahstats/lib/snapshotdb"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/recorder")

type Service struct {
	// optional sqlite mirror, nil disables mirroring
	mirror *snapshotdb.Store
}

func NewService(mirror *snapshotdb.Store) Service {
	return Service{mirror: mirror}
}

type RunRequest struct {
	SourceURL string
	Username  string
	StorePath string
}

func (s Service) Run(ctx context.Context, req RunRequest) (recordstore.Record, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	span.SetAttributes(
		attribute.String("username", req.Username),
		attribute.String("store_path", req.StorePath),
	)

	doc, err := s.fetchSummary(ctx, req.SourceURL)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return recordstore.Record{}, err
	}

	stats, err := s.extractUser(ctx, doc, req.Username)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return recordstore.Record{}, err
	}

	record := recordstore.Record{
		Time:      time.Now().UTC(),
		UserStats: stats,
	}
	if err := s.appendRecord(ctx, req.StorePath, record); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return recordstore.Record{}, err
	}
	slog.InfoContext(
		ctx, "recorded user stats",
		"store", req.StorePath,
		"score", stats.Score,
		"workunits", stats.WorkUnits,
	)

	if s.mirror != nil {
		// the CSV row already landed, so a mirror failure is not a
		// failed run; the mirror can be rebuilt from the store
		if err := s.mirror.Push(ctx, record); err != nil {
			span.RecordError(err)
			slog.WarnContext(ctx, "failed to mirror snapshot", "err", err)
		}
	}

	return record, nil
}

func (s Service) fetchSummary(ctx context.Context, sourceURL string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()

	slog.InfoContext(ctx, "retrieving user summary", "source", sourceURL)
	doc, err := fetch.Fetch(ctx, sourceURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return doc, nil
}

func (s Service) extractUser(ctx context.Context, doc []byte, username string) (extract.UserStats, error) {
	ctx, span := tracer.Start(ctx, "Extract")
	defer span.End()

	slog.InfoContext(ctx, "searching summary for user", "username", username, "compressed_bytes", len(doc))
	stats, err := extract.Extract(doc, username)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return extract.UserStats{}, err
	}
	return stats, nil
}

func (s Service) appendRecord(ctx context.Context, storePath string, record recordstore.Record) error {
	_, span := tracer.Start(ctx, "Append")
	defer span.End()

	if err := recordstore.Append(storePath, record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
