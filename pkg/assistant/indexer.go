// SPDX-License-Identifier: Apache-2.0

package assistant

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jllopis/trendsurf/pkg/errors"
	"github.com/jllopis/trendsurf/pkg/telemetry"
)

// IndexHandle identifies a remote retrieval index built for one run.
type IndexHandle struct {
	ID     string
	FileID string
	Status IndexStatus
}

// Indexer uploads reference documents and waits for the remote index.
type Indexer struct {
	api  IndexAPI
	opts options
}

// NewIndexer returns an Indexer. Use WithPoll for the indexing poll bounds.
func NewIndexer(api IndexAPI, opts ...Option) *Indexer {
	return &Indexer{api: api, opts: newOptions(opts)}
}

// IndexDocument uploads the file at path, creates an index named name over it
// and polls at a fixed interval until the index is ready or failed.
//
// On error the handle still carries whatever remote resources were created,
// so the caller can pass it to Release.
func (ix *Indexer) IndexDocument(ctx context.Context, path, name string) (IndexHandle, error) {
	ctx, span := ix.opts.tracer.Start(ctx, "assistant.index_document")
	defer span.End()
	span.SetAttributes(attribute.String(telemetry.AttrDocument, filepath.Base(path)))

	var handle IndexHandle
	fail := func(err error) (IndexHandle, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "indexing failed")
		return handle, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fail(errors.New(errors.CodeInvalidInput, "read reference document", err).
			WithContext("path", path))
	}

	fileID, err := ix.api.UploadFile(ctx, filepath.Base(path), data)
	if err != nil {
		return fail(err)
	}
	handle.FileID = fileID
	ix.opts.logger.InfoContext(ctx, "document uploaded", "file_id", fileID, "path", path)

	indexID, err := ix.api.CreateIndex(ctx, name, []string{fileID})
	if err != nil {
		return fail(err)
	}
	span.SetAttributes(attribute.String(telemetry.AttrIndexID, indexID))
	ix.opts.logger.InfoContext(ctx, "index created", "index_id", indexID, "name", name)

	handle.ID = indexID
	attempts, err := ix.opts.poll.Until(ctx, "index "+indexID, func(ctx context.Context) (bool, error) {
		st, err := ix.api.GetIndex(ctx, indexID)
		if err != nil {
			return false, err
		}
		handle.Status = st
		if st.State() == IndexPending {
			ix.opts.logger.DebugContext(ctx, "indexing document", "index_id", indexID, "in_progress", st.InProgress)
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return fail(err)
	}

	state := handle.Status.State()
	span.SetAttributes(
		attribute.String(telemetry.AttrIndexState, state.String()),
		attribute.Int(telemetry.AttrPollAttempts, attempts),
	)

	switch state {
	case IndexReady:
		ix.opts.logger.InfoContext(ctx, "index ready", "index_id", indexID, "completed", handle.Status.Completed)
		return handle, nil
	case IndexFailed:
		err := errors.New(errors.CodeIndexingFailed, "document indexing failed", nil).
			WithContext("index_id", indexID).
			WithContext("failed", handle.Status.Failed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "index failed")
		ix.opts.logger.ErrorContext(ctx, "index failed", "index_id", indexID, "failed", handle.Status.Failed)
		return handle, err
	default:
		return fail(errors.New(errors.CodeInternal, "index poll ended in pending state", nil))
	}
}

// Release deletes the index and its uploaded file. Both deletions are
// attempted; failures are logged and returned joined. It ignores cancellation
// of ctx so a canceled run still cleans up.
func (ix *Indexer) Release(ctx context.Context, h IndexHandle) error {
	if h.ID == "" && h.FileID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	var errs []error
	if h.ID != "" {
		if err := ix.api.DeleteIndex(ctx, h.ID); err != nil {
			ix.opts.logger.WarnContext(ctx, "index delete failed", "index_id", h.ID, "error", err)
			errs = append(errs, err)
		} else {
			ix.opts.logger.InfoContext(ctx, "index deleted", "index_id", h.ID)
		}
	}
	if h.FileID != "" {
		if err := ix.api.DeleteFile(ctx, h.FileID); err != nil {
			ix.opts.logger.WarnContext(ctx, "file delete failed", "file_id", h.FileID, "error", err)
			errs = append(errs, err)
		} else {
			ix.opts.logger.InfoContext(ctx, "file deleted", "file_id", h.FileID)
		}
	}
	return stderrors.Join(errs...)
}
