package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jask/aquaflow/internal/database/repository"
	"github.com/jask/aquaflow/internal/realtime"
	"github.com/jask/aquaflow/internal/storage"
)

// MaxUploadFiles caps the files accepted by one Upload call.
const MaxUploadFiles = 10

type AttachmentService struct {
	*base
}

// FileUpload is one file from a multipart form.
type FileUpload struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// Upload stores files under the request (and quote, when given) and records
// them. Either every file is kept or none is.
func (s *AttachmentService) Upload(ctx context.Context, actor Actor, requestID, quoteID string, files []FileUpload) ([]repository.Attachment, error) {
	if s.store == nil {
		return nil, fmt.Errorf("attachments: storage not configured")
	}
	if len(files) == 0 {
		return nil, invalid("attachment", "no files uploaded")
	}
	if len(files) > MaxUploadFiles {
		return nil, invalid("attachment", fmt.Sprintf("at most %d files per upload", MaxUploadFiles))
	}
	req, err := s.loadVisible(ctx, actor, requestID)
	if err != nil {
		return nil, err
	}
	var quotePtr *string
	if quoteID = strings.TrimSpace(quoteID); quoteID != "" {
		q, err := s.quotes.Get(ctx, requestID, quoteID)
		if err != nil {
			return nil, fmt.Errorf("load quote: %w", err)
		}
		if q == nil {
			return nil, ErrNotFound
		}
		quotePtr = &quoteID
	}

	var written []string
	cleanup := func() {
		for _, key := range written {
			if err := s.store.Delete(key); err != nil {
				s.log.Warn("remove orphaned blob", zap.String("key", key), zap.Error(err))
			}
		}
	}

	// blobs first, then every row in one transaction
	now := s.now()
	out := make([]repository.Attachment, 0, len(files))
	for _, f := range files {
		name := storage.SanitizeName(f.Name)
		key := storage.Key(requestID, quoteID, name)
		obj, err := s.store.Put(ctx, key, f.Body)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("store %s: %w", name, err)
		}
		written = append(written, obj.Key)
		out = append(out, repository.Attachment{
			ID:          uuid.NewString(),
			RequestID:   requestID,
			QuoteID:     quotePtr,
			FileName:    name,
			MimeType:    contentType(f.ContentType, name),
			FileURL:     obj.Key,
			SizeBytes:   obj.Size,
			ContentHash: obj.Hash,
			CreatedAt:   now,
		})
	}
	err = s.tx(ctx, func(tx *sql.Tx) error {
		attachments := s.attachments.WithTx(tx)
		for _, a := range out {
			if err := attachments.Insert(ctx, a); err != nil {
				return fmt.Errorf("record %s: %w", a.FileName, err)
			}
		}
		return nil
	})
	if err != nil {
		cleanup()
		return nil, err
	}
	s.log.Info("attachments uploaded", zap.String("request_id", requestID), zap.Int("files", len(out)))
	for _, a := range out {
		s.publish("quote_attachments", realtime.ActionInsert, a.ID, req)
	}
	return out, nil
}

// Open returns the blob and its metadata when the actor may see the request.
func (s *AttachmentService) Open(ctx context.Context, actor Actor, attachmentID string) (io.ReadSeekCloser, *repository.Attachment, error) {
	if s.store == nil {
		return nil, nil, fmt.Errorf("attachments: storage not configured")
	}
	a, err := s.attachments.Get(ctx, attachmentID)
	if err != nil {
		return nil, nil, fmt.Errorf("load attachment: %w", err)
	}
	if a == nil {
		return nil, nil, ErrNotFound
	}
	if _, err := s.loadVisible(ctx, actor, a.RequestID); err != nil {
		return nil, nil, err
	}
	rc, err := s.store.Open(a.FileURL)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: blob %s", ErrNotFound, a.FileURL)
	}
	return rc, a, nil
}

func contentType(declared, name string) string {
	if ct := strings.TrimSpace(declared); ct != "" {
		return ct
	}
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
