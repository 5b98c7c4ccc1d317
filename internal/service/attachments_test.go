package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUploadAndOpen(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	req := h.submit(t, customer)
	q := h.quote(t, req.ID, 10000)

	files := []FileUpload{
		{Name: "leak photo.jpg", ContentType: "image/jpeg", Body: strings.NewReader("jpeg-bytes")},
		{Name: "../../etc/passwd.txt", Body: strings.NewReader("notes")},
	}
	atts, err := h.svc.Attachments.Upload(ctx, customer, req.ID, q.ID, files)
	require.NoError(t, err)
	require.Len(t, atts, 2)
	require.Equal(t, req.ID+"/"+q.ID+"/leak_photo.jpg", atts[0].FileURL)
	require.Equal(t, "passwd.txt", atts[1].FileName)
	require.Equal(t, "text/plain; charset=utf-8", atts[1].MimeType)
	require.EqualValues(t, len("jpeg-bytes"), atts[0].SizeBytes)
	require.Len(t, atts[0].ContentHash, 64)

	rc, meta, err := h.svc.Attachments.Open(ctx, admin, atts[0].ID)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "jpeg-bytes", string(body))
	require.Equal(t, "image/jpeg", meta.MimeType)

	_, _, err = h.svc.Attachments.Open(ctx, stranger, atts[0].ID)
	require.ErrorIs(t, err, ErrNotFound)

	got, err := h.svc.Requests.Get(ctx, customer, req.ID)
	require.NoError(t, err)
	require.Len(t, got.Attachments, 2)
}

func TestUploadLimits(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	req := h.submit(t, customer)

	var verr *ValidationError
	_, err := h.svc.Attachments.Upload(ctx, customer, req.ID, "", nil)
	require.ErrorAs(t, err, &verr)

	many := make([]FileUpload, MaxUploadFiles+1)
	for i := range many {
		many[i] = FileUpload{Name: "f.txt", Body: strings.NewReader("x")}
	}
	_, err = h.svc.Attachments.Upload(ctx, customer, req.ID, "", many)
	require.ErrorAs(t, err, &verr)

	_, err = h.svc.Attachments.Upload(ctx, stranger, req.ID, "", many[:1])
	require.ErrorIs(t, err, ErrNotFound)

	_, err = h.svc.Attachments.Upload(ctx, customer, req.ID, "no-such-quote", many[:1])
	require.ErrorIs(t, err, ErrNotFound)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestUploadIsAllOrNothing(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	req := h.submit(t, customer)

	files := []FileUpload{
		{Name: "a.jpg", Body: strings.NewReader("first")},
		{Name: "b.jpg", Body: failingReader{}},
	}
	_, err := h.svc.Attachments.Upload(ctx, customer, req.ID, "", files)
	require.Error(t, err)

	got, err := h.svc.Requests.Get(ctx, customer, req.ID)
	require.NoError(t, err)
	require.Empty(t, got.Attachments)
	_, err = h.store.Open(req.ID + "/a.jpg")
	require.Error(t, err)

	// a retry with good files succeeds from scratch
	files[1].Body = strings.NewReader("second")
	files[0].Body = strings.NewReader("first")
	atts, err := h.svc.Attachments.Upload(ctx, customer, req.ID, "", files)
	require.NoError(t, err)
	require.Len(t, atts, 2)
	for _, a := range atts {
		rc, _, err := h.svc.Attachments.Open(ctx, customer, a.ID)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
	}
}
