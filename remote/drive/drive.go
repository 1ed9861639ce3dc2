// Package drive implements remote.Transport over the Google Drive v3 API,
// storing the save file in the application-private appDataFolder space.
package drive

import (
	"context"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teranos/savesync/errors"
	"github.com/teranos/savesync/logger"
	"github.com/teranos/savesync/remote"
)

// Scope grants access to the application's private appDataFolder only
const Scope = drive.DriveAppdataScope

// maxDownloadBytes bounds a single Get
const maxDownloadBytes = 16 << 20

// Transport talks to Drive v3
type Transport struct {
	files  *drive.FilesService
	logger *zap.SugaredLogger
}

var _ remote.Transport = (*Transport)(nil)

// New creates a Drive transport. Callers pass option.WithTokenSource for real
// use, or option.WithEndpoint plus option.WithoutAuthentication against a fake.
func New(ctx context.Context, log *zap.SugaredLogger, opts ...option.ClientOption) (*Transport, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create drive service")
	}
	return &Transport{files: svc.Files, logger: log}, nil
}

// List returns files named name in the given space, following page tokens
func (t *Transport) List(ctx context.Context, name, namespace string) ([]remote.File, error) {
	var out []remote.File
	pageToken := ""

	for {
		call := t.files.List().
			Spaces(namespace).
			Q("name = '" + escapeQuery(name) + "'").
			Fields("nextPageToken, files(id, name)").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		list, err := call.Do()
		if err != nil {
			return nil, mapError(err, "list "+name)
		}
		for _, f := range list.Files {
			out = append(out, remote.File{ID: f.Id, Name: f.Name})
		}

		if list.NextPageToken == "" {
			break
		}
		pageToken = list.NextPageToken
	}

	logger.FromContext(ctx, t.logger).Debugw("Drive list",
		logger.FieldFilename, name,
		logger.FieldNamespace, namespace,
		logger.FieldCount, len(out),
	)
	return out, nil
}

// Create makes an empty file whose parent is the namespace space
func (t *Transport) Create(ctx context.Context, name, namespace string) (string, error) {
	f, err := t.files.Create(&drive.File{
		Name:    name,
		Parents: []string{namespace},
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", mapError(err, "create "+name)
	}

	logger.FromContext(ctx, t.logger).Debugw("Drive file created",
		logger.FieldFilename, name,
		logger.FieldHandle, f.Id,
	)
	return f.Id, nil
}

// Get downloads the file's media content
func (t *Transport) Get(ctx context.Context, id string) (string, error) {
	resp, err := t.files.Get(id).Context(ctx).Download()
	if err != nil {
		return "", mapError(err, "get "+id)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return "", errors.Wrapf(err, "failed to read drive file %s", id)
	}
	return string(data), nil
}

// Patch uploads content as the file's new media, leaving metadata untouched
func (t *Transport) Patch(ctx context.Context, id, content string) error {
	_, err := t.files.Update(id, &drive.File{}).
		Media(strings.NewReader(content), googleapi.ContentType("application/json")).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return mapError(err, "patch "+id)
	}
	return nil
}

// escapeQuery escapes a literal for use inside a single-quoted Drive query string
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

// mapError marks Drive failures with the errors sentinels
func mapError(err error, op string) error {
	wrapped := errors.Wrapf(err, "drive %s", op)

	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Mark(wrapped, errors.ErrTimeout)
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return wrapped
	}

	switch {
	case gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden:
		return errors.WithHint(errors.Mark(wrapped, errors.ErrUnauthorized),
			"sign in again; the token may have expired or lack the drive.appdata scope")
	case gerr.Code == http.StatusNotFound:
		return errors.Mark(wrapped, errors.ErrNotFound)
	case gerr.Code == http.StatusConflict:
		return errors.Mark(wrapped, errors.ErrConflict)
	case gerr.Code == http.StatusBadRequest:
		return errors.Mark(wrapped, errors.ErrInvalidRequest)
	case gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500:
		return errors.Mark(wrapped, errors.ErrServiceUnavailable)
	}
	return wrapped
}
