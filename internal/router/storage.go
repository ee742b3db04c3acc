package router

import (
	"context"
	"fmt"
)

// Storage request methods.
const (
	methodGet    = "get"
	methodPut    = "put"
	methodPost   = "post"
	methodDelete = "delete"
)

type storageQuery struct {
	Path    string `json:"path"`
	NewPath string `json:"newPath"`
	S3Path  string `json:"s3path"`
	Name    string `json:"name"`
}

// handleStorage serves /storage by payload method:
//
//	get     drive list
//	put     fetch the archive at s3path in the background
//	post    list path, or rename path to newPath
//	delete  reserved
func (r *Router) handleStorage(ctx context.Context, req *Request) (Response, error) {
	if r.storage == nil {
		return Response{}, fmt.Errorf("%w: storage", ErrUnavailable)
	}
	var q storageQuery
	if err := req.Decode(&q); err != nil {
		return Response{}, err
	}

	switch req.Method {
	case methodGet:
		return OK(r.storage.Drives()), nil
	case methodPut:
		if q.S3Path == "" {
			return NoContent(), nil
		}
		r.download(q.S3Path, q.Name)
		return OK(map[string]string{"path": q.Path}), nil
	case methodPost:
		if q.NewPath != "" {
			entry, err := r.storage.Rename(q.Path, q.NewPath)
			if err != nil {
				return Response{}, err
			}
			return OK(entry), nil
		}
		if q.Path == "" {
			return NoContent(), nil
		}
		entries, err := r.storage.ListFolder(q.Path)
		if err != nil {
			return Response{}, err
		}
		return OK(entries), nil
	case methodDelete:
		return NoContent(), nil
	}
	return NoContent(), nil
}

// download runs an archive fetch on its own goroutine, tied to the
// router's lifetime rather than the request.
func (r *Router) download(url, name string) {
	started := r.track(func() {
		files, err := r.storage.DownloadAndExtract(r.ctx, url, name)
		if err != nil {
			r.errors.HandleError(fmt.Errorf("downloading %q: %w", name, err))
			return
		}
		r.logger.Info("print files received", "name", name, "files", len(files))
	})
	if !started {
		r.logger.Warn("router closed, download not started", "name", name)
	}
}
