// Package catalog manages reference color images and the binary assets
// belonging to colorization jobs: uploaded infrared images and downloaded
// results.
package catalog

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"leopacolor/internal/domain"
	"leopacolor/internal/storage"
)

// Catalog provides CRUD over reference-image records and their backing files.
type Catalog struct {
	refs  *storage.RecordStore[domain.ReferenceImage]
	files *storage.FileStore
}

// New wires a Catalog over the given record and file stores.
func New(refs *storage.RecordStore[domain.ReferenceImage], files *storage.FileStore) *Catalog {
	return &Catalog{refs: refs, files: files}
}

// SaveReference stores the uploaded bytes under a fresh id and appends the
// metadata record.
func (c *Catalog) SaveReference(ctx context.Context, filename string, content []byte) (domain.ReferenceImage, error) {
	id := uuid.NewString()
	key := path.Join(storage.DirReferences, id+extOrDefault(filename))
	if _, err := c.files.Write(ctx, key, content); err != nil {
		return domain.ReferenceImage{}, fmt.Errorf("catalog: save reference file: %w", err)
	}

	ref := domain.ReferenceImage{
		ID:        id,
		Filename:  filename,
		CreatedAt: time.Now().UTC(),
		URL:       "/data/" + key,
	}

	refs, err := c.refs.Load()
	if err != nil {
		return domain.ReferenceImage{}, err
	}
	refs[id] = ref
	if err := c.refs.Save(refs); err != nil {
		return domain.ReferenceImage{}, err
	}
	return ref, nil
}

// ListReferences returns all reference records; order is undefined.
func (c *Catalog) ListReferences(ctx context.Context) ([]domain.ReferenceImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	refs, err := c.refs.Load()
	if err != nil {
		return nil, err
	}
	out := make([]domain.ReferenceImage, 0, len(refs))
	for _, ref := range refs {
		out = append(out, ref)
	}
	return out, nil
}

// GetReference returns the record for id, or domain.ErrNotFound.
func (c *Catalog) GetReference(ctx context.Context, id string) (domain.ReferenceImage, error) {
	if err := ctx.Err(); err != nil {
		return domain.ReferenceImage{}, err
	}
	refs, err := c.refs.Load()
	if err != nil {
		return domain.ReferenceImage{}, err
	}
	ref, ok := refs[id]
	if !ok {
		return domain.ReferenceImage{}, domain.ErrNotFound
	}
	return ref, nil
}

// DeleteReference removes the backing file and then the record. It reports
// whether a record existed. The two removals are not transactional; the file
// goes first, so a crash in between leaves a record pointing at nothing.
func (c *Catalog) DeleteReference(ctx context.Context, id string) (bool, error) {
	refs, err := c.refs.Load()
	if err != nil {
		return false, err
	}
	ref, ok := refs[id]
	if !ok {
		return false, nil
	}

	key := path.Join(storage.DirReferences, path.Base(ref.URL))
	if err := c.files.Remove(ctx, key); err != nil {
		return false, fmt.Errorf("catalog: delete reference file: %w", err)
	}

	delete(refs, id)
	if err := c.refs.Save(refs); err != nil {
		return false, err
	}
	return true, nil
}

// ResolveReferenceFile locates the on-disk file for id by listing the
// references directory, independently of the metadata record. It therefore
// succeeds for files present without a record and fails when the record
// exists but the file was removed externally.
func (c *Catalog) ResolveReferenceFile(ctx context.Context, id string) (string, error) {
	return c.files.ResolveByStem(ctx, storage.DirReferences, id)
}

// SaveUpload stores an uploaded infrared image and returns the generated
// upload id and storage key.
func (c *Catalog) SaveUpload(ctx context.Context, filename string, content []byte) (string, string, error) {
	id := uuid.NewString()
	key := path.Join(storage.DirUploads, id+extOrDefault(filename))
	if _, err := c.files.Write(ctx, key, content); err != nil {
		return "", "", fmt.Errorf("catalog: save upload: %w", err)
	}
	return id, key, nil
}

// SaveResult stores a colorization result image named by job id and returns
// its storage key.
func (c *Catalog) SaveResult(ctx context.Context, jobID string, content []byte, ext string) (string, error) {
	if ext == "" {
		ext = ".png"
	}
	key := path.Join(storage.DirResults, jobID+ext)
	if _, err := c.files.Write(ctx, key, content); err != nil {
		return "", fmt.Errorf("catalog: save result: %w", err)
	}
	return key, nil
}

// UploadPath maps a stored upload filename to its absolute path.
func (c *Catalog) UploadPath(name string) string {
	return c.files.Path(path.Join(storage.DirUploads, name))
}

// ResultPath maps a stored result filename to its absolute path.
func (c *Catalog) ResultPath(name string) string {
	return c.files.Path(path.Join(storage.DirResults, name))
}

func extOrDefault(filename string) string {
	if ext := filepath.Ext(filename); ext != "" {
		return ext
	}
	return ".jpg"
}
