// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipindex

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// Extract writes the named entry below dest, which must already exist.
// Missing parent directories are created; an existing target is never
// overwritten. A nil codec selects StoredCodec.
func (r *Reader) Extract(name, dest string, codec Codec) error {
	return r.ExtractWithContext(context.Background(), name, dest, codec)
}

// ExtractWithContext extracts one entry with context support.
func (r *Reader) ExtractWithContext(ctx context.Context, name, dest string, codec Codec) error {
	e, err := r.Entry(name)
	if err != nil {
		return err
	}
	if codec == nil {
		codec = StoredCodec{}
	}
	if !e.IsDir() {
		if err := checkMethod(e, codec); err != nil {
			return err
		}
	}

	dest = filepath.Clean(dest)
	if err := r.checkDestination(dest); err != nil {
		return err
	}
	fpath, err := targetPath(dest, e)
	if err != nil {
		return err
	}

	if e.IsDir() {
		err = r.config.Fs.MkdirAll(fpath, 0755)
	} else {
		err = r.extractFile(ctx, e, fpath, codec)
	}
	r.notify(e, err)
	return err
}

// ExtractAll extracts every entry below dest, which must already exist.
// Each file entry is decoded with the supplied codec matching its method;
// StoredCodec is always available. Methods, paths and targets of all entries
// are checked before the first write, then directories are created, then
// files are extracted by up to Config.Workers goroutines.
func (r *Reader) ExtractAll(dest string, codecs ...Codec) error {
	return r.ExtractAllWithContext(context.Background(), dest, codecs...)
}

// ExtractAllWithContext extracts the archive concurrently with context support.
func (r *Reader) ExtractAllWithContext(ctx context.Context, dest string, codecs ...Codec) error {
	if err := r.checkOpen(); err != nil {
		return err
	}

	dest = filepath.Clean(dest)
	if err := r.checkDestination(dest); err != nil {
		return err
	}

	type job struct {
		entry *Entry
		path  string
		codec Codec
	}

	set := newCodecSet(codecs)
	var (
		errs  []error
		dirs  []job
		files []job
	)

	for _, e := range r.index.Entries() {
		fpath, err := targetPath(dest, e)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if e.IsDir() {
			dirs = append(dirs, job{entry: e, path: fpath})
			continue
		}

		codec, err := set.lookup(e, codecs)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Name, err))
			continue
		}
		if exists, err := afero.Exists(r.config.Fs, fpath); err != nil {
			errs = append(errs, err)
			continue
		} else if exists {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDestinationExists, fpath))
			continue
		}
		files = append(files, job{entry: e, path: fpath, codec: codec})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	// Create directories upfront so file writes never race against missing parents.
	for _, d := range dirs {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := r.config.Fs.MkdirAll(d.path, 0755)
		r.notify(d.entry, err)
		if err != nil {
			return fmt.Errorf("create directory %s: %w", d.path, err)
		}
	}
	for _, f := range files {
		if err := r.config.Fs.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
			return fmt.Errorf("create directory for %s: %w", f.entry.Name, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.config.Workers, 1))

	for _, f := range files {
		g.Go(func() error {
			err := r.extractFile(gctx, f.entry, f.path, f.codec)
			r.notify(f.entry, err)
			if err != nil {
				return fmt.Errorf("failed to extract %s: %w", f.entry.Name, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	// Directory times are restored last because writing files updates them.
	for i := len(dirs) - 1; i >= 0; i-- {
		d := dirs[i]
		if err := r.config.Fs.Chtimes(d.path, time.Now(), d.entry.ModTime()); err != nil {
			r.dec.log.WithError(err).WithField("name", d.entry.Name).Debug("restore directory time")
		}
	}
	return nil
}

func (r *Reader) checkDestination(dest string) error {
	ok, err := afero.DirExists(r.config.Fs, dest)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrDestinationMissing, dest)
	}
	return nil
}

func (r *Reader) notify(e *Entry, err error) {
	fields := logrus.Fields{"name": e.Name}
	if err != nil {
		r.dec.log.WithFields(fields).WithError(err).Debug("extract failed")
	} else {
		r.dec.log.WithFields(fields).Debug("extracted")
	}
	if r.config.OnEntryExtracted != nil {
		r.config.OnEntryExtracted(e, err)
	}
}

// targetPath joins the entry key to dest and rejects paths escaping it (Zip Slip).
func targetPath(dest string, e *Entry) (string, error) {
	rel := filepath.FromSlash(e.Key())
	if rel == "." || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %s", ErrInsecurePath, e.Name)
	}
	return filepath.Join(dest, rel), nil
}

// extractFile streams e through codec into a new file at fpath. Partial
// output is removed when decoding or verification fails.
func (r *Reader) extractFile(ctx context.Context, e *Entry, fpath string, codec Codec) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.checkOpen(); err != nil {
		return err
	}

	src, err := r.payload(e)
	if err != nil {
		return err
	}

	if err := r.config.Fs.MkdirAll(filepath.Dir(fpath), 0755); err != nil {
		return err
	}

	perm := e.Mode() & fs.ModePerm
	if perm == 0 {
		perm = 0644
	}

	dst, err := r.config.Fs.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrDestinationExists, fpath)
		}
		return err
	}
	defer func() {
		if cerr := dst.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			r.config.Fs.Remove(fpath)
		}
	}()

	cw := newChecksumWriter(dst)
	if _, err := expandEntry(codec, cw, &contextReader{ctx: ctx, r: src}, e); err != nil {
		return err
	}
	if err := cw.verify(e); err != nil {
		return err
	}

	// Best-effort attempt to restore the modification time.
	if err := r.config.Fs.Chtimes(fpath, time.Now(), e.ModTime()); err != nil {
		r.dec.log.WithError(err).WithField("name", e.Name).Debug("restore file time")
	}
	return nil
}
