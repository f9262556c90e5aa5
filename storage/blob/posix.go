// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package blob

import (
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/juju/errors"
)

type POSIX struct {
	dir string
}

func NewPOSIX(dir string) *POSIX {
	return &POSIX{dir: dir}
}

// Open a file for reading.
func (p *POSIX) Open(name string) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Join(p.dir, name))
	if os.IsNotExist(err) {
		return nil, errors.NewNotFound(err, name)
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	return file, nil
}

// Create a file for writing. Data goes to a temporary file which replaces the target on Close,
// so readers never observe a partially written file.
func (p *POSIX) Create(name string) (io.WriteCloser, error) {
	fullPath := filepath.Join(p.dir, name)
	if err := os.MkdirAll(filepath.Dir(fullPath), os.ModePerm); err != nil {
		return nil, errors.Trace(err)
	}
	tempPath := filepath.Join(filepath.Dir(fullPath), "."+filepath.Base(fullPath)+"."+uuid.NewString())
	file, err := os.Create(tempPath)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &posixWriter{file: file, path: fullPath}, nil
}

type posixWriter struct {
	file *os.File
	path string
	err  error
}

func (w *posixWriter) Write(p []byte) (int, error) {
	n, err := w.file.Write(p)
	if err != nil && w.err == nil {
		w.err = err
	}
	return n, err
}

func (w *posixWriter) Close() error {
	closeErr := w.file.Close()
	if w.err == nil {
		w.err = closeErr
	}
	if w.err != nil {
		_ = os.Remove(w.file.Name())
		return errors.Trace(w.err)
	}
	return errors.Trace(os.Rename(w.file.Name(), w.path))
}

// List files in the directory recursively, skipping uncommitted temporary files.
func (p *POSIX) List() ([]string, error) {
	var names []string
	err := filepath.Walk(p.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || len(info.Name()) > 0 && info.Name()[0] == '.' {
			return nil
		}
		name, err := filepath.Rel(p.dir, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(name))
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	sort.Strings(names)
	return names, nil
}

func (p *POSIX) Remove(name string) error {
	err := os.Remove(filepath.Join(p.dir, name))
	if os.IsNotExist(err) {
		return errors.NewNotFound(err, name)
	}
	return errors.Trace(err)
}
