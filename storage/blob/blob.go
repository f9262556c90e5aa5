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
	"net/url"
	"strings"

	"github.com/gorse-io/widedeep/config"
	"github.com/juju/errors"
)

// Store keeps named artifacts. Creating an existing name overwrites it.
type Store interface {
	// Open an artifact for reading. It returns errors.NotFound if the artifact doesn't exist.
	Open(name string) (io.ReadCloser, error)
	// Create an artifact for writing. The artifact is committed when the writer is closed
	// and Close returns any error of the write or upload.
	Create(name string) (io.WriteCloser, error)
	List() ([]string, error)
	Remove(name string) error
}

// Open creates a store from its URL. Supported schemes are file, s3, gcs (or gs) and
// azblob. An empty URL or a path without scheme is a local directory.
func Open(rawURL string, cfg config.StorageConfig) (Store, error) {
	if rawURL == "" {
		return NewPOSIX("."), nil
	}
	if !strings.Contains(rawURL, "://") {
		return NewPOSIX(rawURL), nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.NewNotValid(err, "invalid storage url")
	}
	prefix := strings.Trim(u.Path, "/")
	switch u.Scheme {
	case "file":
		return NewPOSIX(u.Host + u.Path), nil
	case "s3":
		s3Config := cfg.S3
		if u.User != nil {
			s3Config.AccessKeyID = u.User.Username()
			s3Config.SecretAccessKey, _ = u.User.Password()
		}
		return NewS3(s3Config, u.Host, prefix)
	case "gcs", "gs":
		return NewGCS(cfg.GCS, u.Host, prefix)
	case "azblob":
		azureConfig := cfg.Azure
		if u.User != nil {
			azureConfig.AccountName = u.User.Username()
			azureConfig.AccountKey, _ = u.User.Password()
		}
		return NewAzureBlob(azureConfig, u.Host, prefix)
	default:
		return nil, errors.NotValidf("storage scheme %q", u.Scheme)
	}
}

// uploadWriter streams writes into an upload running in background.
type uploadWriter struct {
	*io.PipeWriter
	done chan struct{}
	err  error
}

func newUploadWriter(upload func(r io.Reader) error) *uploadWriter {
	pr, pw := io.Pipe()
	w := &uploadWriter{PipeWriter: pw, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		w.err = upload(pr)
		// unblock the writer if the upload stopped early
		_ = pr.CloseWithError(w.err)
	}()
	return w
}

// Close finishes the stream and waits for the upload.
func (w *uploadWriter) Close() error {
	if err := w.PipeWriter.Close(); err != nil {
		return errors.Trace(err)
	}
	<-w.done
	return errors.Trace(w.err)
}
