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

package dataset

import (
	"bufio"

	"github.com/gorse-io/widedeep/common/encoding"
	"github.com/gorse-io/widedeep/storage/blob"
	"github.com/juju/errors"
)

const (
	suffixCSR   = "_csr.pkl"
	suffixDense = "_dns.pkl"
	suffixLabel = "_label.pkl"
)

// SaveObject serializes an object to a named artifact, replacing any previous content.
func SaveObject(store blob.Store, name string, obj any) error {
	w, err := store.Create(name)
	if err != nil {
		return errors.Annotatef(err, "failed to create %s", name)
	}
	buf := bufio.NewWriter(w)
	if err = encoding.WriteGob(buf, obj); err == nil {
		err = buf.Flush()
	}
	if closeErr := w.Close(); err == nil {
		err = closeErr
	}
	return errors.Annotatef(err, "failed to save %s", name)
}

// LoadObject deserializes an object saved by SaveObject.
func LoadObject(store blob.Store, name string, obj any) error {
	r, err := store.Open(name)
	if err != nil {
		return errors.Annotatef(err, "failed to open %s", name)
	}
	defer r.Close()
	return errors.Annotatef(encoding.ReadGob(bufio.NewReader(r), obj), "failed to load %s", name)
}

// BundleNames returns the artifact names of a bundle saved with prefix.
func BundleNames(prefix string) []string {
	return []string{prefix + suffixCSR, prefix + suffixDense, prefix + suffixLabel}
}

// SaveBundle saves the sparse matrix, the dense matrix and the labels of a bundle
// as three artifacts.
func SaveBundle(store blob.Store, prefix string, bundle *FeatureBundle) error {
	names := BundleNames(prefix)
	if err := SaveObject(store, names[0], bundle.Sparse); err != nil {
		return err
	}
	if err := SaveObject(store, names[1], bundle.Dense); err != nil {
		return err
	}
	return SaveObject(store, names[2], bundle.Labels)
}

// LoadBundle loads a bundle saved by SaveBundle.
func LoadBundle(store blob.Store, prefix string) (*FeatureBundle, error) {
	names := BundleNames(prefix)
	bundle := &FeatureBundle{Sparse: new(CSRMatrix), Dense: new(DenseMatrix)}
	if err := LoadObject(store, names[0], bundle.Sparse); err != nil {
		return nil, err
	}
	if err := LoadObject(store, names[1], bundle.Dense); err != nil {
		return nil, err
	}
	if err := LoadObject(store, names[2], &bundle.Labels); err != nil {
		return nil, err
	}
	return bundle, nil
}
