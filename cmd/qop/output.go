// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
)

const gcsScheme = "gs://"

// parseGCSURL splits gs://bucket/object. ok is false for local paths.
func parseGCSURL(path string) (bucket, object string, ok bool, err error) {
	rest, found := strings.CutPrefix(path, gcsScheme)
	if !found {
		return "", "", false, nil
	}
	bucket, object, _ = strings.Cut(rest, "/")
	if bucket == "" || object == "" {
		return "", "", true, fmt.Errorf("invalid GCS URL %q: want gs://bucket/object", path)
	}
	return bucket, object, true, nil
}

// gcsWriter commits the object on Close, then closes the client.
type gcsWriter struct {
	*storage.Writer
	client *storage.Client
	cancel context.CancelFunc
}

func (w *gcsWriter) Close() error {
	defer w.cancel()
	err := w.Writer.Close()
	if cerr := w.client.Close(); err == nil {
		err = cerr
	}
	return err
}

// createOutput opens path for writing. gs:// URLs are written as GCS objects
// with application default credentials.
func createOutput(ctx context.Context, path string) (io.WriteCloser, error) {
	bucket, object, isGCS, err := parseGCSURL(path)
	if err != nil {
		return nil, err
	}
	if !isGCS {
		return os.Create(path)
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	w := client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/vnd.apache.arrow.stream"
	return &gcsWriter{Writer: w, client: client, cancel: cancel}, nil
}

// abortOutput discards a partially written output.
func abortOutput(w io.WriteCloser, path string) {
	if gw, ok := w.(*gcsWriter); ok {
		// A cancelled upload leaves no object behind.
		gw.cancel()
		gw.Writer.Close()
		gw.client.Close()
		return
	}
	w.Close()
	os.Remove(path)
}
