// Package artifact writes the terminal record of each run to a blob bucket.
package artifact

import (
	"context"
	"encoding/json"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/rotisserie/eris"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob" // gs:// driver
	_ "gocloud.dev/blob/s3blob"  // s3:// driver

	"github.com/sells-group/leadgen-cli/internal/model"
)

const zstdExt = ".zst"

// Options configures a Writer.
type Options struct {
	// BucketURL is a gocloud bucket URL. When empty, Dir is opened as a
	// local directory bucket.
	BucketURL string
	Dir       string
	Prefix    string
	Compress  bool
}

// Writer persists run artifacts. It is safe for concurrent use.
type Writer struct {
	bucket   *blob.Bucket
	prefix   string
	compress bool
	enc      *zstd.Encoder
	dec      *zstd.Decoder
}

// Open opens the configured bucket.
func Open(ctx context.Context, opts Options) (*Writer, error) {
	var (
		bucket *blob.Bucket
		err    error
	)
	switch {
	case opts.BucketURL != "":
		bucket, err = blob.OpenBucket(ctx, opts.BucketURL)
	case opts.Dir != "":
		bucket, err = fileblob.OpenBucket(opts.Dir, &fileblob.Options{CreateDir: true})
	default:
		return nil, eris.New("artifact: bucket url or dir is required")
	}
	if err != nil {
		return nil, eris.Wrap(err, "artifact: open bucket")
	}
	return NewWriter(bucket, opts.Prefix, opts.Compress)
}

// NewWriter wraps an already open bucket.
func NewWriter(bucket *blob.Bucket, prefix string, compress bool) (*Writer, error) {
	w := &Writer{bucket: bucket, prefix: strings.Trim(prefix, "/"), compress: compress}
	var err error
	if w.enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault)); err != nil {
		return nil, eris.Wrap(err, "artifact: create zstd encoder")
	}
	if w.dec, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1)); err != nil {
		return nil, eris.Wrap(err, "artifact: create zstd decoder")
	}
	return w, nil
}

// RunKey returns the object key of a run's full record.
func (w *Writer) RunKey(runID string) string {
	return w.key(runID, "run.json")
}

// SummaryKey returns the object key of a run's summary.
func (w *Writer) SummaryKey(runID string) string {
	return w.key(runID, "summary.json")
}

func (w *Writer) key(runID, name string) string {
	k := path.Join(w.prefix, runID, name)
	if w.compress {
		k += zstdExt
	}
	return k
}

// WriteRun writes the full run (leads, attempts, summary) and a standalone
// summary object. It returns the key of the full record.
func (w *Writer) WriteRun(ctx context.Context, run *model.Run) (string, error) {
	if run == nil || run.ID == "" {
		return "", eris.New("artifact: run id is required")
	}
	key := w.RunKey(run.ID)
	if err := w.writeJSON(ctx, key, run); err != nil {
		return "", err
	}
	if err := w.writeJSON(ctx, w.SummaryKey(run.ID), run.Summary); err != nil {
		return "", err
	}
	return key, nil
}

// ReadSummary loads the summary written by WriteRun.
func (w *Writer) ReadSummary(ctx context.Context, runID string) (*model.Summary, error) {
	var s model.Summary
	if err := w.readJSON(ctx, w.SummaryKey(runID), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ReadRun loads the full run record written by WriteRun.
func (w *Writer) ReadRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	if err := w.readJSON(ctx, w.RunKey(runID), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (w *Writer) writeJSON(ctx context.Context, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "artifact: marshal %s", key)
	}
	opts := &blob.WriterOptions{ContentType: "application/json"}
	if w.compress {
		data = w.enc.EncodeAll(data, nil)
		opts.ContentEncoding = "zstd"
	}

	bw, err := w.bucket.NewWriter(ctx, key, opts)
	if err != nil {
		return eris.Wrapf(err, "artifact: create writer for %s", key)
	}
	if _, err := bw.Write(data); err != nil {
		bw.Close() //nolint:errcheck
		return eris.Wrapf(err, "artifact: write %s", key)
	}
	return eris.Wrapf(bw.Close(), "artifact: close writer for %s", key)
}

func (w *Writer) readJSON(ctx context.Context, key string, v any) error {
	r, err := w.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return eris.Wrapf(err, "artifact: open %s", key)
	}
	defer r.Close() //nolint:errcheck

	data, err := io.ReadAll(r)
	if err != nil {
		return eris.Wrapf(err, "artifact: read %s", key)
	}
	if strings.HasSuffix(key, zstdExt) {
		if data, err = w.dec.DecodeAll(data, nil); err != nil {
			return eris.Wrapf(err, "artifact: decompress %s", key)
		}
	}
	return eris.Wrapf(json.Unmarshal(data, v), "artifact: unmarshal %s", key)
}

// Close releases the bucket and codec resources.
func (w *Writer) Close() error {
	w.dec.Close()
	if err := w.enc.Close(); err != nil {
		return eris.Wrap(err, "artifact: close encoder")
	}
	return eris.Wrap(w.bucket.Close(), "artifact: close bucket")
}
