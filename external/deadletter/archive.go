// Package deadletter stores jobs that used up their deliveries, either in a
// Cloud Storage bucket or in a local directory.
package deadletter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/bytedance/sonic"
	"github.com/codeGROOVE-dev/retry"
	"github.com/klauspost/compress/zstd"
	"github.com/riskibarqy/tm-alerts/internal/domain/job"
	"github.com/riskibarqy/tm-alerts/internal/platform/logging"
	"google.golang.org/api/iterator"
)

const (
	objectPrefix = "dl-"
	objectSuffix = ".json.zst"
	keyTimeFmt   = "20060102T150405.000000000Z"

	defaultListLimit = 50
)

type Config struct {
	Client   *storage.Client
	Bucket   string
	LocalDir string
	Attempts uint
	Logger   *logging.Logger
}

// Archive writes one compressed JSON object per dead letter. Keys start with
// the failure time so a reverse name sort lists the newest first.
type Archive struct {
	client   *storage.Client
	bucket   string
	localDir string
	attempts uint
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
	logger   *logging.Logger
}

func New(cfg Config) (*Archive, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.LocalDir == "" && (cfg.Client == nil || cfg.Bucket == "") {
		return nil, errors.New("dead letter archive needs a bucket with a client or a local dir")
	}
	if cfg.LocalDir != "" {
		if err := os.MkdirAll(cfg.LocalDir, 0o750); err != nil {
			return nil, fmt.Errorf("create dead letter dir: %w", err)
		}
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	attempts := cfg.Attempts
	if attempts == 0 {
		attempts = 3
	}

	return &Archive{
		client:   cfg.Client,
		bucket:   cfg.Bucket,
		localDir: cfg.LocalDir,
		attempts: attempts,
		encoder:  encoder,
		decoder:  decoder,
		logger:   logger.Named("deadletter"),
	}, nil
}

// ObjectKey returns the storage key of a dead letter.
func ObjectKey(dl job.DeadLetter) string {
	return objectPrefix + dl.FailedAt.UTC().Format(keyTimeFmt) + "-" + safeID(dl.ID) + objectSuffix
}

func (a *Archive) Put(ctx context.Context, dl job.DeadLetter) error {
	if strings.TrimSpace(dl.ID) == "" {
		return errors.New("dead letter id is required")
	}
	if dl.FailedAt.IsZero() {
		dl.FailedAt = time.Now().UTC()
	}

	raw, err := sonic.Marshal(dl)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	data := a.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2))
	key := ObjectKey(dl)

	if a.localDir != "" {
		path := filepath.Join(a.localDir, key)
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return fmt.Errorf("write dead letter: %w", err)
		}
		a.logger.Info("dead letter archived", "path", path, "source", dl.Source, "attempts", dl.Attempts)
		return nil
	}

	err = retry.Do(
		func() error {
			w := a.client.Bucket(a.bucket).Object(key).NewWriter(ctx)
			w.ContentType = "application/zstd"
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					a.logger.Warn("close writer after error failed", "key", key, "error", closeErr)
				}
				return fmt.Errorf("write object: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close object writer: %w", closeErr)
			}
			return nil
		},
		a.retryOptions(ctx, "put", key)...,
	)
	if err != nil {
		return fmt.Errorf("archive dead letter after retries: %w", err)
	}

	a.logger.Info("dead letter archived", "bucket", a.bucket, "key", key, "source", dl.Source, "attempts", dl.Attempts)
	return nil
}

// List returns up to limit dead letters, newest first. Unreadable objects are
// logged and skipped.
func (a *Archive) List(ctx context.Context, limit int) ([]job.DeadLetter, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	keys, err := a.keys(ctx)
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	if len(keys) > limit {
		keys = keys[:limit]
	}

	out := make([]job.DeadLetter, 0, len(keys))
	for _, key := range keys {
		dl, err := a.load(ctx, key)
		if err != nil {
			a.logger.WarnContext(ctx, "skip unreadable dead letter", "key", key, "error", err)
			continue
		}
		out = append(out, dl)
	}
	return out, nil
}

func (a *Archive) keys(ctx context.Context) ([]string, error) {
	var keys []string

	if a.localDir != "" {
		entries, err := os.ReadDir(a.localDir)
		if err != nil {
			return nil, fmt.Errorf("read dead letter dir: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !isArchiveKey(entry.Name()) {
				continue
			}
			keys = append(keys, entry.Name())
		}
		return keys, nil
	}

	it := a.client.Bucket(a.bucket).Objects(ctx, &storage.Query{Prefix: objectPrefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate dead letters: %w", err)
		}
		if isArchiveKey(attrs.Name) {
			keys = append(keys, attrs.Name)
		}
	}
	return keys, nil
}

func (a *Archive) load(ctx context.Context, key string) (job.DeadLetter, error) {
	var data []byte

	if a.localDir != "" {
		raw, err := os.ReadFile(filepath.Join(a.localDir, key))
		if err != nil {
			return job.DeadLetter{}, fmt.Errorf("read dead letter: %w", err)
		}
		data = raw
	} else {
		err := retry.Do(
			func() error {
				r, openErr := a.client.Bucket(a.bucket).Object(key).NewReader(ctx)
				if openErr != nil {
					if errors.Is(openErr, storage.ErrObjectNotExist) {
						return retry.Unrecoverable(fmt.Errorf("open object: %w", openErr))
					}
					return fmt.Errorf("open object: %w", openErr)
				}
				defer func() {
					if closeErr := r.Close(); closeErr != nil {
						a.logger.Warn("close object reader failed", "key", key, "error", closeErr)
					}
				}()

				var readErr error
				data, readErr = io.ReadAll(r)
				if readErr != nil {
					return fmt.Errorf("read object: %w", readErr)
				}
				return nil
			},
			a.retryOptions(ctx, "load", key)...,
		)
		if err != nil {
			return job.DeadLetter{}, fmt.Errorf("load dead letter after retries: %w", err)
		}
	}

	raw, err := a.decoder.DecodeAll(data, nil)
	if err != nil {
		return job.DeadLetter{}, fmt.Errorf("decompress dead letter: %w", err)
	}
	var dl job.DeadLetter
	if err := sonic.Unmarshal(raw, &dl); err != nil {
		return job.DeadLetter{}, fmt.Errorf("unmarshal dead letter: %w", err)
	}
	return dl, nil
}

func (a *Archive) retryOptions(ctx context.Context, op, key string) []retry.Option {
	return []retry.Option{
		retry.Attempts(a.attempts),
		retry.Delay(time.Second),
		retry.MaxDelay(30 * time.Second),
		retry.MaxJitter(2 * time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			a.logger.Info("retrying dead letter storage call", "op", op, "attempt", n, "key", key, "error", err)
		}),
	}
}

func isArchiveKey(name string) bool {
	return strings.HasPrefix(name, objectPrefix) && strings.HasSuffix(name, objectSuffix)
}

// safeID keeps ids usable as file names.
func safeID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
