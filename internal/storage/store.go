// Package storage keeps purchase records in month files: one indented JSON
// array and one CSV mirror per calendar month. Both files are rewritten in
// full on every save.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/purchasebot/internal/purchase"
)

var (
	// ErrInvalidBucket is returned for a bucket that is neither YYYY-MM nor
	// the unknown bucket.
	ErrInvalidBucket = errors.New("invalid month bucket")
	// ErrCorrupted is returned when a JSON month file cannot be decoded.
	ErrCorrupted = errors.New("month file corrupted")
)

var bucketPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// ValidateBucket checks that bucket is safe to use in a file name.
func ValidateBucket(bucket string) error {
	if bucket == purchase.UnknownBucket || bucketPattern.MatchString(bucket) {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidBucket, bucket)
}

// Store reads and writes the month files of one layout.
type Store struct {
	dir    string
	layout Layout
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a store under root, creating the layout directory.
func NewStore(root string, layout Layout, logger *zap.Logger) (*Store, error) {
	if root == "" {
		return nil, errors.New("storage root is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := filepath.Join(root, filepath.FromSlash(layout.Dir))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &Store{
		dir:    dir,
		layout: layout,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// Dir returns the directory holding the month files.
func (s *Store) Dir() string { return s.dir }

// JSONPath returns the JSON file of bucket.
func (s *Store) JSONPath(bucket string) string {
	return filepath.Join(s.dir, s.layout.Prefix+"_"+bucket+".json")
}

// CSVPath returns the CSV file of bucket.
func (s *Store) CSVPath(bucket string) string {
	return filepath.Join(s.dir, s.layout.Prefix+"_"+bucket+".csv")
}

func (s *Store) lock(bucket string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[bucket]
	if !ok {
		l = &sync.Mutex{}
		s.locks[bucket] = l
	}
	return l
}

// Load returns the records of bucket. A missing file is an empty bucket.
func (s *Store) Load(bucket string) ([]purchase.Record, error) {
	if err := ValidateBucket(bucket); err != nil {
		return nil, err
	}
	l := s.lock(bucket)
	l.Lock()
	defer l.Unlock()
	return s.load(bucket)
}

// Save replaces the contents of bucket with records.
func (s *Store) Save(bucket string, records []purchase.Record) error {
	if err := ValidateBucket(bucket); err != nil {
		return err
	}
	l := s.lock(bucket)
	l.Lock()
	defer l.Unlock()
	return s.save(bucket, records)
}

// Append adds rec to bucket and returns the bucket's new record count.
// The load, append and save happen under the bucket's lock, so concurrent
// appends to the same month never lose records.
func (s *Store) Append(bucket string, rec purchase.Record) (int, error) {
	if err := ValidateBucket(bucket); err != nil {
		return 0, err
	}
	l := s.lock(bucket)
	l.Lock()
	defer l.Unlock()

	records, err := s.load(bucket)
	if err != nil {
		return 0, err
	}
	records = append(records, rec)
	if err := s.save(bucket, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// WriteBuckets saves every non-empty bucket and returns the files written.
// Buckets are written in sorted order; the first failure stops the write.
func (s *Store) WriteBuckets(buckets map[string][]purchase.Record) ([]string, error) {
	keys := make([]string, 0, len(buckets))
	for k, recs := range buckets {
		if len(recs) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var files []string
	for _, k := range keys {
		if err := s.Save(k, buckets[k]); err != nil {
			return files, fmt.Errorf("saving bucket %s: %w", k, err)
		}
		files = append(files, s.JSONPath(k), s.CSVPath(k))
		s.logger.Info("saved month file",
			zap.String("bucket", k),
			zap.Int("records", len(buckets[k])),
			zap.String("path", s.JSONPath(k)),
		)
	}
	return files, nil
}

// Buckets lists the buckets that have a JSON file, in sorted order.
func (s *Store) Buckets() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, s.layout.Prefix+"_*.json"))
	if err != nil {
		return nil, fmt.Errorf("globbing month files: %w", err)
	}
	var buckets []string
	for _, m := range matches {
		name := strings.TrimSuffix(filepath.Base(m), ".json")
		bucket := strings.TrimPrefix(name, s.layout.Prefix+"_")
		if ValidateBucket(bucket) == nil {
			buckets = append(buckets, bucket)
		}
	}
	sort.Strings(buckets)
	return buckets, nil
}

func (s *Store) load(bucket string) ([]purchase.Record, error) {
	data, err := os.ReadFile(s.JSONPath(bucket))
	if errors.Is(err, os.ErrNotExist) {
		return []purchase.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", bucket, err)
	}
	var records []purchase.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupted, s.JSONPath(bucket), err)
	}
	if records == nil {
		records = []purchase.Record{}
	}
	return records, nil
}

func (s *Store) save(bucket string, records []purchase.Record) error {
	if records == nil {
		records = []purchase.Record{}
	}
	if err := WriteFileAtomic(s.JSONPath(bucket), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}); err != nil {
		return fmt.Errorf("writing JSON for %s: %w", bucket, err)
	}

	if err := WriteFileAtomic(s.CSVPath(bucket), func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(s.layout.Headers()); err != nil {
			return err
		}
		row := make([]string, len(s.layout.Columns))
		for _, r := range records {
			for i, c := range s.layout.Columns {
				row[i] = c.Value(r)
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	}); err != nil {
		return fmt.Errorf("writing CSV for %s: %w", bucket, err)
	}
	return nil
}

// WriteFileAtomic writes path through a temp file in the same directory and
// renames it into place.
func WriteFileAtomic(path string, write func(io.Writer) error) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := f.Name()

	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
