package store

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chris-regnier/ctrap/internal/sarif"
)

var storeTracer = otel.Tracer("github.com/chris-regnier/ctrap/internal/store")

// FileStore keeps each run in its own directory, named by a sortable id,
// holding sarif.json and verdict.json.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the root directory of the store.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) generateID() string {
	b := make([]byte, 3)
	rand.Read(b)
	ts := time.Now().UTC().Format("2006-01-02T15-04-05Z")
	return fmt.Sprintf("%s-%s", ts, hex.EncodeToString(b))
}

func (s *FileStore) resultDir(id string) string {
	return filepath.Join(s.dir, id)
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (s *FileStore) WriteSARIF(ctx context.Context, doc *sarif.Log) (string, error) {
	_, span := storeTracer.Start(ctx, "write sarif")
	defer span.End()

	id := s.generateID()
	dir := s.resultDir(id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fail(span, err)
	}
	var buf bytes.Buffer
	if err := doc.PrettyWrite(&buf); err != nil {
		return "", fail(span, fmt.Errorf("encoding sarif: %w", err))
	}
	if err := os.WriteFile(filepath.Join(dir, "sarif.json"), buf.Bytes(), 0644); err != nil {
		return "", fail(span, err)
	}

	span.SetAttributes(
		attribute.String("ctrap.store.id", id),
		attribute.Int("ctrap.store.result_count", len(sarif.Results(doc))),
	)
	return id, nil
}

func (s *FileStore) WriteVerdict(ctx context.Context, sarifID string, verdict *Verdict) error {
	_, span := storeTracer.Start(ctx, "write verdict")
	defer span.End()

	dir := s.resultDir(sarifID)
	if _, err := os.Stat(dir); err != nil {
		return fail(span, fmt.Errorf("run %s: %w", sarifID, err))
	}
	data, err := json.MarshalIndent(verdict, "", "  ")
	if err != nil {
		return fail(span, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "verdict.json"), data, 0644); err != nil {
		return fail(span, err)
	}

	span.SetAttributes(
		attribute.String("ctrap.store.id", sarifID),
		attribute.String("ctrap.decision", verdict.Decision),
	)
	return nil
}

func (s *FileStore) ReadSARIF(ctx context.Context, id string) (*sarif.Log, error) {
	f, err := os.Open(filepath.Join(s.resultDir(id), "sarif.json"))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return sarif.Read(f)
}

func (s *FileStore) ReadVerdict(ctx context.Context, sarifID string) (*Verdict, error) {
	data, err := os.ReadFile(filepath.Join(s.resultDir(sarifID), "verdict.json"))
	if err != nil {
		return nil, err
	}
	var v Verdict
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// List returns run ids, newest first.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}

// Latest returns the newest run id, or "" when the store is empty.
func (s *FileStore) Latest(ctx context.Context) (string, error) {
	ids, err := s.List(ctx)
	if err != nil || len(ids) == 0 {
		return "", err
	}
	return ids[0], nil
}
