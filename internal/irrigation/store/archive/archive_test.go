package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/autopeer-io/plantd/internal/irrigation/core/model"
	"github.com/autopeer-io/plantd/pkg/options"
)

type fakeObjectStore struct {
	exists  bool
	made    []string
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (f *fakeObjectStore) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.exists, nil
}

func (f *fakeObjectStore) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.made = append(f.made, bucket)
	return nil
}

func (f *fakeObjectStore) PutObject(_ context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.objects[bucket+"/"+object] = data
	f.types[bucket+"/"+object] = opts.ContentType
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: size}, nil
}

func testOptions() *options.S3Options {
	opts := options.NewS3Options()
	opts.Endpoint = "minio.local:9000"
	return opts
}

func TestArchiveWritesNDJSON(t *testing.T) {
	store := newFakeObjectStore()
	a := newArchiver(store, testOptions(), nil)

	moisture := 41.5
	cutoff := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	readings := []model.SensorReading{
		{ID: 1, DeviceKey: "dev-1", Timestamp: cutoff.Add(-time.Hour), SoilMoisture: &moisture},
		{ID: 2, DeviceKey: "dev-2", Timestamp: cutoff.Add(-time.Minute)},
	}
	if err := a.Archive(context.Background(), cutoff, 3, readings); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	key := "plantd-archive/sensor-readings/20260401T000000Z/part-00003.ndjson"
	data, ok := store.objects[key]
	if !ok {
		t.Fatalf("object %s not written; have %v", key, store.objects)
	}
	if store.types[key] != "application/x-ndjson" {
		t.Errorf("content type = %q", store.types[key])
	}

	var got []model.SensorReading
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var r model.SensorReading
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		got = append(got, r)
	}
	if len(got) != 2 {
		t.Fatalf("got %d lines, want 2", len(got))
	}
	if got[0].SoilMoisture == nil || *got[0].SoilMoisture != 41.5 || got[1].SoilMoisture != nil {
		t.Errorf("moisture did not survive: %+v", got)
	}
}

func TestArchiveEmptyBatchIsNoop(t *testing.T) {
	store := newFakeObjectStore()
	a := newArchiver(store, testOptions(), nil)

	if err := a.Archive(context.Background(), time.Now(), 0, nil); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if len(store.objects) != 0 {
		t.Errorf("wrote %d objects for an empty batch", len(store.objects))
	}
}

func TestArchiveUploadError(t *testing.T) {
	store := newFakeObjectStore()
	store.putErr = errors.New("connection reset")
	a := newArchiver(store, testOptions(), nil)

	err := a.Archive(context.Background(), time.Now(), 0, []model.SensorReading{{ID: 1, DeviceKey: "dev-1"}})
	if !errors.Is(err, store.putErr) {
		t.Fatalf("Archive err = %v, want wrapped upload error", err)
	}
}

func TestCheckBucket(t *testing.T) {
	store := newFakeObjectStore()
	a := newArchiver(store, testOptions(), nil)

	if err := a.CheckBucket(context.Background()); err != nil {
		t.Fatalf("CheckBucket: %v", err)
	}
	if len(store.made) != 1 || store.made[0] != "plantd-archive" {
		t.Errorf("made buckets = %v", store.made)
	}

	store.exists = true
	store.made = nil
	if err := a.CheckBucket(context.Background()); err != nil {
		t.Fatalf("CheckBucket: %v", err)
	}
	if len(store.made) != 0 {
		t.Errorf("bucket created although it exists")
	}
}
