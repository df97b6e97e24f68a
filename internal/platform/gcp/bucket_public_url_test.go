package gcp

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/sciencelab-batchserver/internal/platform/objectstore"
)

func TestResolvePublicBaseURLGCSDefault(t *testing.T) {
	baseURL, source, err := resolvePublicBaseURL(BucketConfig{
		Storage: objectstore.Config{Mode: objectstore.ModeGCS},
	})
	if err != nil {
		t.Fatalf("resolvePublicBaseURL: %v", err)
	}
	if baseURL != "" {
		t.Fatalf("baseURL: want empty got=%q", baseURL)
	}
	if source != "gcs_default" {
		t.Fatalf("source: want=%q got=%q", "gcs_default", source)
	}
}

func TestResolvePublicBaseURLEmulatorFallback(t *testing.T) {
	baseURL, source, err := resolvePublicBaseURL(BucketConfig{
		Storage: objectstore.Config{Mode: objectstore.ModeGCSEmulator, EmulatorHost: "http://fake-gcs:4443"},
	})
	if err != nil {
		t.Fatalf("resolvePublicBaseURL: %v", err)
	}
	if baseURL != "http://fake-gcs:4443" {
		t.Fatalf("baseURL: want=%q got=%q", "http://fake-gcs:4443", baseURL)
	}
	if source != "storage_emulator_host" {
		t.Fatalf("source: want=%q got=%q", "storage_emulator_host", source)
	}
}

func TestResolvePublicBaseURLOverride(t *testing.T) {
	baseURL, source, err := resolvePublicBaseURL(BucketConfig{
		Storage:       objectstore.Config{Mode: objectstore.ModeGCSEmulator, EmulatorHost: "http://fake-gcs:4443"},
		PublicBaseURL: "http://localhost:4443/",
	})
	if err != nil {
		t.Fatalf("resolvePublicBaseURL: %v", err)
	}
	if baseURL != "http://localhost:4443" {
		t.Fatalf("baseURL: want=%q got=%q", "http://localhost:4443", baseURL)
	}
	if source != "object_storage_public_base_url" {
		t.Fatalf("source: want=%q got=%q", "object_storage_public_base_url", source)
	}

	if _, _, err := resolvePublicBaseURL(BucketConfig{PublicBaseURL: "localhost:4443"}); err == nil {
		t.Fatalf("resolvePublicBaseURL: expected error for relative url, got nil")
	}
}

func TestObjectURL(t *testing.T) {
	cases := []struct {
		name string
		bs   *bucketService
		key  string
		want string
	}{
		{
			name: "gcs default",
			bs:   &bucketService{storageMode: objectstore.ModeGCS},
			key:  "input1.txt",
			want: "https://storage.googleapis.com/inputs/input1.txt",
		},
		{
			name: "public base",
			bs:   &bucketService{storageMode: objectstore.ModeGCS, publicBaseURL: "http://localhost:4443"},
			key:  "/input1.txt",
			want: "http://localhost:4443/inputs/input1.txt",
		},
		{
			name: "emulator media endpoint",
			bs:   &bucketService{storageMode: objectstore.ModeGCSEmulator, emulatorHost: "http://fake-gcs:4443"},
			key:  "sector1/input1.txt",
			want: "http://fake-gcs:4443/storage/v1/b/inputs/o/sector1%2Finput1.txt?alt=media",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.bs.ObjectURL("inputs", tc.key); got != tc.want {
				t.Fatalf("ObjectURL: want=%q got=%q", tc.want, got)
			}
		})
	}
}

func TestSignedPutURLEmulator(t *testing.T) {
	bs := &bucketService{
		storageMode:  objectstore.ModeGCSEmulator,
		emulatorHost: "http://fake-gcs:4443",
	}
	got, err := bs.SignedPutURL(context.Background(), "outputs", "42_data.npz", time.Hour)
	if err != nil {
		t.Fatalf("SignedPutURL: %v", err)
	}
	if want := "http://fake-gcs:4443/outputs/42_data.npz"; got != want {
		t.Fatalf("SignedPutURL: want=%q got=%q", want, got)
	}

	if _, err := bs.SignedPutURL(context.Background(), " ", "k", time.Hour); err == nil || !strings.Contains(err.Error(), "bucket") {
		t.Fatalf("SignedPutURL without bucket: want error got=%v", err)
	}
}

func TestContentTypeForKey(t *testing.T) {
	cases := map[string]string{
		"1_output.json": "application/json",
		"input1.txt":    "text/plain",
		"7_data.NPZ":    "application/octet-stream",
		"unknown.bin":   "",
	}
	for key, want := range cases {
		if got := contentTypeForKey(key); got != want {
			t.Fatalf("contentTypeForKey(%q): want=%q got=%q", key, want, got)
		}
	}
}
