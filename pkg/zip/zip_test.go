package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
	"time"
)

func TestArchiveAssets(t *testing.T) {
	data, err := ArchiveAssets([]Asset{
		{Filename: "tasvir-1.png", MIME: "image/png", Data: []byte("one")},
		{Filename: "tasvir-2.png", MIME: "image/png", Data: []byte("two")},
	})
	if err != nil {
		t.Fatalf("ArchiveAssets: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("expected 2 files, got %d", len(zr.File))
	}
	f, err := zr.File[1].Open()
	if err != nil {
		t.Fatalf("open entry: %v", err)
	}
	defer f.Close()
	body, _ := io.ReadAll(f)
	if zr.File[1].Name != "tasvir-2.png" || string(body) != "two" {
		t.Fatalf("unexpected entry %s=%q", zr.File[1].Name, body)
	}
}

func TestWriteNamesAndMethods(t *testing.T) {
	at := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	err := Write(&buf, []Asset{
		{Filename: "../../etc/result.png", MIME: "image/png", Data: []byte("png"), Modified: at},
		{Filename: "result.png", MIME: "IMAGE/PNG", Data: []byte("png2")},
		{Filename: "clip.mp4", MIME: "video/mp4", Data: []byte("mp4")},
		{Filename: "", MIME: "application/json", Data: []byte(`{"prompt":"x"}`)},
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	want := []struct {
		name   string
		method uint16
	}{
		{"result.png", zip.Store},
		{"result-2.png", zip.Store},
		{"clip.mp4", zip.Store},
		{"asset", zip.Deflate},
	}
	if len(zr.File) != len(want) {
		t.Fatalf("expected %d files, got %d", len(want), len(zr.File))
	}
	for i, w := range want {
		if zr.File[i].Name != w.name || zr.File[i].Method != w.method {
			t.Errorf("entry %d = %s/%d, want %s/%d", i, zr.File[i].Name, zr.File[i].Method, w.name, w.method)
		}
	}
	if !zr.File[0].Modified.Equal(at) {
		t.Errorf("modified time not kept: %v", zr.File[0].Modified)
	}
}
