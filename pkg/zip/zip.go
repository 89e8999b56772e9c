// Package zip bundles the results of one generation into a single download.
package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Asset is one file in the bundle.
type Asset struct {
	Filename string
	MIME     string
	Data     []byte
	Modified time.Time
}

// ArchiveAssets packs assets into an in-memory archive in the given order.
func ArchiveAssets(assets []Asset) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, assets); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write streams the archive to w. Names are reduced to their base and
// repeated names get a numeric suffix; media that is already compressed is
// stored rather than deflated.
func Write(w io.Writer, assets []Asset) error {
	zw := zip.NewWriter(w)
	seen := make(map[string]int, len(assets))
	for _, asset := range assets {
		hdr := &zip.FileHeader{
			Name:     uniqueName(seen, asset.Filename),
			Method:   method(asset.MIME),
			Modified: asset.Modified,
		}
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("zip: create %s: %w", hdr.Name, err)
		}
		if _, err := fw.Write(asset.Data); err != nil {
			return fmt.Errorf("zip: write %s: %w", hdr.Name, err)
		}
	}
	return zw.Close()
}

func method(mime string) uint16 {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if strings.HasPrefix(mime, "video/") {
		return zip.Store
	}
	switch mime {
	case "image/png", "image/jpeg", "image/webp", "image/gif":
		return zip.Store
	}
	return zip.Deflate
}

func uniqueName(seen map[string]int, name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" {
		name = "asset"
	}
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), n+1, ext)
}
