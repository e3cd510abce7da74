// Package fileid identifies file-backed documents: a stable document ID per path and a
// stamp that tells whether the file changed since it was ingested.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const prefix = "file:"

// Metadata keys written on file-backed documents.
const (
	MetaSourcePath  = "source_path"
	MetaSourceMtime = "source_mtime"
	MetaSourceSize  = "source_size"
)

// DocID returns a stable document ID for path. Equivalent spellings of a path share an ID.
func DocID(path string) string {
	hash := sha256.Sum256([]byte(filepath.Clean(path)))
	return prefix + hex.EncodeToString(hash[:16])
}

// IsFileDoc reports whether id was produced by DocID.
func IsFileDoc(id string) bool {
	return strings.HasPrefix(id, prefix)
}

// Stamp captures the identity and version of a file on disk.
type Stamp struct {
	Path    string
	ModTime int64
	Size    int64
}

// StampOf builds a stamp from a stat result.
func StampOf(path string, info os.FileInfo) Stamp {
	return Stamp{Path: filepath.Clean(path), ModTime: info.ModTime().UnixNano(), Size: info.Size()}
}

// Metadata renders the stamp as document metadata. Numbers are strings because
// UnixNano does not survive a JSON float64.
func (s Stamp) Metadata() map[string]interface{} {
	return map[string]interface{}{
		MetaSourcePath:  s.Path,
		MetaSourceMtime: strconv.FormatInt(s.ModTime, 10),
		MetaSourceSize:  strconv.FormatInt(s.Size, 10),
	}
}

// StampFromMetadata reads a stamp back from document metadata.
func StampFromMetadata(m map[string]interface{}) (Stamp, bool) {
	path, ok := m[MetaSourcePath].(string)
	if !ok || path == "" {
		return Stamp{}, false
	}
	return Stamp{Path: path, ModTime: metaInt64(m[MetaSourceMtime]), Size: metaInt64(m[MetaSourceSize])}, true
}

func metaInt64(v interface{}) int64 {
	switch n := v.(type) {
	case string:
		x, _ := strconv.ParseInt(n, 10, 64)
		return x
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
