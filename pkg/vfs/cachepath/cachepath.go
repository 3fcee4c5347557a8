// Package cachepath computes the on-disk layout shared by the metadata
// and block caches: a 16-hex-char SHA-256 prefix fanned out over three
// directory levels, keeping any one directory's child count bounded.
package cachepath

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/zhangzqs/govfs/pkg/vfs"
)

// For maps key to cacheDir/h[0:3]/h[3:6]/h[6:16]+ext where h is the
// 16-hex-char prefix of SHA-256(key).
func For(cacheDir vfs.Path, key string, ext string) vfs.Path {
	sum := sha256.Sum256([]byte(key))
	h := hex.EncodeToString(sum[:])[:16]
	return cacheDir.Join(h[0:3]).Join(h[3:6]).Join(h[6:16] + ext)
}
