package vfs

// FileStatus is a value type describing a single path: produced by Stat
// and List, never mutated in place.
type FileStatus struct {
	Path        Path
	IsDirectory bool
	// Size is nil for directories; it is the byte length for files.
	Size *int64
	// MimeType is best-effort and may be nil when a backend cannot
	// determine it cheaply.
	MimeType *string
}

// NewDirectoryStatus builds the status of a directory.
func NewDirectoryStatus(p Path) FileStatus {
	return FileStatus{Path: p, IsDirectory: true}
}

// NewFileStatus builds the status of a file with a known size.
func NewFileStatus(p Path, size int64, mimeType string) FileStatus {
	st := FileStatus{Path: p, IsDirectory: false, Size: &size}
	if mimeType != "" {
		st.MimeType = &mimeType
	}
	return st
}
