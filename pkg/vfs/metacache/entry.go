package metacache

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/zhangzqs/govfs/pkg/vfs"
)

// entryVersion is embedded in every persisted entry; a mismatch is
// treated as a cache miss and the stale file is deleted asynchronously.
const entryVersion = "1.0"

type statJSON struct {
	Path        string  `json:"path"`
	IsDirectory bool    `json:"isDirectory"`
	Size        *int64  `json:"size,omitempty"`
	MimeType    *string `json:"mimeType,omitempty"`
}

func toStatJSON(st vfs.FileStatus) statJSON {
	return statJSON{
		Path:        st.Path.String(),
		IsDirectory: st.IsDirectory,
		Size:        st.Size,
		MimeType:    st.MimeType,
	}
}

func (s statJSON) toStatus() (vfs.FileStatus, error) {
	path, err := vfs.ParsePath(s.Path)
	if err != nil {
		return vfs.FileStatus{}, errors.WithStack(err)
	}
	return vfs.FileStatus{
		Path:        path,
		IsDirectory: s.IsDirectory,
		Size:        s.Size,
		MimeType:    s.MimeType,
	}, nil
}

// entry is the persisted cache record for one path: its stat, and (for
// small directories) its direct children.
type entry struct {
	Path             string     `json:"path"`
	Stat             statJSON   `json:"stat"`
	LastUpdated      time.Time  `json:"lastUpdated"`
	Children         []statJSON `json:"children,omitempty"`
	IsLargeDirectory bool       `json:"isLargeDirectory"`
	Version          string     `json:"version"`
}

func encodeEntry(e *entry) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return data, nil
}

func decodeEntry(data []byte) (*entry, error) {
	e := &entry{}
	if err := json.Unmarshal(data, e); err != nil {
		return nil, errors.WithStack(err)
	}
	return e, nil
}

// decodeChildren converts the persisted children back into statuses,
// reporting ok=false if any stored path no longer parses.
func decodeChildren(e *entry) ([]vfs.FileStatus, bool) {
	children := make([]vfs.FileStatus, 0, len(e.Children))
	for _, child := range e.Children {
		st, err := child.toStatus()
		if err != nil {
			return nil, false
		}
		children = append(children, st)
	}
	return children, true
}

// valid reports whether e may serve reads for path at instant now.
func (e *entry) valid(path vfs.Path, now time.Time, maxAge time.Duration) bool {
	if e.Path != path.String() {
		return false
	}
	if e.Version != entryVersion {
		return false
	}
	return now.Sub(e.LastUpdated) <= maxAge
}
