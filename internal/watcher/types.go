package watcher

import "time"

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file or directory was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file or directory was deleted.
	OpDelete
	// OpRename indicates a file or directory was renamed away. fsnotify
	// reports the new name as a separate create.
	OpRename
	// OpIgnoreChange indicates a .gitignore file changed and the ignore
	// rules should be rebuilt.
	OpIgnoreChange
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	case OpIgnoreChange:
		return "IGNORE_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent represents a file system event.
type FileEvent struct {
	// Path is slash-separated and relative to the watched root.
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Options configures the watcher behavior.
type Options struct {
	// DebounceWindow is the quiet period before a batch is emitted.
	// Default: 100ms
	DebounceWindow time.Duration

	// EventBufferSize is the number of batches buffered before dropping.
	// Default: 64
	EventBufferSize int

	// Skip reports whether a relative path should be ignored. Skipped
	// directories are not watched at all.
	Skip func(rel string, isDir bool) bool
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = 100 * time.Millisecond
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = 64
	}
	return o
}
