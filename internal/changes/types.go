package changes

import "time"

// RawEventType is the kind of filesystem event delivered by a watcher.
type RawEventType string

const (
	RawAdd    RawEventType = "add"
	RawChange RawEventType = "change"
	RawUnlink RawEventType = "unlink"
)

// RawEvent is one filesystem event from the upstream watcher.
type RawEvent struct {
	Type         RawEventType
	AbsolutePath string
	RelativePath string
	FolderID     string
	FolderPath   string
	Extension    string
	Timestamp    time.Time
}

// Category is the semantic classification of a detected change.
type Category string

const (
	Added    Category = "added"
	Modified Category = "modified"
	Deleted  Category = "deleted"
	Renamed  Category = "renamed"
)

// FileState is a point-in-time snapshot of a watched file.
type FileState struct {
	AbsolutePath string
	RelativePath string
	SizeBytes    int64
	ModifiedAt   time.Time
	Extension    string
	CapturedAt   time.Time
}

// DetectedChange is the categorizer's output: a semantic change with the
// file state on both sides where known.
type DetectedChange struct {
	Category             Category
	AbsolutePath         string
	RelativePath         string
	PreviousAbsolutePath string // renames only
	PreviousRelativePath string // renames only
	FolderID             string
	FolderPath           string
	Extension            string
	CurrentState         *FileState
	PreviousState        *FileState
	Confidence           float64 // renames only, in [0,1]
	Timestamp            time.Time
}
