package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Library is a user-declared root directory reconciled by the sync processor.
type Library struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	Name                string    `db:"name" json:"name"`
	RootPath            string    `db:"root_path" json:"root_path"`
	ScanIntervalHours    int       `db:"scan_interval_hours" json:"scan_interval_hours"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

// Post is a single indexed media file.
type Post struct {
	ID               uuid.UUID `db:"id" json:"id"`
	LibraryID        uuid.UUID `db:"library_id" json:"library_id"`
	RelativePath     string    `db:"relative_path" json:"relative_path"`
	ContentHash      string    `db:"content_hash" json:"content_hash"`
	SizeBytes        int64     `db:"size_bytes" json:"size_bytes"`
	FileModifiedDate time.Time `db:"file_modified_date" json:"file_modified_date"`
	ImportDate       time.Time `db:"import_date" json:"import_date"`
	Width            int       `db:"width" json:"width"`
	Height           int       `db:"height" json:"height"`
	ContentType      string    `db:"content_type" json:"content_type"`
	PerceptualHash   *string   `db:"perceptual_hash" json:"perceptual_hash,omitempty"`
	IsFavorite       bool      `db:"is_favorite" json:"is_favorite"`
	FileIdentityDevice *string `db:"file_identity_device" json:"file_identity_device,omitempty"`
	FileIdentityValue  *string `db:"file_identity_value" json:"file_identity_value,omitempty"`
}

// PostTagSource distinguishes who attached a tag to a post.
type PostTagSource string

const (
	PostTagSourceManual     PostTagSource = "manual"
	PostTagSourceFolder     PostTagSource = "folder"
	PostTagSourceAutoTagger PostTagSource = "auto_tagger"
)

// PostTag links a post to a tag, multi-valued by source.
type PostTag struct {
	PostID uuid.UUID     `db:"post_id" json:"post_id"`
	TagID  uuid.UUID     `db:"tag_id" json:"tag_id"`
	Source PostTagSource `db:"source" json:"source"`
}

// PostSource is an ordered external URL attached to a post.
type PostSource struct {
	PostID uuid.UUID `db:"post_id" json:"post_id"`
	URL    string    `db:"url" json:"url"`
	Order  int       `db:"order_index" json:"order"`
}

// Tag is a globally unique, lowercase label.
type Tag struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	Name           string     `db:"name" json:"name"`
	TagCategoryID  *uuid.UUID `db:"tag_category_id" json:"tag_category_id,omitempty"`
	PostCount      int        `db:"post_count" json:"post_count"`
}

// TagCategory groups tags for display.
type TagCategory struct {
	ID    uuid.UUID `db:"id" json:"id"`
	Name  string    `db:"name" json:"name"`
	Color string    `db:"color" json:"color"`
	Order int       `db:"order_index" json:"order"`
}

// DuplicateGroupType distinguishes exact content-hash collisions from
// perceptual-hash clusters.
type DuplicateGroupType string

const (
	DuplicateGroupExact      DuplicateGroupType = "exact"
	DuplicateGroupPerceptual DuplicateGroupType = "perceptual"
)

// DuplicateGroup is a cluster of near- or exact-duplicate posts.
type DuplicateGroup struct {
	ID                uuid.UUID          `db:"id" json:"id"`
	Type              DuplicateGroupType `db:"group_type" json:"type"`
	SimilarityPercent *int               `db:"similarity_percent" json:"similarity_percent,omitempty"`
	DetectedDate      time.Time          `db:"detected_date" json:"detected_date"`
	IsResolved        bool               `db:"is_resolved" json:"is_resolved"`
}

// DuplicateGroupEntry links a post into a duplicate group.
type DuplicateGroupEntry struct {
	GroupID uuid.UUID `db:"group_id" json:"group_id"`
	PostID  uuid.UUID `db:"post_id" json:"post_id"`
}

// ExcludedFile marks a (library, relativePath) pair that future scans
// silently skip regardless of content.
type ExcludedFile struct {
	ID           uuid.UUID `db:"id" json:"id"`
	LibraryID    uuid.UUID `db:"library_id" json:"library_id"`
	RelativePath string    `db:"relative_path" json:"relative_path"`
	ContentHash  string    `db:"content_hash" json:"content_hash"`
	ExcludedDate time.Time `db:"excluded_date" json:"excluded_date"`
	Reason       string    `db:"reason" json:"reason"`
}

// LibraryIgnoredPath marks a subtree the scanner treats as nonexistent.
type LibraryIgnoredPath struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	LibraryID          uuid.UUID `db:"library_id" json:"library_id"`
	RelativePathPrefix string    `db:"relative_path_prefix" json:"relative_path_prefix"`
	CreatedDate        time.Time `db:"created_date" json:"created_date"`
}

// JobStatus is the terminal/non-terminal state of a JobExecution.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// JobExecution is one append-only run record for a registered job.
type JobExecution struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	JobKey              string     `db:"job_key" json:"job_key"`
	JobName             string     `db:"job_name" json:"job_name"`
	Status              JobStatus  `db:"status" json:"status"`
	StartTime           time.Time  `db:"start_time" json:"start_time"`
	EndTime             *time.Time `db:"end_time" json:"end_time,omitempty"`
	ErrorMessage        *string    `db:"error_message" json:"error_message,omitempty"`
	ActivityText        string     `db:"activity_text" json:"activity_text"`
	FinalText           string     `db:"final_text" json:"final_text"`
	ProgressCurrent     int        `db:"progress_current" json:"progress_current"`
	ProgressTotal       int        `db:"progress_total" json:"progress_total"`
	ResultSchemaVersion int        `db:"result_schema_version" json:"result_schema_version"`
	ResultJSON          *string    `db:"result_json" json:"result_json,omitempty"`
}

// ScheduledJob is a cron-driven dispatch entry.
type ScheduledJob struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	JobName        string     `db:"job_name" json:"job_name"`
	CronExpression string     `db:"cron_expression" json:"cron_expression"`
	IsEnabled      bool       `db:"is_enabled" json:"is_enabled"`
	LastRun        *time.Time `db:"last_run" json:"last_run,omitempty"`
	NextRun        *time.Time `db:"next_run" json:"next_run,omitempty"`
}

// AppLogEntry is an observability-only persisted log row.
type AppLogEntry struct {
	ID            uuid.UUID `db:"id" json:"id"`
	TimestampUTC  time.Time `db:"timestamp_utc" json:"timestamp_utc"`
	Level         string    `db:"level" json:"level"`
	Category      string    `db:"category" json:"category"`
	Message       string    `db:"message" json:"message"`
	Exception     *string   `db:"exception" json:"exception,omitempty"`
	PropertiesJSON *string  `db:"properties_json" json:"properties_json,omitempty"`
}
