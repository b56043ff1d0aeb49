package jobs

import (
	"encoding/json"
	"sync"
	"time"
)

// Reporter is the per-run progress sink a job's Execute receives. Updates
// are coalesced by a minimum publication interval and always force-flushed
// on Flush (spec.md §4.9).
type Reporter struct {
	mu sync.Mutex

	activityText string
	finalText    string
	current      int
	total        int
	hasProgress  bool
	resultSchema int
	resultJSON   *string

	dirty bool

	minInterval time.Duration
	lastPublish time.Time
	onPublish   func(snapshot ReporterSnapshot)
}

// ReporterSnapshot is an immutable view published to the persistence loop.
type ReporterSnapshot struct {
	ActivityText string
	FinalText    string
	Current      int
	Total        int
	HasProgress  bool
	ResultSchema int
	ResultJSON   *string
}

func newReporter(minInterval time.Duration, onPublish func(ReporterSnapshot)) *Reporter {
	return &Reporter{minInterval: minInterval, onPublish: onPublish}
}

func (r *Reporter) SetActivity(text string) {
	r.mu.Lock()
	r.activityText = text
	r.dirty = true
	r.mu.Unlock()
	r.maybePublish()
}

func (r *Reporter) SetProgress(current, total int) {
	r.mu.Lock()
	r.current = current
	r.total = total
	r.hasProgress = true
	r.dirty = true
	r.mu.Unlock()
	r.maybePublish()
}

func (r *Reporter) ClearProgress() {
	r.mu.Lock()
	r.hasProgress = false
	r.current = 0
	r.total = 0
	r.dirty = true
	r.mu.Unlock()
	r.maybePublish()
}

func (r *Reporter) SetFinalText(text string) {
	r.mu.Lock()
	r.finalText = text
	r.dirty = true
	r.mu.Unlock()
	r.maybePublish()
}

func (r *Reporter) SetResult(schemaVersion int, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	str := string(payload)
	r.mu.Lock()
	r.resultSchema = schemaVersion
	r.resultJSON = &str
	r.dirty = true
	r.mu.Unlock()
	return nil
}

// Flush forces a publish regardless of the coalescing interval.
func (r *Reporter) Flush() {
	r.publish()
}

func (r *Reporter) maybePublish() {
	r.mu.Lock()
	elapsed := time.Since(r.lastPublish)
	shouldPublish := elapsed >= r.minInterval
	r.mu.Unlock()
	if shouldPublish {
		r.publish()
	}
}

func (r *Reporter) publish() {
	r.mu.Lock()
	if !r.dirty {
		r.mu.Unlock()
		return
	}
	snapshot := ReporterSnapshot{
		ActivityText: r.activityText,
		FinalText:    r.finalText,
		Current:      r.current,
		Total:        r.total,
		HasProgress:  r.hasProgress,
		ResultSchema: r.resultSchema,
		ResultJSON:   r.resultJSON,
	}
	r.dirty = false
	r.lastPublish = time.Now()
	r.mu.Unlock()

	if r.onPublish != nil {
		r.onPublish(snapshot)
	}
}
