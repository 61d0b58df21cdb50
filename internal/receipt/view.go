package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrNoDraft is returned when submitting without a selected file
	ErrNoDraft = errors.New("no file selected")

	// ErrUploadInProgress is returned when submitting while another upload is in flight
	ErrUploadInProgress = errors.New("upload already in progress")
)

const (
	uploadSucceededMessage = "Analysis complete!"
	uploadFailedPrefix     = "Analysis failed: "
)

// View holds the dashboard state: the receipt list, the pending draft and the upload flag.
// The mutex is never held across a backend or preview store call.
type View struct {
	backend  Backend
	previews PreviewStore
	notifier Notifier

	mu         sync.Mutex
	receipts   []Record
	draft      *Draft
	uploading  bool
	loadState  LoadState
	loadErr    string
	loadSeq    uint64
	appliedSeq uint64
}

// NewView creates a View that has not fetched anything yet
func NewView(backend Backend, previews PreviewStore, notifier Notifier) *View {
	return &View{
		backend:  backend,
		previews: previews,
		notifier: notifier,
	}
}

// DraftSummary describes the pending draft without its file contents
type DraftSummary struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
	PreviewID   string `json:"previewId"`
}

// Snapshot is a point-in-time copy of the view state
type Snapshot struct {
	Receipts    []Record      `json:"receipts"`
	Draft       *DraftSummary `json:"draft,omitempty"`
	Uploading   bool          `json:"uploading"`
	LoadState   LoadState     `json:"loadState"`
	LoadError   string        `json:"loadError,omitempty"`
	TotalAmount int64         `json:"totalAmount"`
	Count       int           `json:"count"`
}

// newestFirst returns a reversed copy of records, which the backend lists oldest first
func newestFirst(records []Record) []Record {
	reversed := make([]Record, len(records))
	for i, r := range records {
		reversed[len(records)-1-i] = r
	}
	return reversed
}

// totalOf sums the total amounts of records
func totalOf(records []Record) int64 {
	var total int64
	for _, r := range records {
		total += r.TotalAmount
	}
	return total
}

// beginLoad marks a fetch as started and returns its sequence number. Caller holds mu.
func (v *View) beginLoad() uint64 {
	v.loadSeq++
	v.loadState = LoadLoading
	return v.loadSeq
}

func (v *View) load(ctx context.Context, seq uint64) error {
	records, err := v.backend.ListReceipts(ctx)

	v.mu.Lock()
	defer v.mu.Unlock()

	// A newer fetch already landed
	if seq < v.appliedSeq {
		if err != nil {
			slog.Warn("Superseded receipt fetch failed", "error", err)
			return fmt.Errorf("loading receipts: %w", err)
		}
		return nil
	}
	v.appliedSeq = seq

	if err != nil {
		slog.Error("Failed to load receipts", "error", err)
		v.loadState = LoadFailed
		v.loadErr = err.Error()
		return fmt.Errorf("loading receipts: %w", err)
	}

	v.receipts = newestFirst(records)
	v.loadState = LoadLoaded
	v.loadErr = ""
	return nil
}

// LoadReceipts replaces the receipt list with the backend's, newest first.
// On failure the previous list is kept and the view is marked as failed.
func (v *View) LoadReceipts(ctx context.Context) error {
	v.mu.Lock()
	seq := v.beginLoad()
	v.mu.Unlock()

	return v.load(ctx, seq)
}

// Present loads the receipt list the first time the view is shown
func (v *View) Present(ctx context.Context) {
	v.mu.Lock()
	if v.loadState != LoadIdle {
		v.mu.Unlock()
		return
	}
	seq := v.beginLoad()
	v.mu.Unlock()

	// Failures are logged and reflected in the load state
	_ = v.load(ctx, seq)
}

// SelectFile makes file the pending draft, replacing and releasing any earlier one.
// A nil file means the picker was cancelled and changes nothing.
func (v *View) SelectFile(ctx context.Context, file *File) error {
	if file == nil || file.Filename == "" {
		return nil
	}

	previewID, err := v.previews.Create(ctx, file.Data, file.ContentType)
	if err != nil {
		return fmt.Errorf("creating preview: %w", err)
	}

	v.mu.Lock()
	replaced := v.draft
	v.draft = &Draft{File: file, PreviewID: previewID}
	v.mu.Unlock()

	if replaced != nil {
		v.release(ctx, replaced)
	}
	return nil
}

// release discards the preview of a draft that is no longer held by the view
func (v *View) release(ctx context.Context, d *Draft) {
	if err := v.previews.Release(ctx, d.PreviewID); err != nil {
		slog.Warn("Failed to release preview", "preview_id", d.PreviewID, "error", err)
	}
}

// abandon clears d if it is still the pending draft and releases its preview
func (v *View) abandon(ctx context.Context, d *Draft) bool {
	v.mu.Lock()
	if v.draft != d {
		v.mu.Unlock()
		return false
	}
	v.draft = nil
	v.mu.Unlock()

	v.release(ctx, d)
	return true
}

// DiscardDraft abandons the pending draft, if any
func (v *View) DiscardDraft(ctx context.Context) error {
	v.mu.Lock()
	d := v.draft
	v.mu.Unlock()

	if d == nil {
		return nil
	}
	v.abandon(ctx, d)
	return nil
}

// SubmitUpload sends the pending draft to the backend.
// On success the draft is abandoned and the list refreshed; on failure the draft is kept
// so the user can try again. Either way the user is notified once.
func (v *View) SubmitUpload(ctx context.Context) error {
	v.mu.Lock()
	if v.draft == nil {
		v.mu.Unlock()
		return ErrNoDraft
	}
	if v.uploading {
		v.mu.Unlock()
		return ErrUploadInProgress
	}
	draft := v.draft
	v.uploading = true
	v.mu.Unlock()

	defer func() {
		v.mu.Lock()
		v.uploading = false
		v.mu.Unlock()
	}()

	if err := v.backend.UploadReceipt(ctx, draft.File); err != nil {
		slog.Error("Failed to upload receipt",
			"filename", draft.File.Filename,
			"content_type", draft.File.ContentType,
			"file_size", draft.File.Size(),
			"error", err,
		)
		v.notifier.Notify(Notice{Kind: NoticeFailure, Message: uploadFailedPrefix + err.Error()})
		return fmt.Errorf("uploading receipt: %w", err)
	}

	slog.Info("Receipt uploaded", "filename", draft.File.Filename, "file_size", draft.File.Size())
	v.abandon(ctx, draft)
	// A failed refresh is already logged and shown as a failed load
	_ = v.LoadReceipts(ctx)
	v.notifier.Notify(Notice{Kind: NoticeSuccess, Message: uploadSucceededMessage})
	return nil
}

// Total returns the sum of all held receipts' total amounts
func (v *View) Total() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return totalOf(v.receipts)
}

// Snapshot returns a copy of the current state
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	receipts := make([]Record, len(v.receipts))
	copy(receipts, v.receipts)

	snap := Snapshot{
		Receipts:    receipts,
		Uploading:   v.uploading,
		LoadState:   v.loadState,
		LoadError:   v.loadErr,
		TotalAmount: totalOf(receipts),
		Count:       len(receipts),
	}
	if v.draft != nil {
		snap.Draft = &DraftSummary{
			Filename:    v.draft.File.Filename,
			ContentType: v.draft.File.ContentType,
			Size:        v.draft.File.Size(),
			PreviewID:   v.draft.PreviewID,
		}
	}
	return snap
}

// Close releases the pending draft's preview
func (v *View) Close(ctx context.Context) error {
	return v.DiscardDraft(ctx)
}
