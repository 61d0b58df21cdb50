package receipt

import (
	"context"
	"fmt"
)

// Record represents an analysed receipt as returned by the receipt backend
type Record struct {
	ID          int64   `json:"id"`
	StoreName   string  `json:"storeName"`
	TradeDate   *string `json:"tradeDate"` // nil or empty when the backend could not detect a date
	TotalAmount int64   `json:"totalAmount"`
}

// HasTradeDate reports whether the backend detected a trade date
func (r Record) HasTradeDate() bool {
	return r.TradeDate != nil && *r.TradeDate != ""
}

// File is a file picked by the user for upload
type File struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Size returns the file size in bytes
func (f *File) Size() int {
	return len(f.Data)
}

// Draft is the pending upload: the selected file and its preview
type Draft struct {
	File      *File
	PreviewID string
}

// Backend is the remote receipt-analysis service
type Backend interface {
	// ListReceipts returns every receipt, oldest first
	ListReceipts(ctx context.Context) ([]Record, error)

	// UploadReceipt sends a receipt image for analysis
	UploadReceipt(ctx context.Context, file *File) error
}

// LoadState tracks the outcome of the most recent list fetch
type LoadState int

const (
	LoadIdle LoadState = iota
	LoadLoading
	LoadLoaded
	LoadFailed
)

func (s LoadState) String() string {
	switch s {
	case LoadLoading:
		return "loading"
	case LoadLoaded:
		return "loaded"
	case LoadFailed:
		return "failed"
	default:
		return "idle"
	}
}

// MarshalText renders the state by name in JSON
func (s LoadState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText
func (s *LoadState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = LoadIdle
	case "loading":
		*s = LoadLoading
	case "loaded":
		*s = LoadLoaded
	case "failed":
		*s = LoadFailed
	default:
		return fmt.Errorf("unknown load state %q", text)
	}
	return nil
}
