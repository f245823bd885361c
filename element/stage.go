package element

import "context"

// Stage is an optional per-buffer transform owned by one element.
//
// Start allocates the expensive resources (a loaded model) and is called on
// the Null->Ready transition; Stop releases them on Ready->Null. Process runs
// synchronously inside the sink chain, under the element's stage lock, and
// returns the buffer to push downstream.
type Stage interface {
	Start(ctx context.Context) error
	Process(buf *Buffer) (*Buffer, error)
	Stop() error
}
