// Package store persists transcripts between process lifetimes so a
// conversation can resume later. Transcripts travel through their JSON
// envelope, which keeps every entry kind and correlation id intact.
package store

import (
	"context"
	"errors"

	"github.com/Protocol-Lattice/go-session/pkg/transcript"
)

// ErrNotFound reports a transcript id with no stored record.
var ErrNotFound = errors.New("store: transcript not found")

// Store is the persistence boundary. Save overwrites any previous record
// under the same id.
type Store interface {
	Save(ctx context.Context, id string, t *transcript.Transcript) error
	Load(ctx context.Context, id string) (*transcript.Transcript, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id string) error
}
