package problems

import (
	"context"
	"strings"
	"unicode"

	"github.com/rpattn/afsync/internal/domain"
	"github.com/rpattn/afsync/internal/parser"
)

// ArchiveState tags an archived line with the transition that produced it.
type ArchiveState string

const (
	StateNew      ArchiveState = "new"
	StateStill    ArchiveState = "still"
	StateResolved ArchiveState = "resolved"
)

// ArchiveEntry is one archived line. Entries are keyed by kind, entity,
// source, state and content hash, and are never rewritten once stored.
type ArchiveEntry struct {
	Kind     domain.Kind
	EntityID parser.EntityID
	Source   string
	State    ArchiveState
	Label    string
	Hash     string
	Body     string
}

// Store persists markers and archive entries. A marker exists for (kind, id)
// while the entity has at least one unresolved bad line of that kind.
type Store interface {
	ListMarked(ctx context.Context, kind domain.Kind) ([]int64, error)
	ReadMarker(ctx context.Context, kind domain.Kind, id int64) (string, error)
	WriteMarker(ctx context.Context, kind domain.Kind, id int64, dump string) error
	AppendMarker(ctx context.Context, kind domain.Kind, id int64, dump string) error
	DeleteMarker(ctx context.Context, kind domain.Kind, id int64) error
	// Archive stores entry unless an entry with the same key exists. It
	// reports whether the entry was written.
	Archive(ctx context.Context, entry ArchiveEntry) (bool, error)
	Close() error
}

const maxLabelLength = 60

// sanitize makes a value safe for use inside a file name or key segment.
func sanitize(value string, limit int) string {
	var b strings.Builder
	for _, r := range value {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	// "__" separates segments
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	if limit > 0 && len([]rune(out)) > limit {
		out = string([]rune(out)[:limit])
	}
	out = strings.Trim(out, "_")
	if out == "" {
		return "_"
	}
	return out
}
