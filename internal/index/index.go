package index

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/AlbertoV5/workstream/internal/errors"
	"github.com/AlbertoV5/workstream/internal/fstore"
	"github.com/AlbertoV5/workstream/internal/repo"
)

// CurrentKeyword is the literal stream argument that resolves to the
// registry's current-selection pointer.
const CurrentKeyword = "current"

var streamIDPattern = regexp.MustCompile(`^\d{3}-[a-z0-9][a-z0-9-]*$`)

// Load reads the registry from disk. A missing file yields an empty
// registry rather than an error, so first use needs no init step.
func Load(root string) (*Index, error) {
	idx := NewIndex()
	err := fstore.ReadJSON(repo.IndexPath(root), idx)
	if err != nil {
		if os.IsNotExist(err) {
			return NewIndex(), nil
		}
		return nil, errors.Wrap(err, "failed to load workstream index")
	}
	return idx, nil
}

// Save writes the registry atomically, refreshing last_updated.
func Save(root string, idx *Index) error {
	idx.Version = IndexVersion
	idx.LastUpdated = time.Now().UTC()
	sort.SliceStable(idx.Streams, func(i, j int) bool {
		return idx.Streams[i].Order < idx.Streams[j].Order
	})
	if err := fstore.WriteJSON(repo.IndexPath(root), idx); err != nil {
		return errors.Wrap(err, "failed to save workstream index")
	}
	return nil
}

// Modify runs a lock-protected load, mutate, save cycle. This is the
// standard path for every registry mutation: status rollups, approval
// changes, and current-selection updates all go through here.
func Modify(root string, locker *fstore.Locker, fn func(*Index) error) error {
	if err := repo.EnsureWorkDir(root); err != nil {
		return err
	}
	return locker.WithLock(repo.IndexPath(root), func() error {
		idx, err := Load(root)
		if err != nil {
			return err
		}
		if err := fn(idx); err != nil {
			return err
		}
		return Save(root, idx)
	})
}

// FindStream resolves a workstream by exact ID or exact name.
// When two streams share a name the first match by order wins; the
// registry does not reject ambiguous names.
func FindStream(idx *Index, idOrName string) (*Workstream, bool) {
	for i := range idx.Streams {
		if idx.Streams[i].ID == idOrName {
			return &idx.Streams[i], true
		}
	}
	for i := range idx.Streams {
		if idx.Streams[i].Name == idOrName {
			return &idx.Streams[i], true
		}
	}
	return nil, false
}

// ResolveStreamID resolves the effective stream ID for an operation.
// An empty argument or the literal "current" falls back to the registry's
// current-selection pointer; anything else resolves by ID or name.
func ResolveStreamID(idx *Index, explicit string) (string, error) {
	if explicit == "" || explicit == CurrentKeyword {
		if idx.CurrentStream == "" {
			return "", errors.NewNotFoundError("current workstream", "").
				WithSuggestion("run 'work use <stream>' to select one")
		}
		return idx.CurrentStream, nil
	}
	stream, ok := FindStream(idx, explicit)
	if !ok {
		return "", errors.NewNotFoundError("workstream", explicit).
			WithSuggestion("run 'work list' to see available streams")
	}
	return stream.ID, nil
}

// NextID allocates the next zero-padded sequential stream ID for a name,
// e.g. "004-fix-auth" when three streams already exist.
func NextID(idx *Index, name string) string {
	return fmt.Sprintf("%03d-%s", len(idx.Streams)+1, Slugify(name))
}

// Slugify lowercases a name and collapses non-alphanumeric runs into
// single hyphens, producing the ID suffix.
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// ValidStreamID reports whether id has the canonical "NNN-slug" shape.
func ValidStreamID(id string) bool {
	return streamIDPattern.MatchString(id)
}

// Create registers a new workstream and returns it. Fails if a stream
// with the same name already exists, since name-based resolution would
// silently shadow it.
func Create(idx *Index, name string) (*Workstream, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.NewValidationError("workstream name cannot be empty").
			WithField("name")
	}
	if _, exists := FindStream(idx, name); exists {
		return nil, errors.NewValidationError("a workstream with this name already exists").
			WithField("name").WithValue(name)
	}

	stream := Workstream{
		ID:       NextID(idx, name),
		Name:     name,
		Order:    len(idx.Streams) + 1,
		Status:   StatusPending,
		Approval: NewApprovalState(),
	}
	idx.Streams = append(idx.Streams, stream)
	return &idx.Streams[len(idx.Streams)-1], nil
}

// Delete removes a workstream from the registry and clears the current
// pointer if it referenced the deleted stream. Returns the removed record.
func Delete(idx *Index, streamID string) (*Workstream, error) {
	for i := range idx.Streams {
		if idx.Streams[i].ID == streamID {
			removed := idx.Streams[i]
			idx.Streams = append(idx.Streams[:i], idx.Streams[i+1:]...)
			if idx.CurrentStream == streamID {
				idx.CurrentStream = ""
			}
			return &removed, nil
		}
	}
	return nil, errors.NewNotFoundError("workstream", streamID)
}

// SetCurrent updates the current-selection pointer and keeps the per-record
// Current flags congruent with it.
func SetCurrent(idx *Index, streamID string) error {
	stream, ok := FindStream(idx, streamID)
	if !ok {
		return errors.NewNotFoundError("workstream", streamID)
	}
	idx.CurrentStream = stream.ID
	for i := range idx.Streams {
		idx.Streams[i].Current = idx.Streams[i].ID == stream.ID
	}
	return nil
}

// ClearCurrent removes the current-selection pointer.
func ClearCurrent(idx *Index) {
	idx.CurrentStream = ""
	for i := range idx.Streams {
		idx.Streams[i].Current = false
	}
}

// SetStatus updates a workstream's rollup status.
func SetStatus(idx *Index, streamID string, status StreamStatus) error {
	if !status.Valid() {
		return errors.NewValidationError("invalid workstream status").
			WithField("status").WithValue(string(status))
	}
	stream, ok := FindStream(idx, streamID)
	if !ok {
		return errors.NewNotFoundError("workstream", streamID)
	}
	stream.Status = status
	return nil
}
