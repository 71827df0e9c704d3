package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/purchasebot/internal/purchase"
	"github.com/fyrsmithlabs/purchasebot/internal/storage"
)

// MappingFile is the mapping file name under the storage root.
const MappingFile = "user_id_mapping.json"

// placeholderPrefix starts the generated name of an unmapped id.
const placeholderPrefix = "User_"

var userIDPattern = regexp.MustCompile(`^U[A-Z0-9]+$`)

// Mapping maps user ids to the names written into exports.
type Mapping map[string]string

// UserCount is a user id and how many records carry it.
type UserCount struct {
	UserID   string `json:"user_id"`
	Requests int    `json:"requests"`
}

// Placeholder returns the generated name for an unmapped id: "User_"
// followed by the id's last four characters.
func Placeholder(userID string) string {
	if len(userID) > 4 {
		return placeholderPrefix + userID[len(userID)-4:]
	}
	return placeholderPrefix + userID
}

// IsPlaceholder reports whether name was generated by Placeholder.
func IsPlaceholder(name string) bool {
	return strings.HasPrefix(name, placeholderPrefix)
}

// recordUserID is the id a record is attributed to: its original user id,
// or a requester name that is itself an id.
func recordUserID(r purchase.Record) string {
	id := r.RequesterID
	if id == "" {
		id = r.RequesterName
	}
	if userIDPattern.MatchString(id) {
		return id
	}
	return ""
}

// CollectUserIDs counts the user ids in every bucket of store, most
// frequent first. Equal counts are ordered by id.
func CollectUserIDs(store *storage.Store) ([]UserCount, error) {
	buckets, err := store.Buckets()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, b := range buckets {
		records, err := store.Load(b)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", b, err)
		}
		for _, r := range records {
			if id := recordUserID(r); id != "" {
				counts[id]++
			}
		}
	}

	out := make([]UserCount, 0, len(counts))
	for id, n := range counts {
		out = append(out, UserCount{UserID: id, Requests: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Requests != out[j].Requests {
			return out[i].Requests > out[j].Requests
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

// LoadMapping reads the mapping file. A missing file is an empty mapping.
func LoadMapping(path string) (Mapping, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Mapping{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading mapping: %w", err)
	}
	m := Mapping{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing mapping %s: %w", path, err)
	}
	return m, nil
}

// Save writes the mapping to path.
func (m Mapping) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating mapping directory: %w", err)
	}
	return storage.WriteFileAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	})
}

// Merge adds a placeholder for every id not already mapped and returns the
// ids it added. Existing names are never changed.
func (m Mapping) Merge(users []UserCount) []string {
	var added []string
	for _, u := range users {
		if _, ok := m[u.UserID]; ok {
			continue
		}
		m[u.UserID] = Placeholder(u.UserID)
		added = append(added, u.UserID)
	}
	return added
}

// Apply relabels every record attributed to a mapped id and rewrites the
// buckets that changed. It returns the number of records relabeled.
func (m Mapping) Apply(store *storage.Store) (int, error) {
	buckets, err := store.Buckets()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, b := range buckets {
		records, err := store.Load(b)
		if err != nil {
			return total, fmt.Errorf("loading %s: %w", b, err)
		}
		changed := 0
		for i, r := range records {
			name, ok := m[recordUserID(r)]
			if !ok || r.RequesterName == name {
				continue
			}
			records[i].RequesterName = name
			changed++
		}
		if changed == 0 {
			continue
		}
		if err := store.Save(b, records); err != nil {
			return total, fmt.Errorf("saving %s: %w", b, err)
		}
		total += changed
	}
	return total, nil
}
