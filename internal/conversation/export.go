package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/purchasebot/internal/purchase"
)

// maxStoredErrors caps the per-file errors kept in a ReadResult.
const maxStoredErrors = 10

// ExportReader reads channel history from a workspace export: one directory
// per channel holding daily files (YYYY-MM-DD.json), each a JSON array of
// messages. It lets extraction run offline without API access.
type ExportReader struct {
	root string
}

// NewExportReader creates a reader over the export rooted at root.
func NewExportReader(root string) *ExportReader {
	return &ExportReader{root: root}
}

// exportMessage is the subset of an exported message the pipeline uses.
type exportMessage struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`
	User    string `json:"user,omitempty"`
	Text    string `json:"text"`
	TS      string `json:"ts"`
}

// ReadResult contains messages and any errors encountered while reading.
type ReadResult struct {
	Messages   []purchase.ChatMessage
	ErrorCount int
	Errors     []ReadError
}

// ReadError describes one file that could not be read.
type ReadError struct {
	File  string
	Error string
}

// ChannelID returns the channel directory name for name.
func (r *ExportReader) ChannelID(_ context.Context, name string) (string, error) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "#")
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrChannelNotFound, name)
	}
	info, err := os.Stat(filepath.Join(r.root, name))
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %q in %s", ErrChannelNotFound, name, r.root)
	}
	return name, nil
}

// History implements History. Unreadable files are skipped and reported in
// the returned error alongside the messages that could be read.
func (r *ExportReader) History(ctx context.Context, channelID string) ([]purchase.ChatMessage, error) {
	result, err := r.ReadChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if result.ErrorCount > 0 {
		errs := make([]error, 0, len(result.Errors))
		for _, e := range result.Errors {
			errs = append(errs, fmt.Errorf("%s: %s", e.File, e.Error))
		}
		return result.Messages, fmt.Errorf("%d export files unreadable: %w", result.ErrorCount, errors.Join(errs...))
	}
	return result.Messages, nil
}

// ReadChannel reads every daily file of a channel in name order.
func (r *ExportReader) ReadChannel(ctx context.Context, channelID string) (*ReadResult, error) {
	files, err := filepath.Glob(filepath.Join(r.root, channelID, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("globbing files: %w", err)
	}
	sort.Strings(files)

	result := &ReadResult{
		Messages: make([]purchase.ChatMessage, 0),
		Errors:   make([]ReadError, 0),
	}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msgs, err := readExportFile(file)
		if err != nil {
			result.ErrorCount++
			if len(result.Errors) < maxStoredErrors {
				result.Errors = append(result.Errors, ReadError{
					File:  filepath.Base(file),
					Error: err.Error(),
				})
			}
			continue
		}
		result.Messages = append(result.Messages, msgs...)
	}
	return result, nil
}

func readExportFile(path string) ([]purchase.ChatMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	var raw []exportMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("JSON parse error: %w", err)
	}

	msgs := make([]purchase.ChatMessage, 0, len(raw))
	for _, m := range raw {
		if m.Type != "" && m.Type != "message" {
			continue
		}
		msgs = append(msgs, purchase.ChatMessage{Sender: m.User, Text: m.Text, Timestamp: m.TS})
	}
	return msgs, nil
}

var _ History = (*ExportReader)(nil)
