package backfill

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
)

// json is a drop-in replacement for encoding/json with better performance.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxScanTokenSize = 10 * 1024 * 1024 // 10MB

// Resource describes one published file of a dataset, as listed in the
// resources manifest.
type Resource struct {
	Name      string `json:"name"`
	Checksum  string `json:"checksum"`
	Timestamp string `json:"timestamp"`
	MimeType  string `json:"mime_type"`
	Title     string `json:"title,omitempty"`
	Size      int64  `json:"size"`
}

// Resources is the resources manifest of a dataset.
type Resources struct {
	Resources []Resource `json:"resources"`
}

// Issue is one entry of a dataset's issues log.
type Issue struct {
	ID           int64          `json:"id,omitempty"`
	Timestamp    string         `json:"timestamp"`
	Level        string         `json:"level"`
	Module       string         `json:"module,omitempty"`
	Dataset      string         `json:"dataset"`
	Message      string         `json:"message"`
	EntityID     string         `json:"entity_id,omitempty"`
	EntitySchema string         `json:"entity_schema,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// ReadJSONResource decodes the JSON file at path into v.
func ReadJSONResource(path string, v any) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer closer(file)()

	if err := json.NewDecoder(bufio.NewReader(file)).Decode(v); err != nil {
		return fmt.Errorf("backfill: decode %s: %w", path, err)
	}
	return nil
}

// DatasetResources returns the resources manifest of ds, backfilling it
// when missing locally.
func (a *Archive) DatasetResources(ctx context.Context, ds Dataset) (*Resources, error) {
	local, err := a.GetDatasetResource(ctx, ds, ResourcesFile)
	if err != nil {
		return nil, err
	}
	var res Resources
	if err := ReadJSONResource(local, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// IterDatasetIssues returns the issues log of ds, backfilling it when
// missing locally.
func (a *Archive) IterDatasetIssues(ctx context.Context, ds Dataset) (*IssueIterator, error) {
	local, err := a.GetDatasetResource(ctx, ds, IssuesLog)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(local)
	if err != nil {
		return nil, err
	}
	return IterIssues(file), nil
}

// IssueIterator lazily decodes a JSON Lines issues log.
type IssueIterator struct {
	src     io.ReadCloser
	scanner *bufio.Scanner
	current Issue
	err     error
	done    bool
}

// IterIssues returns an iterator over the issues in rc. The iterator owns
// rc and closes it when iteration ends or Close is called.
func IterIssues(rc io.ReadCloser) *IssueIterator {
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScanTokenSize)
	return &IssueIterator{src: rc, scanner: scanner}
}

// Next advances to the next issue. Blank lines are skipped.
func (it *IssueIterator) Next() bool {
	if it.done {
		return false
	}
	for it.scanner.Scan() {
		line := it.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var issue Issue
		if err := json.Unmarshal(line, &issue); err != nil {
			it.err = err
			_ = it.Close()
			return false
		}
		it.current = issue
		return true
	}
	it.err = it.scanner.Err()
	_ = it.Close()
	return false
}

// Issue returns the current issue.
func (it *IssueIterator) Issue() Issue { return it.current }

// Err returns the error that ended iteration, if any.
func (it *IssueIterator) Err() error { return it.err }

// Close releases the underlying handle.
func (it *IssueIterator) Close() error {
	if it.done {
		return nil
	}
	it.done = true
	return it.src.Close()
}
