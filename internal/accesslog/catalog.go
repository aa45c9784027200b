package accesslog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var (
	// ErrBadName marks file names that fail the shape check. Rejected
	// before any filesystem access.
	ErrBadName = errors.New("invalid log file name")

	// ErrNotFound marks a well-formed name with no file behind it.
	ErrNotFound = errors.New("log file not found")
)

// namePattern matches the daily file names produced by Append.
var namePattern = regexp.MustCompile(`^access-(\d{4}-\d{2}-\d{2})\.log$`)

// List returns the names of all daily log files, newest first. An
// existing directory with no matching files yields an empty slice and
// no error; a missing or unreadable directory is an error.
//
// Sorting is a plain string sort on the name: the embedded YYYY-MM-DD
// segment is lexicographically equivalent to chronological order.
func (l *Log) List() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read log dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !namePattern.MatchString(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// ValidName reports whether name has the access-*.log shape. Anything
// else — including values smuggling path separators or traversal
// segments — is rejected so Read never touches the filesystem for it.
func ValidName(name string) bool {
	const prefix, suffix = "access-", ".log"
	if len(name) <= len(prefix)+len(suffix) {
		return false
	}
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..")
}

// Read returns the raw text of one log file by name. Errors are
// distinct: ErrBadName for a failed shape check (no filesystem access
// attempted), ErrNotFound for a missing file, and a wrapped I/O error
// otherwise.
func (l *Log) Read(name string) (string, error) {
	if !ValidName(name) {
		return "", fmt.Errorf("%w: %q", ErrBadName, name)
	}
	data, err := os.ReadFile(filepath.Join(l.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return "", fmt.Errorf("read log file: %w", err)
	}
	return string(data), nil
}
