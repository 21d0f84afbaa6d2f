package entity

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const fallbackName = "upload"

// Build the unique name of an upload from the time it was received and the
// original file name. The name is used both for the staged file and for the
// key of the archived object.
//
// Uniqueness relies on the nanosecond timestamp: two uploads of the same file
// name received at the same instant get the same name, and the later archive
// write replaces the earlier one.
func UniqueName(t time.Time, original string) string {
	return strconv.FormatInt(t.UnixNano(), 10) + "-" + baseName(original)
}

// Strip any directory part a client may have put into the file name.
func baseName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base(strings.TrimSpace(name))
	switch name {
	case "", ".", "..", "/":
		return fallbackName
	}
	return name
}
