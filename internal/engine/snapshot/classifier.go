package snapshot

import (
	"path/filepath"
	"strings"
)

// Class is the tracking strategy chosen for a path.
type Class uint8

const (
	// ClassTracked paths get full timestamp/content tracking.
	ClassTracked Class = iota
	// ClassManaged paths are governed by a package manager: tracking is
	// replaced by a cheap manifest-identity read.
	ClassManaged
	// ClassImmutable paths live in content-addressed storage and are
	// assumed never to change; they are exempt from tracking entirely.
	ClassImmutable
)

// Classifier short-circuits snapshotting for paths under configured managed
// and immutable roots. It is purely a performance layer in front of the
// engine: anything uncertain falls through to full tracking.
type Classifier struct {
	managed   []string
	immutable []string
}

// NewClassifier creates a classifier for the given roots. An empty managed
// list disables the managed-path optimization.
func NewClassifier(managed, immutable []string) *Classifier {
	return &Classifier{
		managed:   cleanRoots(managed),
		immutable: cleanRoots(immutable),
	}
}

// Classify returns the tracking strategy for path. Immutable roots win over
// managed roots so content-addressed stores nested under a managed tree
// stay exempt.
func (c *Classifier) Classify(path string) Class {
	if underAny(path, c.immutable) {
		return ClassImmutable
	}
	if underAny(path, c.managed) {
		return ClassManaged
	}
	return ClassTracked
}

func cleanRoots(roots []string) []string {
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		if r == "" {
			continue
		}
		out = append(out, filepath.Clean(r))
	}
	return out
}

func underAny(path string, roots []string) bool {
	cleaned := filepath.Clean(path)
	for _, root := range roots {
		if cleaned == root || strings.HasPrefix(cleaned, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
