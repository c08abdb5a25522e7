package object

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// GCSummary reports the outcome of Store.GCReachable.
type GCSummary struct {
	PrunedObjects int
}

// GCReachable removes loose objects not reachable from roots. It is a
// mark-and-sweep collector: Store.ReachableSet walks blob/tree/commit/tag
// references from roots to build the live set, then every loose object
// outside that set is deleted.
func (s *Store) GCReachable(roots []Hash) (*GCSummary, error) {
	reachable, err := s.ReachableSet(roots)
	if err != nil {
		return nil, fmt.Errorf("gc: %w", err)
	}

	loose, err := s.listLooseObjectHashes()
	if err != nil {
		return nil, fmt.Errorf("gc: %w", err)
	}

	pruned := 0
	for _, h := range loose {
		if _, live := reachable[h]; live {
			continue
		}
		if err := os.Remove(s.objectPath(h)); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("gc: remove %s: %w", h, err)
		}
		pruned++
	}

	return &GCSummary{PrunedObjects: pruned}, nil
}

func (s *Store) listLooseObjectHashes() ([]Hash, error) {
	objectsDir := filepath.Join(s.root, "objects")
	fanoutDirs, err := os.ReadDir(objectsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read objects dir: %w", err)
	}

	hashes := make([]Hash, 0)
	for _, fanoutDir := range fanoutDirs {
		if !fanoutDir.IsDir() {
			continue
		}
		prefix := fanoutDir.Name()
		if !isHexHashComponent(prefix, 2) {
			continue
		}

		objectDir := filepath.Join(objectsDir, prefix)
		objectEntries, err := os.ReadDir(objectDir)
		if err != nil {
			return nil, fmt.Errorf("read objects fanout %s: %w", prefix, err)
		}
		for _, objectEntry := range objectEntries {
			if objectEntry.IsDir() {
				continue
			}
			suffix := objectEntry.Name()
			if !isHexHashComponent(suffix, 38) {
				continue
			}
			hashes = append(hashes, Hash(prefix+suffix))
		}
	}

	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })
	return hashes, nil
}

func isHexHashComponent(s string, expectedLen int) bool {
	if len(s) != expectedLen {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
