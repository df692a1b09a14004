package snapshot

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cleanslate/core/internal/diag"
)

func nowMs() int64 { return time.Now().UnixMilli() }

// Sweep runs the startup self-healing pass (the crash-recovery
// invariant): orphaned .tmp files left by an interrupted atomic write, and
// shard files below the corrupt-size floor, are removed so a subsequent
// thaw fails fast with ErrMissingSnapshot/ErrCorruptSnapshot instead of
// silently reading partial data. It never touches manifest.json files; a
// snapshot missing shards its manifest references is left for the caller
// to diagnose on the next ReadManifest/ReadShard.
func (s *Store) Sweep(log *diag.Logger) {
	snapshotsDir := filepath.Join(s.root, "snapshots")
	entries, err := os.ReadDir(snapshotsDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(snapshotsDir, e.Name())
		s.sweepDir(dir, log)
	}
}

func (s *Store) sweepDir(dir string, log *diag.Logger) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		name := f.Name()
		path := filepath.Join(dir, name)

		if strings.HasPrefix(name, ".") && strings.Contains(name, "-tmp-") {
			if err := os.Remove(path); err == nil && log != nil {
				log.Warn("snapshot", "removed orphaned tmp file "+path)
			}
			continue
		}
		if strings.HasSuffix(name, ".parquet") {
			info, err := f.Info()
			if err != nil {
				continue
			}
			if info.Size() < minValidShardBytes {
				if err := os.Remove(path); err == nil && log != nil {
					log.Warn("snapshot", "removed corrupt shard "+path)
				}
			}
		}
	}
}
