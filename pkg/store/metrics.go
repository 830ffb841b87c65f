package store

import (
	"io/fs"
	"path/filepath"
)

// PebbleMetrics is a compact view of store health used by the maintenance
// sweep and the telemetry gauges.
type PebbleMetrics struct {
	DiskBytes      uint64
	WALBytes       uint64
	L0Files        int
	CompactionDebt uint64
}

// GetPebbleMetrics returns best-effort metrics about the pebble DB. Disk
// usage is computed from the DB directory; the rest come from
// pebble.Metrics when the DB is open.
func GetPebbleMetrics() PebbleMetrics {
	var m PebbleMetrics
	if db == nil || dbPath == "" {
		return m
	}
	var total uint64
	_ = filepath.WalkDir(dbPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			total += uint64(fi.Size())
		}
		return nil
	})
	m.DiskBytes = total
	if pm := db.Metrics(); pm != nil {
		m.WALBytes = pm.WAL.Size
		m.L0Files = int(pm.Levels[0].NumFiles)
		m.CompactionDebt = pm.Compact.EstimatedDebt
	}
	return m
}
