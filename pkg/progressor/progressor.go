package progressor

import (
	"context"
	"fmt"
	"strings"

	"backchannel/pkg/logger"
	"backchannel/pkg/store"
)

const systemVersionKey = "system:version"

// Sync performs upgrade work between versions. Edit in-place for migration
// logic.
func Sync(ctx context.Context, version string) error {
	prev, err := store.GetKey(systemVersionKey)
	if err != nil && !store.IsNotFound(err) {
		return err
	}
	if prev == version {
		return nil
	}
	logger.Info("progressor_sync_start", "from", prev, "to", version)

	// Migration: backfill message-ID index entries for chats written before
	// the idx namespace existed. Idempotent and safe to run repeatedly.
	if err := backfillMessageIndex(ctx); err != nil {
		logger.Error("progressor_backfill_failed", "error", err)
		return err
	}

	if err := store.SaveKey(systemVersionKey, []byte(version)); err != nil {
		return fmt.Errorf("save system version: %w", err)
	}
	logger.Info("progressor_sync_done", "version", version)
	return nil
}

func backfillMessageIndex(ctx context.Context) error {
	keys, err := store.ListKeys("chat:")
	if err != nil {
		return err
	}
	var added int
	for _, k := range keys {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		parts := strings.SplitN(k, ":", 4)
		if len(parts) != 4 || parts[2] != "msg" {
			continue
		}
		contactID := parts[1]
		v, err := store.GetKey(k)
		if err != nil {
			continue
		}
		id := extractID(v)
		if id == "" {
			continue
		}
		idxKey := fmt.Sprintf("chat:%s:idx:%s", contactID, id)
		if _, err := store.GetKey(idxKey); err == nil {
			continue
		}
		if err := store.SaveKey(idxKey, []byte(k)); err != nil {
			return err
		}
		added++
	}
	if added > 0 {
		logger.Info("progressor_index_backfilled", "entries", added)
	}
	return nil
}

// extractID pulls the "id" field out of a stored message value without a
// full decode; message values are flat JSON with id serialized first.
func extractID(v string) string {
	const marker = `"id":"`
	i := strings.Index(v, marker)
	if i < 0 {
		return ""
	}
	rest := v[i+len(marker):]
	j := strings.IndexByte(rest, '"')
	if j < 0 {
		return ""
	}
	return rest[:j]
}
