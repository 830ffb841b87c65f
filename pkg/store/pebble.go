package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"backchannel/pkg/logger"
	"backchannel/pkg/models"

	"github.com/cockroachdb/pebble"
)

var (
	db     *pebble.DB
	dbPath string
)

// seq reduces key collisions when multiple messages share the same
// nanosecond timestamp.
var seq uint64

// Open opens (or creates) a Pebble database at the given path and keeps
// a global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "err", err)
		return err
	}
	dbPath = path
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

func notOpen() error { return fmt.Errorf("pebble not opened; call store.Open first") }

// SaveMessage appends a message to a contact's chat under a sortable
// timestamp key and indexes it by message ID so reactions can rewrite it
// in place later. Messages are ordered by insertion time.
func SaveMessage(contactID string, msg models.Message) error {
	if db == nil {
		return notOpen()
	}
	// Key format: chat:<contactID>:msg:<unix_nano_padded>-<seq>
	ts := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&seq, 1)
	key := fmt.Sprintf("chat:%s:msg:%020d-%06d", contactID, ts, s)

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := db.Set([]byte(key), data, pebble.Sync); err != nil {
		logger.Error("save_message_failed", "contact", contactID, "key", key, "err", err)
		return err
	}
	if msg.ID != "" {
		idxKey := fmt.Sprintf("chat:%s:idx:%s", contactID, msg.ID)
		if err := db.Set([]byte(idxKey), []byte(key), pebble.Sync); err != nil {
			logger.Error("save_message_index_failed", "key", idxKey, "err", err)
			return err
		}
	}
	logger.Debug("message_saved", "contact", contactID, "key", key, "msg_id", msg.ID)
	return nil
}

// UpdateMessage rewrites an already-appended message in place, located via
// the message-ID index. Only the reaction map legitimately changes after
// creation.
func UpdateMessage(contactID string, msg models.Message) error {
	if db == nil {
		return notOpen()
	}
	idxKey := fmt.Sprintf("chat:%s:idx:%s", contactID, msg.ID)
	k, closer, err := db.Get([]byte(idxKey))
	if err != nil {
		return fmt.Errorf("message %s not indexed: %w", msg.ID, err)
	}
	key := append([]byte(nil), k...)
	if closer != nil {
		closer.Close()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := db.Set(key, data, pebble.Sync); err != nil {
		logger.Error("update_message_failed", "contact", contactID, "msg_id", msg.ID, "err", err)
		return err
	}
	return nil
}

// ListMessages returns all messages for a contact in insertion order.
func ListMessages(contactID string, limit ...int) ([]models.Message, error) {
	if db == nil {
		return nil, notOpen()
	}
	prefix := []byte("chat:" + contactID + ":msg:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	max := -1
	if len(limit) > 0 {
		max = limit[0]
	}
	var out []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			logger.Warn("list_messages_bad_value", "key", string(iter.Key()), "err", err)
			continue
		}
		out = append(out, m)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out, iter.Error()
}

// SaveContact stores a contact record under a reserved key.
func SaveContact(c models.Contact) error {
	if db == nil {
		return notOpen()
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal contact: %w", err)
	}
	key := []byte("contact:" + c.ID)
	if err := db.Set(key, data, pebble.Sync); err != nil {
		logger.Error("save_contact_failed", "contact", c.ID, "err", err)
		return err
	}
	return nil
}

// GetContact returns the stored contact for an ID.
func GetContact(id string) (models.Contact, error) {
	var c models.Contact
	if db == nil {
		return c, notOpen()
	}
	v, closer, err := db.Get([]byte("contact:" + id))
	if err != nil {
		return c, err
	}
	if closer != nil {
		defer closer.Close()
	}
	if err := json.Unmarshal(v, &c); err != nil {
		return c, fmt.Errorf("invalid stored contact %s: %w", id, err)
	}
	return c, nil
}

// ListContacts returns all stored contacts.
func ListContacts() ([]models.Contact, error) {
	if db == nil {
		return nil, notOpen()
	}
	prefix := []byte("contact:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Contact
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var c models.Contact
		if err := json.Unmarshal(iter.Value(), &c); err != nil {
			logger.Warn("list_contacts_bad_value", "key", string(iter.Key()), "err", err)
			continue
		}
		out = append(out, c)
	}
	return out, iter.Error()
}

// SaveProfile stores the local user profile.
func SaveProfile(p models.Profile) error {
	if db == nil {
		return notOpen()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := db.Set([]byte("profile"), data, pebble.Sync); err != nil {
		logger.Error("save_profile_failed", "err", err)
		return err
	}
	return nil
}

// GetProfile returns the stored local profile, or pebble.ErrNotFound when
// no profile has been saved yet.
func GetProfile() (models.Profile, error) {
	var p models.Profile
	if db == nil {
		return p, notOpen()
	}
	v, closer, err := db.Get([]byte("profile"))
	if err != nil {
		return p, err
	}
	if closer != nil {
		defer closer.Close()
	}
	if err := json.Unmarshal(v, &p); err != nil {
		return p, fmt.Errorf("invalid stored profile: %w", err)
	}
	return p, nil
}

// SaveChatMeta stores per-contact chat metadata under a reserved key.
func SaveChatMeta(contactID string, meta models.ChatMetadata) error {
	if db == nil {
		return notOpen()
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal chat meta: %w", err)
	}
	key := []byte("chat:" + contactID + ":meta")
	if err := db.Set(key, data, pebble.Sync); err != nil {
		logger.Error("save_chat_meta_failed", "contact", contactID, "err", err)
		return err
	}
	return nil
}

// GetChatMeta returns stored metadata for a contact.
func GetChatMeta(contactID string) (models.ChatMetadata, error) {
	var meta models.ChatMetadata
	if db == nil {
		return meta, notOpen()
	}
	v, closer, err := db.Get([]byte("chat:" + contactID + ":meta"))
	if err != nil {
		return meta, err
	}
	if closer != nil {
		defer closer.Close()
	}
	if err := json.Unmarshal(v, &meta); err != nil {
		return meta, fmt.Errorf("invalid stored chat meta: %w", err)
	}
	return meta, nil
}

// IsNotFound reports whether err is the pebble missing-key error.
func IsNotFound(err error) bool {
	return errors.Is(err, pebble.ErrNotFound)
}

// ListKeys returns all keys (as strings) that start with the given prefix.
// If prefix is empty it returns all keys in the DB.
func ListKeys(prefix string) ([]string, error) {
	if db == nil {
		return nil, notOpen()
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	if prefix == "" {
		for iter.First(); iter.Valid(); iter.Next() {
			out = append(out, string(append([]byte(nil), iter.Key()...)))
		}
		return out, iter.Error()
	}
	pfx := []byte(prefix)
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		out = append(out, string(append([]byte(nil), iter.Key()...)))
	}
	return out, iter.Error()
}

// GetKey returns the raw value for the given key.
func GetKey(key string) (string, error) {
	if db == nil {
		return "", notOpen()
	}
	v, closer, err := db.Get([]byte(key))
	if err != nil {
		return "", err
	}
	if closer != nil {
		defer closer.Close()
	}
	return string(v), nil
}

// SaveKey stores an arbitrary key/value pair. Callers should choose a safe
// namespace.
func SaveKey(key string, value []byte) error {
	if db == nil {
		return notOpen()
	}
	return db.Set([]byte(key), value, pebble.Sync)
}

// DBIter returns a raw Pebble iterator for low-level operations. Caller must
// close the iterator when done.
func DBIter() (*pebble.Iterator, error) {
	if db == nil {
		return nil, notOpen()
	}
	return db.NewIter(&pebble.IterOptions{})
}
