// Package prefs persists the user's performance preference, the auto-tune
// switch and the onboarding profile in a Badger key-value store.
//
// Writes go to disk before returning. When a write fails the value is kept
// in memory for the rest of the session, so the running profile never sees
// the failure; the setting simply falls back to its default next launch.
package prefs

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/adrg/xdg"
	"github.com/dgraph-io/badger/v4"
	"github.com/jamesainslie/aquire/pkg/aquire/logging"
	"github.com/jamesainslie/aquire/pkg/aquire/types"
)

// Persisted keys.
const (
	KeyPreference          = "perfPreference"
	KeyAutoTune            = "perfAutoTuneEnabled"
	KeyExperience          = "experience"
	KeyTelemetryOptIn      = "telemetryOptIn"
	KeyCompletedOnboarding = "hasCompletedOnboarding"
)

// Keys lists every persisted key in display order.
var Keys = []string{
	KeyPreference,
	KeyAutoTune,
	KeyExperience,
	KeyTelemetryOptIn,
	KeyCompletedOnboarding,
}

// ErrUnknownKey is returned by Get and Set for keys outside Keys.
var ErrUnknownKey = errors.New("unknown preference key")

// Defaults for keys that have never been written.
const (
	DefaultPreference = types.PreferenceBalanced
	DefaultAutoTune   = true
	DefaultExperience = types.ExperienceBalanced
)

// Store is the preference store.
type Store struct {
	db *badger.DB

	mu      sync.RWMutex
	overlay map[string]string
}

// DefaultPath returns $XDG_DATA_HOME/aquire/prefs.
func DefaultPath() string {
	return filepath.Join(xdg.DataHome, "aquire", "prefs")
}

// Open opens or creates a store in dir. Writes are synced before Set returns.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithSyncWrites(true)
	opts.Logger = nil
	return open(opts)
}

// OpenInMemory opens a store that lives only as long as the process.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts)
}

func open(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening preference store: %w", err)
	}

	s := &Store{db: db, overlay: make(map[string]string)}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Preference returns the stored preference, or balanced.
func (s *Store) Preference() types.Preference {
	raw, ok := s.lookup(KeyPreference)
	if !ok {
		return DefaultPreference
	}
	p, err := types.ParsePreference(raw)
	if err != nil {
		logging.Get("prefs").Warn("ignoring stored preference", "value", raw)
		return DefaultPreference
	}
	return p
}

// SetPreference stores p.
func (s *Store) SetPreference(p types.Preference) error {
	return s.put(KeyPreference, p.String())
}

// AutoTune returns the auto-tune switch. It is on until explicitly turned off.
func (s *Store) AutoTune() bool {
	return s.boolValue(KeyAutoTune, DefaultAutoTune)
}

// AutoTuneStored reports whether auto-tune has ever been written.
func (s *Store) AutoTuneStored() bool {
	_, ok := s.lookup(KeyAutoTune)
	return ok
}

// SetAutoTune stores the auto-tune switch.
func (s *Store) SetAutoTune(enabled bool) error {
	return s.put(KeyAutoTune, strconv.FormatBool(enabled))
}

// Get returns the raw value of key and whether one is stored.
func (s *Store) Get(key string) (string, bool, error) {
	if !known(key) {
		return "", false, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	v, ok := s.lookup(key)
	return v, ok, nil
}

// Set validates value for key and stores its canonical form.
func (s *Store) Set(key, value string) error {
	var canonical string
	switch key {
	case KeyPreference:
		p, err := types.ParsePreference(value)
		if err != nil {
			return err
		}
		canonical = p.String()
	case KeyExperience:
		e, err := types.ParseExperience(value)
		if err != nil {
			return err
		}
		canonical = e.String()
	case KeyAutoTune, KeyTelemetryOptIn, KeyCompletedOnboarding:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		canonical = strconv.FormatBool(b)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return s.put(key, canonical)
}

// Entry is one key as shown by listings.
type Entry struct {
	Key    string `json:"key" yaml:"key"`
	Value  string `json:"value" yaml:"value"`
	Stored bool   `json:"stored" yaml:"stored"`
}

// Entries returns every key with its effective value.
func (s *Store) Entries() []Entry {
	app := s.AppProfile()
	effective := map[string]string{
		KeyPreference:          s.Preference().String(),
		KeyAutoTune:            strconv.FormatBool(s.AutoTune()),
		KeyExperience:          app.Experience.String(),
		KeyTelemetryOptIn:      strconv.FormatBool(app.TelemetryOptIn),
		KeyCompletedOnboarding: strconv.FormatBool(app.CompletedOnboarding),
	}

	out := make([]Entry, 0, len(Keys))
	for _, k := range Keys {
		_, stored := s.lookup(k)
		out = append(out, Entry{Key: k, Value: effective[k], Stored: stored})
	}
	return out
}

// Reset removes every stored key so defaults apply again.
func (s *Store) Reset() error {
	s.mu.Lock()
	s.overlay = make(map[string]string)
	s.mu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		for _, k := range Keys {
			if err := txn.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) boolValue(key string, def bool) bool {
	raw, ok := s.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		logging.Get("prefs").Warn("ignoring stored flag", "key", key, "value", raw)
		return def
	}
	return b
}

// lookup checks the session overlay first, then the database.
func (s *Store) lookup(key string) (string, bool) {
	s.mu.RLock()
	v, ok := s.overlay[key]
	s.mu.RUnlock()
	if ok {
		return v, true
	}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			v = string(val)
			return nil
		})
	})
	switch {
	case err == nil:
		return v, true
	case errors.Is(err, badger.ErrKeyNotFound):
		return "", false
	default:
		logging.Get("prefs").Warn("reading preference failed", "key", key, "error", err)
		return "", false
	}
}

// put persists key synchronously. On failure the value is kept in the
// session overlay and the error is returned for reporting only.
func (s *Store) put(key, value string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.overlay[key] = value
		logging.Get("prefs").Error("persisting preference failed, keeping it for this session",
			"key", key, "value", value, "error", err)
		return fmt.Errorf("persisting %s: %w", key, err)
	}

	delete(s.overlay, key)
	logging.Get("prefs").Debug("preference saved", "key", key, "value", value)
	return nil
}

func known(key string) bool {
	for _, k := range Keys {
		if k == key {
			return true
		}
	}
	return false
}

// schemaKey records the layout version so later releases can migrate keys.
const (
	schemaKey     = "__schema__"
	schemaVersion = 1
)

// SchemaVersion returns the stored layout version, or 0.
func (s *Store) SchemaVersion() int {
	var version int
	_ = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(schemaKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			version, err = strconv.Atoi(string(val))
			return err
		})
	})
	return version
}

func (s *Store) ensureSchema() error {
	if s.SchemaVersion() >= schemaVersion {
		return nil
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(schemaKey), []byte(strconv.Itoa(schemaVersion)))
	})
	if err != nil {
		return fmt.Errorf("writing schema version: %w", err)
	}
	logging.Get("prefs").Debug("preference schema initialised", "version", schemaVersion)
	return nil
}

const blobPrefix = "blob/"

// ReadBlob returns an opaque value stored under name by WriteBlob.
func (s *Store) ReadBlob(name string) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(blobPrefix + name))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", name, err)
	}
	return out, true, nil
}

// WriteBlob stores data under name. Blobs live beside the preference keys
// but are not part of Keys or Reset.
func (s *Store) WriteBlob(name string, data []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(blobPrefix+name), data)
	})
}
