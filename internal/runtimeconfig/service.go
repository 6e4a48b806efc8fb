package runtimeconfig

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/fhirstore/zunder/internal/apperr"
	"github.com/fhirstore/zunder/pkg/logger"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// notifyChannel is the Postgres NOTIFY channel every node's Subscribe
// listens on, grounded on original_source's cache.rs: "updated via
// PostgreSQL LISTEN/NOTIFY when values change."
const notifyChannel = "zunder_runtime_config_changed"

// Service is the write path for runtime configuration: it validates a
// proposed value against the key's declared ValueKind, persists the
// override and an audit row in one transaction, notifies other nodes,
// and updates the local Cache (spec §4.9).
type Service struct {
	db    *sqlx.DB
	cache *Cache
}

func NewService(db *sqlx.DB, cache *Cache) *Service {
	return &Service{db: db, cache: cache}
}

type overrideRow struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

// LoadFromDB reads every override row and populates Cache, called once at
// server startup before the HTTP listener opens.
func (s *Service) LoadFromDB() error {
	var rows []overrideRow
	if err := s.db.Select(&rows, `SELECT key, value FROM runtime_config`); err != nil {
		return apperr.Wrap(apperr.KindDatabase, err, "load runtime config overrides")
	}
	values := make(map[ConfigKey]json.RawMessage, len(rows))
	for _, r := range rows {
		values[ConfigKey(r.Key)] = json.RawMessage(r.Value)
	}
	s.cache.Load(values)
	return nil
}

// Set validates raw against key's ValueKind, writes the override and an
// audit row, notifies other nodes via LISTEN/NOTIFY, and updates the
// local cache immediately (so the writer observes its own change without
// waiting on the round-trip through Postgres).
func (s *Service) Set(key ConfigKey, raw json.RawMessage, actor string) error {
	if err := validateValue(key, raw); err != nil {
		return err
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return apperr.Wrap(apperr.KindDatabase, err, "begin runtime config write")
	}
	defer tx.Rollback()

	var oldValue sql.NullString
	err = tx.Get(&oldValue, `SELECT value FROM runtime_config WHERE key = $1`, string(key))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return apperr.Wrap(apperr.KindDatabase, err, "read runtime config override")
	}

	if _, err := tx.Exec(`
		INSERT INTO runtime_config (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, string(key), string(raw)); err != nil {
		return apperr.Wrap(apperr.KindDatabase, err, "write runtime config override")
	}

	if _, err := tx.Exec(`
		INSERT INTO runtime_config_audit (key, old_value, new_value, actor, changed_at)
		VALUES ($1, $2, $3, $4, now())
	`, string(key), nullableString(oldValue), string(raw), actor); err != nil {
		return apperr.Wrap(apperr.KindDatabase, err, "write runtime config audit row")
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.KindDatabase, err, "commit runtime config write")
	}

	if _, err := s.db.Exec(`SELECT pg_notify($1, $2)`, notifyChannel, string(key)); err != nil {
		logger.WithFields(logger.Fields{"key": key, "error": err}).Warn("failed to notify runtime config change")
	}

	s.cache.Set(key, raw)
	return nil
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func validateValue(key ConfigKey, raw json.RawMessage) error {
	switch key.Kind() {
	case KindBoolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return apperr.Newf(apperr.KindValidation, "runtime config key %q requires a boolean value", key)
		}
	case KindInteger:
		var i int
		if err := json.Unmarshal(raw, &i); err != nil {
			return apperr.Newf(apperr.KindValidation, "runtime config key %q requires an integer value", key)
		}
	case KindEnum:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return apperr.Newf(apperr.KindValidation, "runtime config key %q requires a string value", key)
		}
		allowed := enumValues[key]
		if len(allowed) > 0 && !contains(allowed, s) {
			return apperr.Newf(apperr.KindValidation, "runtime config key %q does not accept value %q", key, s)
		}
	case KindString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return apperr.Newf(apperr.KindValidation, "runtime config key %q requires a string value", key)
		}
	}
	return nil
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// Subscribe opens a dedicated Postgres LISTEN connection via pq.Listener
// and applies every incoming change notification to Cache by reloading
// just that one key, until stop is closed. Grounded on original_source's
// "subscribe to change channel, respond to notifications by reloading a
// single key" lifecycle (spec §9 "Global mutable state").
func (s *Service) Subscribe(dsn string, stop <-chan struct{}) error {
	listener := pq.NewListener(dsn, 10, 0, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.WithFields(logger.Fields{"error": err}).Warn("runtime config listener event error")
		}
	})
	if err := listener.Listen(notifyChannel); err != nil {
		return apperr.Wrap(apperr.KindDatabase, err, "subscribe to runtime config channel")
	}

	go func() {
		defer listener.Close()
		for {
			select {
			case <-stop:
				return
			case n, ok := <-listener.Notify:
				if !ok {
					return
				}
				if n == nil {
					continue
				}
				if err := s.reloadKey(ConfigKey(n.Extra)); err != nil {
					logger.WithFields(logger.Fields{"key": n.Extra, "error": err}).Warn("failed to reload runtime config key")
				}
			}
		}
	}()
	return nil
}

func (s *Service) reloadKey(key ConfigKey) error {
	var row overrideRow
	err := s.db.Get(&row, `SELECT key, value FROM runtime_config WHERE key = $1`, string(key))
	if errors.Is(err, sql.ErrNoRows) {
		s.cache.Remove(key)
		return nil
	}
	if err != nil {
		return err
	}
	s.cache.Set(key, json.RawMessage(row.Value))
	return nil
}

// ParseIntOverride turns a bare numeric string into the JSON encoding of
// that integer, and returns an error for a string that is not an integer.
func ParseIntOverride(s string) (json.RawMessage, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf("invalid integer %q: %w", s, err)
	}
	return json.Marshal(n)
}
