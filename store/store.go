// Package store is the local persistence layer: a versioned embedded
// document store with one bucket per collection and a by-user index.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/LovationAdmin/finance-tracker/models"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicate     = errors.New("record already exists")
	ErrSchemaVersion = errors.New("unsupported schema version")
	ErrInvalidRecord = errors.New("invalid record")
)

const SchemaVersion = 1

var (
	bucketMeta               = []byte("meta")
	bucketUsers              = []byte("users")
	bucketTransactions       = []byte("transactions")
	bucketTransactionsByUser = []byte("transactions_by_user")
	bucketGoals              = []byte("goals")
	bucketGoalsByUser        = []byte("goals_by_user")
	bucketConfigs            = []byte("configs")
	bucketLabelCategories    = []byte("label_categories")

	keySchemaVersion = []byte("schema_version")
)

var allBuckets = [][]byte{
	bucketMeta,
	bucketUsers,
	bucketTransactions,
	bucketTransactionsByUser,
	bucketGoals,
	bucketGoalsByUser,
	bucketConfigs,
	bucketLabelCategories,
}

type Store struct {
	db *bolt.DB
}

// Open creates or opens the database file at path and brings its schema
// to the current version.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}

		meta := tx.Bucket(bucketMeta)
		raw := meta.Get(keySchemaVersion)
		if raw == nil {
			return meta.Put(keySchemaVersion, []byte(strconv.Itoa(SchemaVersion)))
		}

		version, err := strconv.Atoi(string(raw))
		if err != nil {
			return fmt.Errorf("%w: %q", ErrSchemaVersion, raw)
		}
		if version > SchemaVersion {
			return fmt.Errorf("%w: file is v%d, this build supports v%d", ErrSchemaVersion, version, SchemaVersion)
		}
		return nil
	})
}

// Version returns the schema version recorded in the file.
func (s *Store) Version() (int, error) {
	var version int
	err := s.db.View(func(tx *bolt.Tx) error {
		v, err := strconv.Atoi(string(tx.Bucket(bucketMeta).Get(keySchemaVersion)))
		version = v
		return err
	})
	return version, err
}

// ============================================================================
// USERS (keyed by username)
// ============================================================================

func (s *Store) CreateUser(user models.User) error {
	if user.Username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidRecord)
	}
	if bytes.IndexByte([]byte(user.Username), 0) >= 0 {
		return fmt.Errorf("%w: username contains a NUL byte", ErrInvalidRecord)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		if b.Get([]byte(user.Username)) != nil {
			return ErrDuplicate
		}
		return putJSON(b, []byte(user.Username), user)
	})
}

func (s *Store) GetUser(username string) (models.User, error) {
	var user models.User
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketUsers), []byte(username), &user)
	})
	return user, err
}

func (s *Store) UpdateUser(user models.User) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		if b.Get([]byte(user.Username)) == nil {
			return ErrNotFound
		}
		return putJSON(b, []byte(user.Username), user)
	})
}

// DeleteUser removes the account together with every document it owns.
func (s *Store) DeleteUser(username string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		users := tx.Bucket(bucketUsers)
		if users.Get([]byte(username)) == nil {
			return ErrNotFound
		}
		if err := users.Delete([]byte(username)); err != nil {
			return err
		}
		if err := deleteOwned(tx, bucketTransactions, bucketTransactionsByUser, username); err != nil {
			return err
		}
		if err := deleteOwned(tx, bucketGoals, bucketGoalsByUser, username); err != nil {
			return err
		}
		return tx.Bucket(bucketConfigs).Delete([]byte(username))
	})
}

// ============================================================================
// TRANSACTIONS
// ============================================================================

// PutTransaction inserts or replaces a transaction and keeps the by-user
// index in step, including when the owner changes. The owner must exist.
func (s *Store) PutTransaction(t models.Transaction) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putTransaction(tx, t)
	})
}

// UpdateTransaction loads the transaction, applies fn and writes the result
// back in one bolt transaction. An error from fn aborts the write.
func (s *Store) UpdateTransaction(id string, fn func(*models.Transaction) error) (models.Transaction, error) {
	var t models.Transaction
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := getJSON(tx.Bucket(bucketTransactions), []byte(id), &t); err != nil {
			return err
		}
		if err := fn(&t); err != nil {
			return err
		}
		t.ID = id
		return putTransaction(tx, t)
	})
	if err != nil {
		return models.Transaction{}, err
	}
	return t, nil
}

func putTransaction(tx *bolt.Tx, t models.Transaction) error {
	if t.ID == "" || t.UserID == "" {
		return fmt.Errorf("%w: transaction needs id and user_id", ErrInvalidRecord)
	}
	if err := requireUser(tx, t.UserID); err != nil {
		return err
	}
	return putIndexed(tx, bucketTransactions, bucketTransactionsByUser, t.ID, t.UserID, t, func(raw []byte) (string, error) {
		var prev models.Transaction
		err := json.Unmarshal(raw, &prev)
		return prev.UserID, err
	})
}

func (s *Store) GetTransaction(id string) (models.Transaction, error) {
	var t models.Transaction
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketTransactions), []byte(id), &t)
	})
	return t, err
}

func (s *Store) DeleteTransaction(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var t models.Transaction
		if err := getJSON(tx.Bucket(bucketTransactions), []byte(id), &t); err != nil {
			return err
		}
		return deleteIndexed(tx, bucketTransactions, bucketTransactionsByUser, id, t.UserID)
	})
}

// ListTransactionsByUser returns the user's transactions newest first.
func (s *Store) ListTransactionsByUser(userID string) ([]models.Transaction, error) {
	result := []models.Transaction{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return scanIndex(tx, bucketTransactions, bucketTransactionsByUser, userID, func(raw []byte) error {
			var t models.Transaction
			if err := json.Unmarshal(raw, &t); err != nil {
				return fmt.Errorf("decode transaction: %w", err)
			}
			result = append(result, t)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Date.Equal(result[j].Date) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].Date.After(result[j].Date)
	})
	return result, nil
}

// ============================================================================
// GOALS
// ============================================================================

func (s *Store) PutGoal(g models.Goal) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putGoal(tx, g)
	})
}

// UpdateGoal is the read-modify-write counterpart of PutGoal.
func (s *Store) UpdateGoal(id string, fn func(*models.Goal) error) (models.Goal, error) {
	var g models.Goal
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := getJSON(tx.Bucket(bucketGoals), []byte(id), &g); err != nil {
			return err
		}
		if err := fn(&g); err != nil {
			return err
		}
		g.ID = id
		return putGoal(tx, g)
	})
	if err != nil {
		return models.Goal{}, err
	}
	return g, nil
}

func putGoal(tx *bolt.Tx, g models.Goal) error {
	if g.ID == "" || g.UserID == "" {
		return fmt.Errorf("%w: goal needs id and user_id", ErrInvalidRecord)
	}
	if err := requireUser(tx, g.UserID); err != nil {
		return err
	}
	return putIndexed(tx, bucketGoals, bucketGoalsByUser, g.ID, g.UserID, g, func(raw []byte) (string, error) {
		var prev models.Goal
		err := json.Unmarshal(raw, &prev)
		return prev.UserID, err
	})
}

func (s *Store) GetGoal(id string) (models.Goal, error) {
	var g models.Goal
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketGoals), []byte(id), &g)
	})
	return g, err
}

func (s *Store) DeleteGoal(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var g models.Goal
		if err := getJSON(tx.Bucket(bucketGoals), []byte(id), &g); err != nil {
			return err
		}
		return deleteIndexed(tx, bucketGoals, bucketGoalsByUser, id, g.UserID)
	})
}

// ListGoalsByUser returns the user's goals oldest first.
func (s *Store) ListGoalsByUser(userID string) ([]models.Goal, error) {
	result := []models.Goal{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return scanIndex(tx, bucketGoals, bucketGoalsByUser, userID, func(raw []byte) error {
			var g models.Goal
			if err := json.Unmarshal(raw, &g); err != nil {
				return fmt.Errorf("decode goal: %w", err)
			}
			result = append(result, g)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// ============================================================================
// CONFIGS (keyed by user id)
// ============================================================================

func (s *Store) PutConfig(cfg models.AppConfig) error {
	if cfg.UserID == "" {
		return fmt.Errorf("%w: config needs user_id", ErrInvalidRecord)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := requireUser(tx, cfg.UserID); err != nil {
			return err
		}
		return putJSON(tx.Bucket(bucketConfigs), []byte(cfg.UserID), cfg)
	})
}

func (s *Store) GetConfig(userID string) (models.AppConfig, error) {
	var cfg models.AppConfig
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketConfigs), []byte(userID), &cfg)
	})
	return cfg, err
}

// ============================================================================
// LABEL CATEGORY CACHE
// ============================================================================

func (s *Store) PutLabelCategory(label, category string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLabelCategories).Put([]byte(label), []byte(category))
	})
}

func (s *Store) GetLabelCategory(label string) (string, error) {
	var category string
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketLabelCategories).Get([]byte(label))
		if raw == nil {
			return ErrNotFound
		}
		category = string(raw)
		return nil
	})
	return category, err
}

// ============================================================================
// HELPERS
// ============================================================================

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return b.Put(key, data)
}

func getJSON(b *bolt.Bucket, key []byte, v any) error {
	raw := b.Get(key)
	if raw == nil {
		return ErrNotFound
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// requireUser keeps writes from racing an account deletion: a document is
// only stored while its owner exists.
func requireUser(tx *bolt.Tx, userID string) error {
	if tx.Bucket(bucketUsers).Get([]byte(userID)) == nil {
		return fmt.Errorf("%w: owner %q", ErrNotFound, userID)
	}
	return nil
}

func indexKey(userID, id string) []byte {
	key := make([]byte, 0, len(userID)+1+len(id))
	key = append(key, userID...)
	key = append(key, 0)
	return append(key, id...)
}

func indexPrefix(userID string) []byte {
	return append([]byte(userID), 0)
}

func putIndexed(tx *bolt.Tx, data, index []byte, id, userID string, v any, ownerOf func([]byte) (string, error)) error {
	docs := tx.Bucket(data)
	idx := tx.Bucket(index)

	if prev := docs.Get([]byte(id)); prev != nil {
		prevOwner, err := ownerOf(prev)
		if err != nil {
			return fmt.Errorf("decode previous %s: %w", id, err)
		}
		if prevOwner != userID {
			if err := idx.Delete(indexKey(prevOwner, id)); err != nil {
				return err
			}
		}
	}

	if err := putJSON(docs, []byte(id), v); err != nil {
		return err
	}
	return idx.Put(indexKey(userID, id), []byte{})
}

func deleteIndexed(tx *bolt.Tx, data, index []byte, id, userID string) error {
	if err := tx.Bucket(data).Delete([]byte(id)); err != nil {
		return err
	}
	return tx.Bucket(index).Delete(indexKey(userID, id))
}

func scanIndex(tx *bolt.Tx, data, index []byte, userID string, fn func(raw []byte) error) error {
	docs := tx.Bucket(data)
	prefix := indexPrefix(userID)
	c := tx.Bucket(index).Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		raw := docs.Get(k[len(prefix):])
		if raw == nil {
			continue
		}
		if err := fn(raw); err != nil {
			return err
		}
	}
	return nil
}

func deleteOwned(tx *bolt.Tx, data, index []byte, userID string) error {
	prefix := indexPrefix(userID)
	var keys [][]byte
	c := tx.Bucket(index).Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}

	docs := tx.Bucket(data)
	idx := tx.Bucket(index)
	for _, k := range keys {
		if err := docs.Delete(k[len(prefix):]); err != nil {
			return err
		}
		if err := idx.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
