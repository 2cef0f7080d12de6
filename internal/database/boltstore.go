// internal/database/boltstore.go - BoltDB implementation
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	ServicesBucket   = []byte("services")
	ResultsBucket    = []byte("results")
	ResultHistBucket = []byte("result_history")
	MetaBucket       = []byte("meta")
)

type BoltStore struct {
	db   *bbolt.DB
	path string
}

func NewBoltStore(path string) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open BoltDB: %w", err)
	}

	store := &BoltStore{db: db, path: path}

	if err := store.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return store, nil
}

func (s *BoltStore) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{ServicesBucket, ResultsBucket, ResultHistBucket, MetaBucket}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
}

func (s *BoltStore) GetServices(ctx context.Context) ([]Service, error) {
	var services []Service

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(ServicesBucket)
		return b.ForEach(func(k, v []byte) error {
			var svc Service
			if err := json.Unmarshal(v, &svc); err != nil {
				return fmt.Errorf("failed to unmarshal service %s: %w", k, err)
			}
			services = append(services, svc)
			return nil
		})
	})

	return services, err
}

func (s *BoltStore) GetService(ctx context.Context, name string) (*Service, error) {
	var svc Service

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(ServicesBucket)
		v := b.Get([]byte(name))
		if v == nil {
			return fmt.Errorf("service not found")
		}
		return json.Unmarshal(v, &svc)
	})

	if err != nil {
		return nil, err
	}
	return &svc, nil
}

// SaveService upserts a registry record keyed by service name.
func (s *BoltStore) SaveService(ctx context.Context, svc *Service) error {
	if svc.ID == "" {
		svc.ID = uuid.New().String()
	}
	if svc.CreatedAt.IsZero() {
		svc.CreatedAt = time.Now()
	}
	svc.UpdatedAt = time.Now()

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(ServicesBucket)

		data, err := json.Marshal(svc)
		if err != nil {
			return fmt.Errorf("failed to marshal service: %w", err)
		}

		return b.Put([]byte(svc.Name), data)
	})
}

func (s *BoltStore) DeleteService(ctx context.Context, name string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(ServicesBucket)
		return b.Delete([]byte(name))
	})
}

// SaveResult stores the latest result per service and appends to the
// history bucket under a service:timestamp key.
func (s *BoltStore) SaveResult(ctx context.Context, result *Result) error {
	if result.ID == "" {
		result.ID = uuid.New().String()
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(ResultsBucket)

		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}

		if err := b.Put([]byte(result.Service), data); err != nil {
			return err
		}

		hb := tx.Bucket(ResultHistBucket)
		histKey := fmt.Sprintf("%s:%019d:%s", result.Service, result.Timestamp.UnixNano(), result.ID)
		return hb.Put([]byte(histKey), data)
	})
}

func (s *BoltStore) GetLatestResult(ctx context.Context, service string) (*Result, error) {
	var result Result

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(ResultsBucket)
		v := b.Get([]byte(service))
		if v == nil {
			return fmt.Errorf("no result for service")
		}
		return json.Unmarshal(v, &result)
	})

	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *BoltStore) GetResults(ctx context.Context, filters ResultFilters) ([]Result, error) {
	var results []Result

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(ResultsBucket)
		return b.ForEach(func(k, v []byte) error {
			var result Result
			if err := json.Unmarshal(v, &result); err != nil {
				return nil // Skip malformed entries
			}

			if filters.Service != "" && result.Service != filters.Service {
				return nil
			}
			if filters.Verdict != "" && result.Verdict != filters.Verdict {
				return nil
			}
			if filters.Since != nil && !result.Timestamp.After(*filters.Since) {
				return nil
			}

			results = append(results, result)

			if filters.Limit > 0 && len(results) >= filters.Limit {
				return fmt.Errorf("limit_reached")
			}

			return nil
		})
	})

	if err != nil && err.Error() == "limit_reached" {
		err = nil
	}

	return results, err
}

func (s *BoltStore) GetResultHistory(ctx context.Context, service string, since time.Time) ([]Result, error) {
	var results []Result

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(ResultHistBucket)
		c := b.Cursor()

		prefix := service + ":"

		for k, v := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
			var result Result
			if err := json.Unmarshal(v, &result); err != nil {
				continue
			}

			if result.Timestamp.After(since) {
				results = append(results, result)
			}
		}

		return nil
	})

	return results, err
}

// PurgeHistory deletes history entries older than the cutoff and
// returns how many were removed.
func (s *BoltStore) PurgeHistory(ctx context.Context, before time.Time) (int, error) {
	purged := 0

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(ResultHistBucket)
		c := b.Cursor()

		for k, v := c.First(); k != nil; k, v = c.Next() {
			var result Result
			if err := json.Unmarshal(v, &result); err != nil {
				continue
			}
			if result.Timestamp.Before(before) {
				if err := c.Delete(); err != nil {
					return err
				}
				purged++
			}
		}
		return nil
	})

	return purged, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
