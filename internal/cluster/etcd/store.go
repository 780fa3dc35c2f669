package etcd

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// ErrKeyNotFound is returned by Get helpers when the key has no value.
var ErrKeyNotFound = errors.New("key not found")

// Store wraps an etcd client used for cluster metadata.
type Store struct {
	Cli *clientv3.Client
}

// NewStore creates a Store with the given endpoints.
func NewStore(endpoints []string) (*Store, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return &Store{Cli: cli}, nil
}

func (s *Store) Close() error {
	return s.Cli.Close()
}

// WaitAvailable checks that at least one etcd endpoint answers within
// timeout. Used as a pre-flight check before multi-step workflows.
func (s *Store) WaitAvailable(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for _, ep := range s.Cli.Endpoints() {
		if _, err := s.Cli.Status(ctx, ep); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no endpoints configured")
	}
	return lastErr
}

// GetJSON retrieves key and unmarshals JSON into v.
func (s *Store) GetJSON(ctx context.Context, key string, v interface{}) error {
	resp, err := s.Cli.Get(ctx, key)
	if err != nil {
		return err
	}
	if len(resp.Kvs) == 0 {
		return ErrKeyNotFound
	}
	return json.Unmarshal(resp.Kvs[0].Value, v)
}

// GetString retrieves key as a plain string value.
func (s *Store) GetString(ctx context.Context, key string) (string, error) {
	resp, err := s.Cli.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if len(resp.Kvs) == 0 {
		return "", ErrKeyNotFound
	}
	return string(resp.Kvs[0].Value), nil
}

// CreateString atomically writes key -> value only if the key does not
// exist yet. Returns false if the key was already present.
func (s *Store) CreateString(ctx context.Context, key, value string) (bool, error) {
	resp, err := s.Cli.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, value)).
		Commit()
	if err != nil {
		return false, err
	}
	return resp.Succeeded, nil
}

// CompareAndSwapString atomically replaces key's value with next only if
// its current value equals expected. Returns false if the value differed
// or the key was absent.
func (s *Store) CompareAndSwapString(ctx context.Context, key, expected, next string) (bool, error) {
	resp, err := s.Cli.Txn(ctx).
		If(clientv3.Compare(clientv3.Value(key), "=", expected)).
		Then(clientv3.OpPut(key, next)).
		Commit()
	if err != nil {
		return false, err
	}
	return resp.Succeeded, nil
}

// PutJSONBatch writes all key/value pairs in a single transaction, so
// either every entry lands or none does.
func (s *Store) PutJSONBatch(ctx context.Context, kvs map[string]interface{}) error {
	if len(kvs) == 0 {
		return nil
	}
	ops := make([]clientv3.Op, 0, len(kvs))
	for key, v := range kvs {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		ops = append(ops, clientv3.OpPut(key, string(data)))
	}
	_, err := s.Cli.Txn(ctx).Then(ops...).Commit()
	return err
}

// ListJSON lists keys with prefix and unmarshals each into vCreator()
// returning slice of the created values.
func (s *Store) ListJSON(ctx context.Context, prefix string, vCreator func() interface{}) ([]interface{}, error) {
	resp, err := s.Cli.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	result := make([]interface{}, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		v := vCreator()
		if err := json.Unmarshal(kv.Value, v); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, nil
}

// CountPrefix returns the number of keys under prefix.
func (s *Store) CountPrefix(ctx context.Context, prefix string) (int64, error) {
	resp, err := s.Cli.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithCountOnly())
	if err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// RegisterWithLease writes key -> v using a lease with ttl seconds.
// Caller should keep the lease alive.
func (s *Store) RegisterWithLease(ctx context.Context, key string, v interface{}, ttl int64) (clientv3.LeaseID, error) {
	lease, err := s.Cli.Grant(ctx, ttl)
	if err != nil {
		return 0, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	if _, err := s.Cli.Put(ctx, key, string(data), clientv3.WithLease(lease.ID)); err != nil {
		return 0, err
	}
	return lease.ID, nil
}

// KeepAliveLoop keeps the given lease alive until ctx is done.
func (s *Store) KeepAliveLoop(ctx context.Context, leaseID clientv3.LeaseID) error {
	ch, err := s.Cli.KeepAlive(ctx, leaseID)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ch:
			if !ok {
				return nil
			}
		}
	}
}
