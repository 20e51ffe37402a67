package local

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/tidwall/wal"
)

const (
	sourceField = "_source"
	typeField   = "_type"
)

// Store is one shard: a bleve index fronted by a write-ahead log that is
// replayed on open.
type Store struct {
	index bleve.Index
	log   *wal.Log
	path  string
	mu    sync.Mutex
}

type Operation string

const (
	OpIndex  Operation = "INDEX"
	OpDelete Operation = "DELETE"
)

type LogEntry struct {
	Op   Operation      `json:"op"`
	Key  string         `json:"key"`
	Data map[string]any `json:"data,omitempty"`
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, err
	}

	blevePath := filepath.Join(path, "bleve")
	walPath := filepath.Join(path, "wal")

	var index bleve.Index
	var err error
	if _, statErr := os.Stat(blevePath); os.IsNotExist(statErr) {
		index, err = bleve.New(blevePath, defaultIndexMapping())
	} else {
		index, err = bleve.Open(blevePath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open bleve index: %w", err)
	}

	log, err := wal.Open(walPath, nil)
	if err != nil {
		index.Close()
		return nil, fmt.Errorf("failed to open wal: %w", err)
	}

	s := &Store{index: index, log: log, path: path}
	if err := s.replay(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to replay wal: %w", err)
	}
	return s, nil
}

func (s *Store) replay() error {
	lastIndex, err := s.log.LastIndex()
	if err != nil {
		return err
	}
	if lastIndex == 0 {
		return nil
	}
	firstIndex, err := s.log.FirstIndex()
	if err != nil {
		return err
	}

	batch := s.index.NewBatch()
	for i := firstIndex; i <= lastIndex; i++ {
		data, err := s.log.Read(i)
		if err != nil {
			return err
		}
		var entry LogEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		switch entry.Op {
		case OpIndex:
			if err := batch.Index(entry.Key, entry.Data); err != nil {
				return err
			}
		case OpDelete:
			batch.Delete(entry.Key)
		}
	}
	return s.index.Batch(batch)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.index.Close(); err != nil {
		return err
	}
	return s.log.Close()
}

func (s *Store) append(entry LogEntry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	lastIndex, err := s.log.LastIndex()
	if err != nil {
		return err
	}
	return s.log.Write(lastIndex+1, b)
}

// Index stores doc under key. doc must already carry its _source and _type
// fields.
func (s *Store) Index(key string, doc map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.append(LogEntry{Op: OpIndex, Key: key, Data: doc}); err != nil {
		return err
	}
	return s.index.Index(key, doc)
}

func (s *Store) BatchIndex(keys []string, docs []map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.index.NewBatch()
	for i, key := range keys {
		if err := s.append(LogEntry{Op: OpIndex, Key: key, Data: docs[i]}); err != nil {
			return err
		}
		if err := batch.Index(key, docs[i]); err != nil {
			return err
		}
	}
	return s.index.Batch(batch)
}

func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.append(LogEntry{Op: OpDelete, Key: key}); err != nil {
		return err
	}
	return s.index.Delete(key)
}

// Get returns the stored source of key, or nil when absent.
func (s *Store) Get(key string) (map[string]any, error) {
	req := bleve.NewSearchRequest(bleve.NewDocIDQuery([]string{key}))
	req.Fields = []string{sourceField}

	res, err := s.index.Search(req)
	if err != nil {
		return nil, err
	}
	if res.Total == 0 {
		return nil, nil
	}
	return decodeSource(res.Hits[0].Fields)
}

func (s *Store) Bleve() bleve.Index { return s.index }

func decodeSource(fields map[string]any) (map[string]any, error) {
	raw, ok := fields[sourceField].(string)
	if !ok {
		return nil, fmt.Errorf("%s field not found or not a string", sourceField)
	}
	var out map[string]any
	err := json.Unmarshal([]byte(raw), &out)
	return out, err
}

func defaultIndexMapping() mapping.IndexMapping {
	m := bleve.NewIndexMapping()

	source := bleve.NewTextFieldMapping()
	source.Store = true
	source.Index = false
	m.DefaultMapping.AddFieldMappingsAt(sourceField, source)

	docType := bleve.NewTextFieldMapping()
	docType.Analyzer = keyword.Name
	docType.Store = true
	m.DefaultMapping.AddFieldMappingsAt(typeField, docType)
	return m
}
