// Package local is an embedded search engine: sharded bleve indices with a
// write-ahead log per shard and a mapping sniffed from indexed documents.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"go.uber.org/zap"

	"sheer/internal/engine"
	"sheer/internal/mapping"
)

const mappingFile = "mapping.json"

// Index is a named set of shards sharing one sniffed mapping.
type Index struct {
	Name      string
	shards    []*Store
	alias     bleve.IndexAlias
	numShards int
	path      string
	Mapping   *mapping.Mapping

	// mu is held for reading by every shard access and for writing by Close.
	mu     sync.RWMutex
	closed bool
	saveMu sync.Mutex
}

// ErrIndexClosed is returned by operations on an index after Close.
var ErrIndexClosed = errors.New("index closed")

// Engine owns every index under basePath.
type Engine struct {
	indices          map[string]*Index
	basePath         string
	defaultNumShards int
	logger           *zap.Logger
	mu               sync.RWMutex
}

var (
	_ engine.Engine  = (*Engine)(nil)
	_ engine.Indexer = (*Engine)(nil)
)

// New opens every index found under basePath.
func New(basePath string, defaultNumShards int, logger *zap.Logger) (*Engine, error) {
	if defaultNumShards <= 0 {
		defaultNumShards = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, err
	}

	e := &Engine{
		indices:          make(map[string]*Index),
		basePath:         basePath,
		defaultNumShards: defaultNumShards,
		logger:           logger,
	}

	entries, err := os.ReadDir(basePath)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := e.OpenIndex(entry.Name()); err != nil {
			logger.Warn("failed to open index", zap.String("index", entry.Name()), zap.Error(err))
		}
	}
	return e, nil
}

func (e *Engine) OpenIndex(name string) (*Index, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if idx, ok := e.indices[name]; ok {
		return idx, nil
	}

	indexPath := filepath.Join(e.basePath, name)

	// shard count is the number of shard_N directories already on disk
	numShards := e.defaultNumShards
	for i := 0; ; i++ {
		if _, err := os.Stat(filepath.Join(indexPath, fmt.Sprintf("shard_%d", i))); os.IsNotExist(err) {
			if i > 0 {
				numShards = i
			}
			break
		}
	}

	idx := &Index{
		Name:      name,
		numShards: numShards,
		path:      indexPath,
		shards:    make([]*Store, numShards),
		Mapping:   mapping.NewMapping(),
	}

	if data, err := os.ReadFile(filepath.Join(indexPath, mappingFile)); err == nil {
		if err := json.Unmarshal(data, idx.Mapping); err != nil {
			return nil, fmt.Errorf("index %s: load mapping: %w", name, err)
		}
	}

	members := make([]bleve.Index, 0, numShards)
	for i := 0; i < numShards; i++ {
		s, err := Open(filepath.Join(indexPath, fmt.Sprintf("shard_%d", i)))
		if err != nil {
			for _, opened := range idx.shards[:i] {
				opened.Close()
			}
			return nil, err
		}
		idx.shards[i] = s
		members = append(members, s.Bleve())
	}
	idx.alias = bleve.NewIndexAlias(members...)

	e.indices[name] = idx
	return idx, nil
}

// CreateIndex creates and opens name with numShards shards (the engine
// default when <= 0).
func (e *Engine) CreateIndex(name string, numShards int) (*Index, error) {
	e.mu.RLock()
	_, exists := e.indices[name]
	e.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("%w: %s", engine.ErrIndexExists, name)
	}

	if numShards <= 0 {
		numShards = e.defaultNumShards
	}
	indexPath := filepath.Join(e.basePath, name)
	for i := 0; i < numShards; i++ {
		if err := os.MkdirAll(filepath.Join(indexPath, fmt.Sprintf("shard_%d", i)), 0755); err != nil {
			return nil, err
		}
	}
	return e.OpenIndex(name)
}

func (e *Engine) GetIndex(name string) *Index {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.indices[name]
}

func (e *Engine) getOrCreateIndex(name string) (*Index, error) {
	if idx := e.GetIndex(name); idx != nil {
		return idx, nil
	}
	idx, err := e.CreateIndex(name, 0)
	if errors.Is(err, engine.ErrIndexExists) {
		return e.GetIndex(name), nil
	}
	return idx, err
}

func (e *Engine) ListIndices() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.indices))
	for name := range e.indices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IndexDocument stores doc as docType/id in index, creating the index on
// first use.
func (e *Engine) IndexDocument(_ context.Context, index, docType, id string, doc map[string]any) error {
	idx, err := e.getOrCreateIndex(index)
	if err != nil {
		return &engine.Error{Op: "index", Err: err}
	}
	if err := idx.Index(docType, id, doc); err != nil {
		return &engine.Error{Op: "index", Err: err}
	}
	return nil
}

// Document is one entry of a bulk load.
type Document struct {
	Type   string
	ID     string
	Source map[string]any
}

func (e *Engine) BulkIndex(_ context.Context, index string, docs []Document) error {
	idx, err := e.getOrCreateIndex(index)
	if err != nil {
		return &engine.Error{Op: "bulk", Err: err}
	}
	if err := idx.BatchIndex(docs); err != nil {
		return &engine.Error{Op: "bulk", Err: err}
	}
	return nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var first error
	for _, idx := range e.indices {
		if err := idx.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func docKey(docType, id string) string { return docType + "/" + id }

func splitKey(key string) (docType, id string) {
	docType, id, ok := strings.Cut(key, "/")
	if !ok {
		return "", key
	}
	return docType, id
}

// prepare copies src and adds the stored _source and _type fields.
func prepare(docType string, src map[string]any) (map[string]any, error) {
	sourceBytes, err := json.Marshal(src)
	if err != nil {
		return nil, err
	}
	doc := make(map[string]any, len(src)+2)
	for k, v := range src {
		doc[k] = v
	}
	doc[sourceField] = string(sourceBytes)
	doc[typeField] = docType
	return doc, nil
}

func (idx *Index) saveMapping() error {
	idx.saveMu.Lock()
	defer idx.saveMu.Unlock()
	data, err := json.Marshal(idx.Mapping)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(idx.path, mappingFile), data, 0644)
}

func (idx *Index) getShardID(key string) int {
	hash := crc32.ChecksumIEEE([]byte(key))
	return int(hash % uint32(idx.numShards))
}

func (idx *Index) Index(docType, id string, src map[string]any) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return ErrIndexClosed
	}
	if idx.Mapping.Sniff(docType, src) {
		if err := idx.saveMapping(); err != nil {
			return err
		}
	}
	doc, err := prepare(docType, src)
	if err != nil {
		return err
	}
	key := docKey(docType, id)
	return idx.shards[idx.getShardID(key)].Index(key, doc)
}

func (idx *Index) BatchIndex(docs []Document) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return ErrIndexClosed
	}
	groupKeys := make([][]string, idx.numShards)
	groupDocs := make([][]map[string]any, idx.numShards)

	changed := false
	for _, d := range docs {
		if idx.Mapping.Sniff(d.Type, d.Source) {
			changed = true
		}
		doc, err := prepare(d.Type, d.Source)
		if err != nil {
			return err
		}
		key := docKey(d.Type, d.ID)
		shardID := idx.getShardID(key)
		groupKeys[shardID] = append(groupKeys[shardID], key)
		groupDocs[shardID] = append(groupDocs[shardID], doc)
	}
	if changed {
		if err := idx.saveMapping(); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	errs := make([]error, idx.numShards)
	for i := 0; i < idx.numShards; i++ {
		if len(groupKeys[i]) == 0 {
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = idx.shards[i].BatchIndex(groupKeys[i], groupDocs[i])
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (idx *Index) Get(docType, id string) (map[string]any, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return nil, ErrIndexClosed
	}
	key := docKey(docType, id)
	return idx.shards[idx.getShardID(key)].Get(key)
}

func (idx *Index) Delete(docType, id string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return ErrIndexClosed
	}
	key := docKey(docType, id)
	return idx.shards[idx.getShardID(key)].Delete(key)
}

// Close waits for in-flight operations, then flushes the mapping and closes
// every shard. Closing twice is a no-op.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil
	}
	idx.closed = true
	if err := idx.saveMapping(); err != nil {
		return err
	}
	for _, s := range idx.shards {
		if err := s.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Metadata describes the shard layout of an index.
type Metadata struct {
	NumShards int      `json:"num_shards"`
	Shards    []string `json:"shards"`
	Types     []string `json:"types"`
}

func (idx *Index) GetMetadata() Metadata {
	md := Metadata{
		NumShards: idx.numShards,
		Shards:    make([]string, idx.numShards),
		Types:     idx.Mapping.Types(),
	}
	for i := 0; i < idx.numShards; i++ {
		md.Shards[i] = fmt.Sprintf("shard_%d", i)
	}
	sort.Strings(md.Types)
	return md
}
