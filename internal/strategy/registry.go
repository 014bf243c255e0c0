package strategy

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"tradepulse/internal/apperr"
	"tradepulse/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed strategies.schema.json
var fileSchema string

type source int

const (
	sourceBuiltin source = iota
	sourceFile
	sourceAPI
)

// FileConfig is the on-disk strategy list.
type FileConfig struct {
	Strategies []Strategy `json:"strategies" yaml:"strategies"`
}

// ChangeListener receives the full strategy list after every change.
type ChangeListener func([]Strategy)

type entry struct {
	strategy Strategy
	source   source
}

// Registry holds strategies by id. It is safe for concurrent use and always
// hands out copies.
type Registry struct {
	mu        sync.RWMutex
	entries   map[string]entry
	builtins  map[string]Strategy
	listeners []ChangeListener

	path   string
	v      *viper.Viper
	schema *jsonschema.Schema
}

// NewRegistry seeds the registry with the built-in strategies.
func NewRegistry() *Registry {
	r := &Registry{
		entries:  make(map[string]entry),
		builtins: make(map[string]Strategy),
	}
	for _, s := range Defaults() {
		r.entries[s.ID] = entry{strategy: s, source: sourceBuiltin}
		r.builtins[s.ID] = s.Clone()
	}
	return r
}

// Get returns a copy of the strategy or ErrUnknownStrategy.
func (r *Registry) Get(id string) (Strategy, error) {
	r.mu.RLock()
	e, ok := r.entries[strings.TrimSpace(id)]
	r.mu.RUnlock()
	if !ok {
		return Strategy{}, apperr.New(apperr.ErrUnknownStrategy, "strategy.get",
			fmt.Errorf("strategy %q not registered", id)).WithStrategy(id)
	}
	return e.strategy.Clone(), nil
}

// List returns every strategy sorted by id.
func (r *Registry) List() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Strategy, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.strategy.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Enabled returns the strategies that are not disabled.
func (r *Registry) Enabled() []Strategy {
	all := r.List()
	out := all[:0]
	for _, s := range all {
		if !s.Disabled {
			out = append(out, s)
		}
	}
	return out
}

// Add validates and stores s, replacing any strategy with the same id.
func (r *Registry) Add(s Strategy) error {
	s.ID = strings.TrimSpace(s.ID)
	if err := s.Validate(); err != nil {
		return apperr.New(apperr.ErrInvalidConfig, "strategy.add", err).WithStrategy(s.ID)
	}
	r.mu.Lock()
	r.entries[s.ID] = entry{strategy: s.Clone(), source: sourceAPI}
	r.mu.Unlock()
	r.notify()
	return nil
}

// Remove deletes a strategy by id.
func (r *Registry) Remove(id string) error {
	id = strings.TrimSpace(id)
	r.mu.Lock()
	_, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if !ok {
		return apperr.New(apperr.ErrUnknownStrategy, "strategy.remove",
			fmt.Errorf("strategy %q not registered", id)).WithStrategy(id)
	}
	r.notify()
	return nil
}

// Subscribe registers fn for change notifications.
func (r *Registry) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// LoadFile merges strategies from a YAML file. With watch set, the file is
// re-read on change; a bad edit is logged and the previous set kept.
func (r *Registry) LoadFile(path string, watch bool) error {
	if strings.TrimSpace(path) == "" {
		return apperr.Invalid("strategy.load", "strategy file path is empty")
	}
	schema, err := compileFileSchema()
	if err != nil {
		return fmt.Errorf("compile strategy schema: %w", err)
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return apperr.New(apperr.ErrInvalidConfig, "strategy.load", fmt.Errorf("read %s: %w", path, err))
	}
	r.mu.Lock()
	r.path, r.v, r.schema = path, v, schema
	r.mu.Unlock()

	if err := r.reload(); err != nil {
		return err
	}
	if watch {
		v.OnConfigChange(func(evt fsnotify.Event) {
			if err := r.reload(); err != nil {
				logger.Errorf("[strategy] reload %s failed: %v", evt.Name, err)
				return
			}
			logger.Infof("[strategy] reloaded %s", evt.Name)
		})
		v.WatchConfig()
	}
	return nil
}

func (r *Registry) reload() error {
	r.mu.RLock()
	path, schema := r.path, r.schema
	r.mu.RUnlock()

	cfg, err := readStrategyFile(path, schema)
	if err != nil {
		return apperr.New(apperr.ErrInvalidConfig, "strategy.load", err)
	}
	seen := make(map[string]bool, len(cfg.Strategies))
	for i := range cfg.Strategies {
		s := &cfg.Strategies[i]
		s.ID = strings.TrimSpace(s.ID)
		if seen[s.ID] {
			return apperr.Invalid("strategy.load", "duplicate strategy id %q in %s", s.ID, path)
		}
		seen[s.ID] = true
		if err := s.Validate(); err != nil {
			return apperr.New(apperr.ErrInvalidConfig, "strategy.load", err).WithStrategy(s.ID)
		}
	}

	r.mu.Lock()
	for id, e := range r.entries {
		if e.source != sourceFile {
			continue
		}
		// A file strategy that shadowed a builtin falls back to it.
		if b, ok := r.builtins[id]; ok {
			r.entries[id] = entry{strategy: b.Clone(), source: sourceBuiltin}
		} else {
			delete(r.entries, id)
		}
	}
	for _, s := range cfg.Strategies {
		r.entries[s.ID] = entry{strategy: s.Clone(), source: sourceFile}
	}
	r.mu.Unlock()
	logger.Infof("[strategy] loaded %d strategies from %s", len(cfg.Strategies), path)
	r.notify()
	return nil
}

func (r *Registry) notify() {
	r.mu.RLock()
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	if len(listeners) == 0 {
		return
	}
	list := r.List()
	for _, fn := range listeners {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Errorf("[strategy] listener panic: %v", rec)
				}
			}()
			fn(list)
		}()
	}
}

func compileFileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("strategies.json", strings.NewReader(fileSchema)); err != nil {
		return nil, err
	}
	return compiler.Compile("strategies.json")
}

// readStrategyFile decodes strictly with yaml.v3, then checks the generic
// document against the schema.
func readStrategyFile(path string, schema *jsonschema.Schema) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read strategy file: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("parse strategy file: %w", err)
	}
	if schema == nil {
		return cfg, nil
	}
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return FileConfig{}, fmt.Errorf("parse strategy file: %w", err)
	}
	doc, err := jsonCompatible(generic)
	if err != nil {
		return FileConfig{}, err
	}
	if err := schema.Validate(doc); err != nil {
		return FileConfig{}, fmt.Errorf("strategy file schema: %w", err)
	}
	return cfg, nil
}

// jsonCompatible round-trips through encoding/json so numbers and maps have
// the shapes the schema validator expects.
func jsonCompatible(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalise strategy file: %w", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("normalise strategy file: %w", err)
	}
	return out, nil
}
