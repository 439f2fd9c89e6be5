package server

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/isoviz/isoviz/internal/scenario"
	"github.com/isoviz/isoviz/internal/scenario/catalog"
	luascenario "github.com/isoviz/isoviz/internal/scenario/lua"
)

// scenarioStore serves the built-in scenarios plus any Lua scripts loaded
// from a scenario directory at startup. Scenario values handed out are fresh
// copies of the built-ins or immutable-by-convention script results.
type scenarioStore struct {
	mu     sync.RWMutex
	loaded map[string]*scenario.Scenario
}

func newScenarioStore() *scenarioStore {
	return &scenarioStore{loaded: map[string]*scenario.Scenario{}}
}

// LoadDir parses every .lua file in dir and registers the scenarios. Scripts
// shadowing a built-in id are rejected.
func (s *scenarioStore) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read scenario dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".lua") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		scn, err := luascenario.LoadFile(path)
		if err != nil {
			return fmt.Errorf("scenario script %s: %w", path, err)
		}
		if err := s.add(scn); err != nil {
			return err
		}
		log.Printf("[PLAYBACK] loaded scenario %s from %s", scn.ID, path)
	}
	return nil
}

func (s *scenarioStore) add(scn *scenario.Scenario) error {
	if _, err := catalog.Get(scn.ID); err == nil {
		return fmt.Errorf("scenario %s shadows a built-in", scn.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.loaded[scn.ID]; exists {
		return fmt.Errorf("duplicate scenario id %s", scn.ID)
	}
	s.loaded[scn.ID] = scn
	return nil
}

// Get returns the scenario with the given id.
func (s *scenarioStore) Get(id string) (*scenario.Scenario, error) {
	s.mu.RLock()
	scn, ok := s.loaded[id]
	s.mu.RUnlock()
	if ok {
		return scn, nil
	}
	return catalog.Get(id)
}

// All returns every known scenario, built-ins first, then loaded scripts by id.
func (s *scenarioStore) All() []*scenario.Scenario {
	out := catalog.All()

	s.mu.RLock()
	ids := make([]string, 0, len(s.loaded))
	for id := range s.loaded {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range ids {
		out = append(out, s.loaded[id])
	}
	return out
}
