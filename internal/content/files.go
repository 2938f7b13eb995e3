package content

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/pai-dashboard/internal/lessontree"
)

// courseFile is the YAML layout of one course fixture. Lessons and details keep
// the same shapes the content API returns; details are grouped by node type.
type courseFile struct {
	ID      string                    `yaml:"id"`
	Name    string                    `yaml:"name"`
	Lessons []any                     `yaml:"lessons"`
	Details map[string]map[string]any `yaml:"details"`
}

type detailKey struct {
	typ lessontree.NodeType
	id  lessontree.NodeID
}

// fixtureSet accumulates course files during a reload.
type fixtureSet struct {
	courses   map[string][]lessontree.LessonSummary
	details   map[detailKey]lessontree.RawNodeDetail
	owners    map[detailKey]string
	ambiguous map[detailKey]bool
}

// FileSource serves courses from YAML files on disk. It is used for offline demos
// and as the last entry of a fallback Chain. Node details are looked up by type and
// id only, so a node id claimed by two courses is not served at all.
type FileSource struct {
	rootDir string
	courses map[string][]lessontree.LessonSummary
	details map[detailKey]lessontree.RawNodeDetail
	mu      sync.RWMutex
}

// NewFileSource loads every course file under rootDir.
func NewFileSource(rootDir string) (*FileSource, error) {
	s := &FileSource{rootDir: rootDir}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads all course files.
func (s *FileSource) Reload() error {
	set := &fixtureSet{
		courses:   make(map[string][]lessontree.LessonSummary),
		details:   make(map[detailKey]lessontree.RawNodeDetail),
		owners:    make(map[detailKey]string),
		ambiguous: make(map[detailKey]bool),
	}

	err := filepath.Walk(s.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}
		return set.load(path)
	})
	if err != nil {
		return fmt.Errorf("loading course fixtures: %w", err)
	}

	s.mu.Lock()
	s.courses = set.courses
	s.details = set.details
	s.mu.Unlock()

	slog.Info("course fixtures loaded", "courses", len(set.courses), "nodes", len(set.details))
	return nil
}

func (set *fixtureSet) load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var f courseFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		slog.Warn("skipping invalid course YAML", "path", path, "error", err)
		return nil
	}
	if f.ID == "" {
		return nil // Not a course file
	}

	var lessons []lessontree.LessonSummary
	if err := convert(f.Lessons, &lessons); err != nil {
		slog.Warn("skipping course with invalid lessons", "path", path, "error", err)
		return nil
	}
	if lessons == nil {
		lessons = []lessontree.LessonSummary{}
	}
	set.courses[f.ID] = lessons

	for typ, nodes := range f.Details {
		for id, raw := range nodes {
			key := detailKey{typ: lessontree.NodeType(typ), id: lessontree.NodeID(id)}
			var d lessontree.RawNodeDetail
			if err := convert(raw, &d); err != nil {
				slog.Warn("skipping invalid node detail", "path", path, "type", typ, "node_id", id, "error", err)
				continue
			}
			set.add(f.ID, key, d)
		}
	}
	return nil
}

// add records a node detail. A key owned by another course is dropped from both.
func (set *fixtureSet) add(courseID string, key detailKey, d lessontree.RawNodeDetail) {
	if set.ambiguous[key] {
		return
	}
	if owner, ok := set.owners[key]; ok && owner != courseID {
		slog.Warn("node detail defined by more than one course, not serving it",
			"type", key.typ,
			"node_id", key.id,
			"courses", owner+","+courseID,
		)
		set.ambiguous[key] = true
		delete(set.details, key)
		return
	}
	set.owners[key] = courseID
	set.details[key] = d
}

// convert re-encodes YAML-decoded values through JSON so fixtures share the API decoders.
func convert(src, dst any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// Courses returns the ids of all loaded courses.
func (s *FileSource) Courses() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.courses))
	for id := range s.courses {
		ids = append(ids, id)
	}
	return ids
}

func (s *FileSource) FetchTopLevelLessons(_ context.Context, courseID string) ([]lessontree.LessonSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lessons, ok := s.courses[courseID]
	if !ok {
		return nil, fmt.Errorf("course %s: %w", courseID, ErrNotFound)
	}
	return append([]lessontree.LessonSummary(nil), lessons...), nil
}

// FetchNodeDetail returns the fixture detail of a node. Leaf types without a
// fixture resolve to an empty detail.
func (s *FileSource) FetchNodeDetail(_ context.Context, id lessontree.NodeID, typ lessontree.NodeType) (lessontree.RawNodeDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.details[detailKey{typ: typ, id: id}]; ok {
		return d, nil
	}
	if typ != lessontree.TypeLearningObject {
		return lessontree.RawNodeDetail{ID: id, Type: typ}, nil
	}
	return lessontree.RawNodeDetail{}, fmt.Errorf("%s %s: %w", typ, id, ErrNotFound)
}
