package curriculum

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load walks rootDir, decodes every course file (.yaml, .yml or .json) and
// builds a Catalog. Files without a top-level id are not course files and are
// skipped. All validation problems are reported together.
func Load(rootDir string) (*Catalog, error) {
	var (
		courses []Course
		errs    []error
	)

	err := filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isCourseFile(path) {
			return nil
		}

		course, ok, err := loadCourseFile(path)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		case !ok:
			slog.Debug("skipping non-course file", "path", path)
		default:
			courses = append(courses, course)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking catalog dir: %w", err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	catalog, err := NewCatalog(courses)
	if err != nil {
		return nil, err
	}

	slog.Info("catalog loaded",
		"courses", len(courses),
		"questions", catalog.Size(),
		"fingerprint", catalog.Fingerprint(),
	)
	return catalog, nil
}

func isCourseFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

func loadCourseFile(path string) (Course, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Course{}, false, err
	}
	return ParseCourse(data)
}

// ParseCourse decodes and schema-checks one course document. The boolean is
// false when the document has no id and therefore is not a course.
func ParseCourse(data []byte) (Course, bool, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Course{}, false, fmt.Errorf("%w: %v", ErrInvalidCourse, err)
	}
	if _, ok := doc["id"]; !ok {
		return Course{}, false, nil
	}

	if err := validateDocument(normalize(doc).(map[string]any)); err != nil {
		return Course{}, false, err
	}

	var course Course
	if err := yaml.Unmarshal(data, &course); err != nil {
		return Course{}, false, fmt.Errorf("%w: %v", ErrInvalidCourse, err)
	}
	return course, true, nil
}
