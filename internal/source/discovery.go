package source

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperrors "kpicli/internal/errors"
	"kpicli/pkg/contracts/domain"
)

// ResolveInputFiles maps each table to an existing file in dir. Names are
// matched case-insensitively; absolute names are used as given.
func ResolveInputFiles(dir string, names map[domain.TableName]string) (map[domain.TableName]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to read input directory %s", dir), err)
	}

	byLower := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		byLower[strings.ToLower(entry.Name())] = entry.Name()
	}

	resolved := make(map[domain.TableName]string, len(names))
	var missing []string
	for table, name := range names {
		if filepath.IsAbs(name) {
			if _, err := os.Stat(name); err != nil {
				missing = append(missing, name)
				continue
			}
			resolved[table] = name
			continue
		}
		actual, ok := byLower[strings.ToLower(name)]
		if !ok {
			missing = append(missing, name)
			continue
		}
		resolved[table] = filepath.Join(dir, actual)
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("input files %s in %s", strings.Join(missing, ", "), dir))
	}
	return resolved, nil
}
