package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"

	"github.com/ksred/schema-guard/internal/database"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// fileName matches 001_create_users.up.sql and 001_create_users.down.sql
var fileName = regexp.MustCompile(`^(\d+_[A-Za-z0-9_\-]+)\.(up|down)\.sql$`)

type sqlPair struct {
	up   string
	down string
}

// Load reads every migration file at the root of fsys. A migration is named
// after its file stem; the down file is optional.
func Load(fsys fs.FS) ([]database.Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}

	pairs := make(map[string]*sqlPair)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		match := fileName.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}

		body, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", entry.Name(), err)
		}

		name, direction := match[1], match[2]
		pair, ok := pairs[name]
		if !ok {
			pair = &sqlPair{}
			pairs[name] = pair
		}
		if direction == database.DirectionUp {
			pair.up = string(body)
		} else {
			pair.down = string(body)
		}
	}

	names := make([]string, 0, len(pairs))
	for name := range pairs {
		names = append(names, name)
	}
	sort.Strings(names)

	migrations := make([]database.Migration, 0, len(names))
	for _, name := range names {
		pair := pairs[name]
		if strings.TrimSpace(pair.up) == "" {
			return nil, fmt.Errorf("migration %s has no up file", name)
		}

		m := database.Migration{
			Name: name,
			Up:   execSQL(name+".up.sql", pair.up),
		}
		if strings.TrimSpace(pair.down) != "" {
			m.Down = execSQL(name+".down.sql", pair.down)
		}
		migrations = append(migrations, m)
	}

	return migrations, nil
}

func execSQL(file, statements string) database.MigrationFunc {
	return func(ctx context.Context, tx *gorm.DB, logger zerolog.Logger) error {
		logger.Debug().Str("file", file).Msg("Executing migration file")
		if err := tx.WithContext(ctx).Exec(statements).Error; err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		return nil
	}
}
