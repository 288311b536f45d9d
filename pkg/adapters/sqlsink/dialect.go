package sqlsink

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects the SQL flavour the sink speaks
type Dialect string

const (
	// Postgres uses $n placeholders and JSONB property columns
	Postgres Dialect = "postgres"
	// SQLite uses ? placeholders and TEXT property columns
	SQLite Dialect = "sqlite3"
)

// ParseDialect maps a database/sql driver name to a Dialect
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return "", fmt.Errorf("unsupported sql driver %q", driver)
	}
}

// rebind rewrites ? placeholders for dialects that need numbered ones
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) schema() string {
	propsType := "TEXT"
	tsType := "TIMESTAMP"
	if d == Postgres {
		propsType = "JSONB"
		tsType = "TIMESTAMP WITH TIME ZONE"
	}
	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS analytics_events (
		id VARCHAR(36) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		user_id VARCHAR(255),
		properties %[1]s,
		out_of_session BOOLEAN NOT NULL DEFAULT FALSE,
		created_at %[2]s NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_analytics_events_name ON analytics_events(name);
	CREATE INDEX IF NOT EXISTS idx_analytics_events_user_id ON analytics_events(user_id);

	CREATE TABLE IF NOT EXISTS analytics_user_properties (
		user_id VARCHAR(255) NOT NULL,
		name VARCHAR(255) NOT NULL,
		value TEXT NOT NULL,
		immutable BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at %[2]s NOT NULL,
		PRIMARY KEY (user_id, name)
	);
	`, propsType, tsType)
}
