package store

import (
	"fmt"
	"strings"
	"time"
)

// sqliteDSN adds WAL journaling and a busy timeout to a file DSN unless the
// caller already set them. In-memory databases are returned unchanged.
func sqliteDSN(dsn string, busyTimeout time.Duration) string {
	lower := strings.ToLower(dsn)
	if dsn == "" || dsn == ":memory:" || strings.HasPrefix(lower, "file::memory:") {
		return dsn
	}
	pragmas := []struct {
		key   string
		value string
	}{
		{key: "journal_mode", value: "journal_mode(WAL)"},
		{key: "busy_timeout", value: fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds())},
	}
	for _, pragma := range pragmas {
		if pragma.key == "busy_timeout" && busyTimeout <= 0 {
			continue
		}
		if strings.Contains(lower, "_pragma="+pragma.key) {
			continue
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=" + pragma.value
	}
	return dsn
}
