package store

import "fmt"

// Open returns the repository for driver: "sqlite" uses path, "postgres" uses dsn.
func Open(driver, path, dsn string) (Repository, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLite(path)
	case "postgres":
		return NewPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
