package store

import "fmt"

// Open returns the CredentialStore for driver. For "bolt" the dsn is a
// file path; for "postgres" and "sqlite" it is a database/sql DSN.
func Open(driver, dsn string) (CredentialStore, error) {
	switch driver {
	case "bolt", "":
		return OpenBolt(dsn)
	case "postgres", "sqlite":
		return NewSQLStore(driver, dsn)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown credential driver %q", driver)
	}
}
