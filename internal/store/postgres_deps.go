package store

// Blank imports pin transitive pgx dependencies so module tidying keeps them
// resolvable alongside the Postgres driver.
import (
	_ "github.com/jackc/pgpassfile"
	_ "github.com/jackc/pgservicefile"
	_ "golang.org/x/sync/semaphore"
	_ "golang.org/x/text/transform"
)
