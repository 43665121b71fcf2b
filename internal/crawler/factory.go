package crawler

import (
	"go.uber.org/zap"

	"github.com/mvp-joe/askcode/internal/chunk"
	"github.com/mvp-joe/askcode/internal/detect"
)

// ForProject returns the crawler for a detected archetype. SQLDatabase
// projects get the variant that scans only database files; every other
// archetype shares the generic crawler.
func ForProject(pt detect.ProjectType, ignorePatterns []string, logger *zap.Logger) Crawler {
	base := newGeneric(ignorePatterns, logger)
	if pt == detect.SQLDatabase {
		return &sqlCrawler{generic: base}
	}
	return base
}

// sqlCrawler narrows the scan to SQL and database files; chunking is
// inherited (statement splitting for *.sql).
type sqlCrawler struct {
	*generic
}

func (c *sqlCrawler) Scan(root string, excludePatterns []string) ([]string, error) {
	return c.scan(root, excludePatterns, chunk.IsSQLPath)
}
