package store

// migration is one schema step. Versions are sequential from 1.
type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS custom_properties (
	item_id    TEXT NOT NULL,
	name       TEXT NOT NULL,
	value      TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (item_id, name)
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
