package memory

// created_at columns hold unix nanoseconds so range filters and ordering
// compare integers. Embedding rows reference their entry without a cascade;
// they must be deleted first. A bootstrap working row is the empty
// placeholder Current creates for a new owner.
const schema = `
CREATE TABLE IF NOT EXISTS core_facts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id TEXT NOT NULL,
	fact TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_core_facts_owner ON core_facts(owner_id, created_at);

CREATE TABLE IF NOT EXISTS core_fact_embeddings (
	fact_id INTEGER PRIMARY KEY REFERENCES core_facts(id),
	embedding BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS working_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id TEXT NOT NULL,
	text TEXT NOT NULL,
	history_order INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	bootstrap INTEGER NOT NULL DEFAULT 0,
	UNIQUE(owner_id, history_order)
);

CREATE TABLE IF NOT EXISTS working_embeddings (
	entry_id INTEGER PRIMARY KEY REFERENCES working_entries(id),
	embedding BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS episodes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id TEXT NOT NULL,
	text TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_episodes_owner_created ON episodes(owner_id, created_at);
CREATE INDEX IF NOT EXISTS idx_episodes_created ON episodes(created_at);

CREATE TABLE IF NOT EXISTS episode_embeddings (
	episode_id INTEGER PRIMARY KEY REFERENCES episodes(id),
	embedding BLOB NOT NULL
);
`
