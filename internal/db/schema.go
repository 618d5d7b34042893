package db

// schemaSQL creates the configuration and stats tables.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS devices (
	screen_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	offset_ms INTEGER NOT NULL DEFAULT 0,
	overrides TEXT
);

CREATE TABLE IF NOT EXISTS channel_whitelist (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS skip_categories (
	category TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS stats (
	device_id TEXT NOT NULL,
	metric TEXT NOT NULL,
	value REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (device_id, metric)
);

CREATE INDEX IF NOT EXISTS idx_stats_device ON stats(device_id);
`
