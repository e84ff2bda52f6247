package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations. Version 1 matches the
// tables written by the legacy Node server, so an existing lunar_reminder.db
// opens without changes.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS reminders (
	id              INTEGER PRIMARY KEY,
	title           TEXT NOT NULL,
	type            TEXT NOT NULL,
	year            INTEGER,
	month           INTEGER NOT NULL,
	day             INTEGER NOT NULL,
	time            TEXT,
	alertTiming     TEXT,
	recurrence_type TEXT DEFAULT 'NONE',
	created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS reminder_exceptions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	reminder_id INTEGER NOT NULL,
	ex_year     INTEGER NOT NULL,
	ex_month    INTEGER NOT NULL,
	ex_day      INTEGER NOT NULL,
	FOREIGN KEY (reminder_id) REFERENCES reminders(id) ON DELETE CASCADE
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
ALTER TABLE reminders ADD COLUMN is_leap INTEGER NOT NULL DEFAULT 0;

DELETE FROM reminder_exceptions
WHERE id NOT IN (
	SELECT MIN(id) FROM reminder_exceptions
	GROUP BY reminder_id, ex_year, ex_month, ex_day
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_reminder_exceptions_unique
	ON reminder_exceptions(reminder_id, ex_year, ex_month, ex_day);

CREATE INDEX IF NOT EXISTS idx_reminders_title ON reminders(title);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
