package sqlite

// Schema creates the tables. Line items and validations are stored as
// JSON columns; everything the filters touch has its own column.
const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id                TEXT PRIMARY KEY,
	kind              TEXT NOT NULL,
	number            INTEGER NOT NULL DEFAULT 0,
	status            TEXT NOT NULL,
	counterparty_tin  TEXT NOT NULL DEFAULT '',
	counterparty_name TEXT NOT NULL DEFAULT '',
	currency          TEXT NOT NULL DEFAULT '',
	lines             TEXT NOT NULL DEFAULT '[]',
	issued_at         INTEGER NOT NULL DEFAULT 0,
	validations       TEXT NOT NULL DEFAULT '[]',
	receipt_number    INTEGER NOT NULL DEFAULT 0,
	receipt_signature TEXT NOT NULL DEFAULT '',
	confirmed_at      INTEGER NOT NULL DEFAULT 0,
	internal_data     TEXT NOT NULL DEFAULT '',
	last_error        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_documents_kind_status ON documents(kind, status);
CREATE INDEX IF NOT EXISTS idx_documents_kind_number ON documents(kind, number);

CREATE TABLE IF NOT EXISTS transmission_results (
	id                TEXT PRIMARY KEY,
	outcome           TEXT NOT NULL,
	device_id         TEXT NOT NULL,
	document_id       TEXT NOT NULL,
	number            INTEGER NOT NULL DEFAULT 0,
	receipt_number    INTEGER NOT NULL DEFAULT 0,
	receipt_signature TEXT NOT NULL DEFAULT '',
	confirmed_at      INTEGER NOT NULL DEFAULT 0,
	internal_data     TEXT NOT NULL DEFAULT '',
	code              TEXT NOT NULL DEFAULT '',
	message           TEXT NOT NULL DEFAULT '',
	hint              TEXT NOT NULL DEFAULT '',
	attempted_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_document ON transmission_results(document_id, attempted_at);

CREATE TABLE IF NOT EXISTS counters (
	device_id TEXT NOT NULL,
	kind      TEXT NOT NULL,
	next      INTEGER NOT NULL DEFAULT 0,
	pending   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (device_id, kind)
);
`
