package store

// Migration is one forward-only schema change, applied in a transaction and
// recorded in the migrations table (grounded on internal/database/migrations.go).
type Migration struct {
	Version int
	SQL     string
}

var migrations = []Migration{
	{
		Version: 1,
		SQL: `
			CREATE TABLE accounts (
				id      INTEGER PRIMARY KEY AUTOINCREMENT,
				name    TEXT NOT NULL,
				address TEXT NOT NULL
			);

			CREATE TABLE folders (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
				name       TEXT NOT NULL,
				unread     INTEGER NOT NULL DEFAULT 0,
				UNIQUE(account_id, name)
			);

			CREATE TABLE folder_sync_state (
				folder_id     INTEGER PRIMARY KEY REFERENCES folders(id) ON DELETE CASCADE,
				uid_validity  INTEGER,
				next_uid      INTEGER,
				last_seen_uid INTEGER,
				last_sync_ts  INTEGER,
				oldest_ts     INTEGER
			);

			CREATE TABLE messages (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
				folder_id  INTEGER NOT NULL REFERENCES folders(id) ON DELETE CASCADE,
				imap_uid   INTEGER,
				date_str   TEXT NOT NULL DEFAULT '',
				date_ts    INTEGER,
				from_addr  TEXT NOT NULL DEFAULT '',
				to_addr    TEXT NOT NULL DEFAULT '',
				cc_addr    TEXT NOT NULL DEFAULT '',
				subject    TEXT NOT NULL DEFAULT '',
				unread     INTEGER NOT NULL DEFAULT 1,
				preview    TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_messages_folder ON messages(folder_id);
			CREATE UNIQUE INDEX idx_messages_folder_uid ON messages(folder_id, imap_uid)
				WHERE imap_uid IS NOT NULL;

			CREATE TABLE bodies (
				message_id INTEGER PRIMARY KEY REFERENCES messages(id) ON DELETE CASCADE,
				raw        BLOB NOT NULL
			);

			CREATE TABLE cache_text (
				message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
				width_cols INTEGER NOT NULL,
				text       TEXT NOT NULL,
				PRIMARY KEY (message_id, width_cols)
			);

			CREATE TABLE cache_html (
				message_id    INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
				remote_policy TEXT NOT NULL,
				html          TEXT NOT NULL,
				PRIMARY KEY (message_id, remote_policy)
			);

			CREATE TABLE cache_tiles (
				message_id      INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
				width_px        INTEGER NOT NULL,
				tile_height_px  INTEGER NOT NULL,
				theme_key       TEXT NOT NULL,
				remote_policy   TEXT NOT NULL,
				tile_index      INTEGER NOT NULL,
				height_px       INTEGER NOT NULL,
				png             BLOB NOT NULL,
				updated_at      INTEGER NOT NULL,
				PRIMARY KEY (message_id, width_px, tile_height_px, theme_key, remote_policy, tile_index)
			);

			CREATE INDEX idx_cache_tiles_updated ON cache_tiles(updated_at);
		`,
	},
}
