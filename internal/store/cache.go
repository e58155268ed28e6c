package store

import (
	"database/sql"
	"fmt"
	"time"
)

// GetHTMLCache reads sanitised HTML for (message, remote policy), if cached.
// The cache key is the literal remote-policy string, not the render theme
// (SPEC_FULL.md §10 open-question resolution: HTML cache is theme-independent).
func (s *Store) GetHTMLCache(messageID int64, policy RemotePolicy) (string, bool, error) {
	var html string
	err := s.db.QueryRow(`SELECT html FROM cache_html WHERE message_id = ? AND remote_policy = ?`,
		messageID, string(policy)).Scan(&html)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read html cache: %w", err)
	}
	return html, true, nil
}

// SetHTMLCache stores prepared HTML for (message, remote policy).
func (s *Store) SetHTMLCache(messageID int64, policy RemotePolicy, html string) error {
	_, err := s.db.Exec(`
		INSERT INTO cache_html (message_id, remote_policy, html) VALUES (?, ?, ?)
		ON CONFLICT(message_id, remote_policy) DO UPDATE SET html = excluded.html`,
		messageID, string(policy), html)
	if err != nil {
		return fmt.Errorf("failed to store html cache: %w", err)
	}
	return nil
}

// GetCacheTiles reads every tile for the exact
// (message, width, tile height, theme key, remote policy) key, ordered by
// tile index, and bumps updated_at on every returned row so the LRU clock
// of a hit advances (spec.md §8: "a get_cache_tiles call that returns a
// non-empty list increases updated_at for every returned tile row").
func (s *Store) GetCacheTiles(messageID int64, widthPx, tileHeightPx int, themeKey string, policy RemotePolicy) ([]TileRow, error) {
	rows, err := s.db.Query(`
		SELECT tile_index, height_px, png, updated_at FROM cache_tiles
		WHERE message_id = ? AND width_px = ? AND tile_height_px = ? AND theme_key = ? AND remote_policy = ?
		ORDER BY tile_index ASC`,
		messageID, widthPx, tileHeightPx, themeKey, string(policy))
	if err != nil {
		return nil, fmt.Errorf("failed to query tile cache: %w", err)
	}

	var out []TileRow
	for rows.Next() {
		var t TileRow
		if err := rows.Scan(&t.TileIndex, &t.HeightPx, &t.PNG, &t.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan tile: %w", err)
		}
		t.MessageID = messageID
		t.WidthPx = widthPx
		t.TileHeightPx = tileHeightPx
		t.ThemeKey = themeKey
		t.RemotePolicy = policy
		out = append(out, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(out) == 0 {
		return out, nil
	}

	now := time.Now().Unix()
	_, err = s.db.Exec(`
		UPDATE cache_tiles SET updated_at = ?
		WHERE message_id = ? AND width_px = ? AND tile_height_px = ? AND theme_key = ? AND remote_policy = ?`,
		now, messageID, widthPx, tileHeightPx, themeKey, string(policy))
	if err != nil {
		return nil, fmt.Errorf("failed to touch tile cache: %w", err)
	}
	for i := range out {
		out[i].UpdatedAt = now
	}
	return out, nil
}

// InsertCacheTiles writes (or replaces) a full tile set.
func (s *Store) InsertCacheTiles(tiles []TileRow) error {
	if len(tiles) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tile insert: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, t := range tiles {
		_, err := tx.Exec(`
			INSERT INTO cache_tiles (message_id, width_px, tile_height_px, theme_key,
				remote_policy, tile_index, height_px, png, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(message_id, width_px, tile_height_px, theme_key, remote_policy, tile_index)
			DO UPDATE SET height_px = excluded.height_px, png = excluded.png, updated_at = excluded.updated_at`,
			t.MessageID, t.WidthPx, t.TileHeightPx, t.ThemeKey, string(t.RemotePolicy),
			t.TileIndex, t.HeightPx, t.PNG, now)
		if err != nil {
			return fmt.Errorf("failed to insert tile: %w", err)
		}
	}
	return tx.Commit()
}

// tilePruneBatch is how many rows prune_cache_tiles deletes per pass
// (spec.md §4.2: "delete the 50 oldest rows").
const tilePruneBatch = 50

// PruneCacheTiles deletes the oldest tile rows (by updated_at ascending)
// in batches of 50 until total tile bytes are under maxBytes, or until a
// pass deletes nothing (spec.md §4.2/§4.6).
func (s *Store) PruneCacheTiles(maxBytes int64) error {
	for {
		var total int64
		if err := s.db.QueryRow(`SELECT COALESCE(SUM(LENGTH(png)), 0) FROM cache_tiles`).Scan(&total); err != nil {
			return fmt.Errorf("failed to sum tile bytes: %w", err)
		}
		if total <= maxBytes {
			return nil
		}

		res, err := s.db.Exec(`
			DELETE FROM cache_tiles WHERE rowid IN (
				SELECT rowid FROM cache_tiles ORDER BY updated_at ASC LIMIT ?
			)`, tilePruneBatch)
		if err != nil {
			return fmt.Errorf("failed to prune tile cache: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read prune row count: %w", err)
		}
		if n == 0 {
			return nil
		}
	}
}
