package core

import (
	"context"
	"fmt"
	"strings"
)

// Attribute side tables share one shape: (id, <owner>_id, key, value).
// Table and column names at call sites are compile-time constants.

const secretAttrMarker = "vim_auth"

func loadAttributes(ctx context.Context, db DB, table, ownerCol, ownerID string) (map[string]string, error) {
	rows, err := db.Query(ctx,
		fmt.Sprintf(`SELECT key, value FROM %s WHERE %s = $1`, table, ownerCol),
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", table, err)
	}
	defer rows.Close()

	attrs := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		attrs[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return attrs, nil
}

// saveAttributes upserts attributes for one owner. With redactSecrets set,
// keys containing the credential marker are dropped instead of stored.
func saveAttributes(ctx context.Context, db DB, table, ownerCol, ownerID string, attrs map[string]string, redactSecrets bool) error {
	for k, v := range attrs {
		if redactSecrets && strings.Contains(k, secretAttrMarker) {
			continue
		}
		_, err := db.Exec(ctx,
			fmt.Sprintf(`INSERT INTO %s (%s, key, value) VALUES ($1, $2, $3)
			 ON CONFLICT (%s, key) DO UPDATE SET value = EXCLUDED.value`,
				table, ownerCol, ownerCol),
			ownerID, k, v,
		)
		if err != nil {
			return fmt.Errorf("save %s %q: %w", table, k, err)
		}
	}
	return nil
}

func deleteAttribute(ctx context.Context, db DB, table, ownerCol, ownerID, key string) error {
	_, err := db.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND key = $2`, table, ownerCol),
		ownerID, key,
	)
	if err != nil {
		return fmt.Errorf("delete %s %q: %w", table, key, err)
	}
	return nil
}
