package store

import (
	"context"
	"encoding/json"

	"github.com/playperu/promptparty/internal/promptparty"
)

const settingsID = "global"

// GetSettings returns the singleton settings document, or ErrNotFound
// before the first PutSettings.
func (s *DocStore) GetSettings(ctx context.Context) (promptparty.Settings, error) {
	var st promptparty.Settings
	err := getDoc(ctx, s.db, &st, `SELECT json(data) FROM settings WHERE id = ?`, settingsID)
	return st, err
}

func (s *DocStore) PutSettings(ctx context.Context, st promptparty.Settings) (promptparty.Settings, error) {
	st.UpdatedAt = s.now()
	data, err := json.Marshal(st)
	if err != nil {
		return promptparty.Settings{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO settings (id, data) VALUES (?, jsonb(?))
		 ON CONFLICT (id) DO UPDATE SET data = excluded.data`,
		settingsID, string(data),
	)
	if err != nil {
		return promptparty.Settings{}, err
	}
	return st, nil
}
