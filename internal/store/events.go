package store

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/playperu/promptparty/internal/promptparty"
)

// EventFilter narrows ListEvents. PlayerName matches as a case-insensitive
// substring.
type EventFilter struct {
	Type       string
	PlayerName string
	Limit      int
}

// AppendEvent inserts one audit entry. Missing ID and Timestamp are filled in.
func (s *DocStore) AppendEvent(ctx context.Context, e promptparty.EventLogEntry) error {
	if e.ID == "" {
		e.ID = newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	var player any
	if e.PlayerName != "" {
		player = e.PlayerName
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO event_logs (id, type, player_name, timestamp, data)
		 VALUES (?, ?, ?, ?, jsonb(?))`,
		e.ID, e.Type, player, sortable(e.Timestamp), string(data),
	)
	return err
}

// ListEvents returns matching entries, most recent first.
func (s *DocStore) ListEvents(ctx context.Context, f EventFilter) ([]promptparty.EventLogEntry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	var where []string
	var args []any
	if f.Type != "" {
		where = append(where, `type = ?`)
		args = append(args, f.Type)
	}
	if f.PlayerName != "" {
		where = append(where, `player_name LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(f.PlayerName)+"%")
	}

	query := `SELECT json(data) FROM event_logs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit)

	return listDocs[promptparty.EventLogEntry](ctx, s.db, query, args...)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
