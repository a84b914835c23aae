// Package promptparty defines the core domain types of the game.
// It has no external dependencies.
package promptparty

import (
	"encoding/json"
	"time"
)

// Timing window fixed on every round at creation.
const (
	RoundDurationMs  = 30000
	RoundToleranceMs = 5000
)

// UnnamedPlayer is shown wherever a player has no usable name.
const UnnamedPlayer = "Unnamed"

// DefaultTournamentName is created at startup when no settings exist yet.
const DefaultTournamentName = "Default Tournament"

type Role string

const (
	RoleUnset      Role = ""
	RoleAdmin      Role = "admin"
	RolePlayer     Role = "player"
	RoleSupervisor Role = "supervisor"
	RoleSystem     Role = "system"
)

type Direction string

const (
	ClientToServer Direction = "client->server"
	ServerToClient Direction = "server->client"
)

type ImageStatus string

const (
	ImagePending ImageStatus = "pending"
	ImageOK      ImageStatus = "ok"
	ImageError   ImageStatus = "error"
)

type Round struct {
	ID             string    `json:"id"`
	Number         int       `json:"roundNumber"`
	Prompt         string    `json:"adminText"`
	StartTime      time.Time `json:"startTime"`
	DurationMs     int64     `json:"durationMs"`
	ToleranceMs    int64     `json:"toleranceMs"`
	TournamentID   string    `json:"tournament,omitempty"`
	TournamentName string    `json:"tournamentName,omitempty"`
	ModelName      string    `json:"modelName,omitempty"`
	Answers        []Answer  `json:"answers"`
	WinnerNames    []string  `json:"winnerNames"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Window is the last instant, relative to StartTime, at which an answer is admitted.
func (r Round) Window() time.Duration {
	return time.Duration(r.DurationMs+r.ToleranceMs) * time.Millisecond
}

// AnswerBy returns the answer submitted under playerName, if any.
func (r Round) AnswerBy(playerName string) (Answer, bool) {
	for _, a := range r.Answers {
		if a.PlayerName == playerName {
			return a, true
		}
	}
	return Answer{}, false
}

type Answer struct {
	PlayerName         string      `json:"playerName"`
	PlayerID           string      `json:"playerId"`
	Text               string      `json:"text"`
	SubmittedAt        time.Time   `json:"submittedAt"`
	SubmittedByTimeout bool        `json:"submittedByTimeout"`
	Late               bool        `json:"late"`
	TournamentName     string      `json:"tournamentName,omitempty"`
	ImageStatus        ImageStatus `json:"imageStatus"`
	ImagePath          string      `json:"imagePath,omitempty"`
	ImageError         string      `json:"imageError,omitempty"`
	ModelName          string      `json:"modelName,omitempty"`
}

// AnswerKey identifies exactly one answer across all rounds.
type AnswerKey struct {
	RoundID    string
	PlayerName string
	PlayerID   string
}

// ImageUpdate is the terminal image state written onto an answer.
type ImageUpdate struct {
	Status    ImageStatus
	Path      string
	Error     string
	ModelName string
}

type Score struct {
	ID             string    `json:"id"`
	TournamentName *string   `json:"tournamentName"`
	PlayerName     string    `json:"playerName"`
	Score          int       `json:"score"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type Tournament struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsClosed  bool      `json:"isClosed"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Settings struct {
	CurrentTournamentName string    `json:"currentTournamentName,omitempty"`
	CurrentModelName      string    `json:"currentModelName,omitempty"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

type EventLogEntry struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Direction    Direction       `json:"direction"`
	Role         Role            `json:"role,omitempty"`
	PlayerName   string          `json:"playerName,omitempty"`
	ConnectionID string          `json:"connectionId,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// ImageJob is everything an image job needs; it never sees live game state.
type ImageJob struct {
	RoundID     string
	RoundNumber int
	PlayerID    string
	PlayerName  string
	Prompt      string
	ModelName   string
}

func (j ImageJob) Key() AnswerKey {
	return AnswerKey{RoundID: j.RoundID, PlayerName: j.PlayerName, PlayerID: j.PlayerID}
}

// ImageResult is the terminal outcome of one ImageJob.
type ImageResult struct {
	Job    ImageJob
	Update ImageUpdate
}
