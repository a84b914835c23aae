package game

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/playperu/promptparty/internal/promptparty"
)

// Inbound message kinds.
const (
	KindAdminRegister      = "admin_register"
	KindPlayerRegister     = "player_register"
	KindPlayerRename       = "player_rename"
	KindPlayerAnswer       = "player_answer"
	KindAdminRoundStart    = "admin_round_start"
	KindSupervisorRegister = "supervisor_register"
)

// ClientMessage is one decoded inbound message. The set of implementations
// is closed: every kind the server understands, plus Unrecognized.
type ClientMessage interface {
	Kind() string
	clientMessage()
}

type AdminRegister struct{}

type SupervisorRegister struct{}

type PlayerRegister struct {
	PlayerName string `json:"playerName"`
}

type PlayerRename struct {
	NewName string `json:"newName"`
}

type PlayerAnswer struct {
	RoundID       string `json:"roundId"`
	PlayerID      string `json:"playerId"`
	PlayerName    string `json:"playerName"`
	Text          string `json:"text"`
	SentByTimeout bool   `json:"sentByTimeout"`
}

type AdminRoundStart struct {
	Text string `json:"text"`
}

// Unrecognized carries the type of a well-formed message nobody handles.
type Unrecognized struct {
	Type string
}

func (AdminRegister) Kind() string      { return KindAdminRegister }
func (SupervisorRegister) Kind() string { return KindSupervisorRegister }
func (PlayerRegister) Kind() string     { return KindPlayerRegister }
func (PlayerRename) Kind() string       { return KindPlayerRename }
func (PlayerAnswer) Kind() string       { return KindPlayerAnswer }
func (AdminRoundStart) Kind() string    { return KindAdminRoundStart }

func (u Unrecognized) Kind() string {
	if u.Type == "" {
		return "unknown"
	}
	return u.Type
}

func (AdminRegister) clientMessage()      {}
func (SupervisorRegister) clientMessage() {}
func (PlayerRegister) clientMessage()     {}
func (PlayerRename) clientMessage()       {}
func (PlayerAnswer) clientMessage()       {}
func (AdminRoundStart) clientMessage()    {}
func (Unrecognized) clientMessage()       {}

// Decode parses one inbound frame. An error means the frame is not a JSON
// object of the expected shape; an unknown type is not an error.
func Decode(data []byte) (ClientMessage, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}

	var msg ClientMessage
	switch env.Type {
	case KindAdminRegister:
		return AdminRegister{}, nil
	case KindSupervisorRegister:
		return SupervisorRegister{}, nil
	case KindPlayerRegister:
		msg = decodeAs[PlayerRegister](data)
	case KindPlayerRename:
		msg = decodeAs[PlayerRename](data)
	case KindPlayerAnswer:
		msg = decodeAs[PlayerAnswer](data)
	case KindAdminRoundStart:
		msg = decodeAs[AdminRoundStart](data)
	default:
		return Unrecognized{Type: env.Type}, nil
	}
	if msg == nil {
		return nil, fmt.Errorf("decoding %s: malformed fields", env.Type)
	}
	return msg, nil
}

func decodeAs[T ClientMessage](data []byte) ClientMessage {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

// Outbound is any message the server sends.
type Outbound interface {
	MessageType() string
}

// Outbound message types.
const (
	TypeRoundStart             = "round_start"
	TypeRoundStartRejected     = "round_start_rejected"
	TypeRoundAnswer            = "round_answer"
	TypeAnswerAccepted         = "answer_accepted"
	TypeAnswerRejected         = "answer_rejected"
	TypeAnswerImageReady       = "answer_image_ready"
	TypeAnswerImageError       = "answer_image_error"
	TypePlayerRegistered       = "player_registered"
	TypePlayerRenamed          = "player_renamed"
	TypePlayerRenamedBroadcast = "player_renamed_broadcast"
	TypePlayerList             = "player_list"
	TypeScoreUpdate            = "score_update"
)

// Answer rejection reasons.
const (
	ReasonNoActiveRound             = "no_active_round"
	ReasonWrongRound                = "wrong_round"
	ReasonTooLate                   = "too_late"
	ReasonTournamentClosedOrMissing = "tournament_closed_or_missing"
)

type RoundStartMsg struct {
	Type           string    `json:"type"`
	RoundID        string    `json:"roundId"`
	RoundNumber    int       `json:"roundNumber"`
	Text           string    `json:"text"`
	DurationMs     int64     `json:"durationMs"`
	ToleranceMs    int64     `json:"toleranceMs"`
	StartTime      time.Time `json:"startTime"`
	TournamentName string    `json:"tournamentName,omitempty"`
	ModelName      string    `json:"modelName,omitempty"`
}

func NewRoundStart(r promptparty.Round) RoundStartMsg {
	return RoundStartMsg{
		Type:           TypeRoundStart,
		RoundID:        r.ID,
		RoundNumber:    r.Number,
		Text:           r.Prompt,
		DurationMs:     r.DurationMs,
		ToleranceMs:    r.ToleranceMs,
		StartTime:      r.StartTime,
		TournamentName: r.TournamentName,
		ModelName:      r.ModelName,
	}
}

type RoundStartRejectedMsg struct {
	Type           string `json:"type"`
	Reason         string `json:"reason"`
	TournamentName string `json:"tournamentName"`
}

func NewRoundStartRejected(tournamentName string) RoundStartRejectedMsg {
	return RoundStartRejectedMsg{
		Type:           TypeRoundStartRejected,
		Reason:         ReasonTournamentClosedOrMissing,
		TournamentName: tournamentName,
	}
}

type RoundAnswerMsg struct {
	Type               string                  `json:"type"`
	RoundID            string                  `json:"roundId"`
	RoundNumber        int                     `json:"roundNumber"`
	PlayerName         string                  `json:"playerName"`
	PlayerID           string                  `json:"playerId"`
	Text               string                  `json:"text"`
	SubmittedAt        time.Time               `json:"submittedAt"`
	SubmittedByTimeout bool                    `json:"submittedByTimeout"`
	Late               bool                    `json:"late"`
	ImageStatus        promptparty.ImageStatus `json:"imageStatus"`
	TournamentName     string                  `json:"tournamentName,omitempty"`
}

func NewRoundAnswer(r promptparty.Round, a promptparty.Answer) RoundAnswerMsg {
	return RoundAnswerMsg{
		Type:               TypeRoundAnswer,
		RoundID:            r.ID,
		RoundNumber:        r.Number,
		PlayerName:         a.PlayerName,
		PlayerID:           a.PlayerID,
		Text:               a.Text,
		SubmittedAt:        a.SubmittedAt,
		SubmittedByTimeout: a.SubmittedByTimeout,
		Late:               a.Late,
		ImageStatus:        a.ImageStatus,
		TournamentName:     r.TournamentName,
	}
}

type AnswerAcceptedMsg struct {
	Type        string    `json:"type"`
	RoundID     string    `json:"roundId"`
	SubmittedAt time.Time `json:"submittedAt"`
	Late        bool      `json:"late"`
}

func NewAnswerAccepted(roundID string, at time.Time, late bool) AnswerAcceptedMsg {
	return AnswerAcceptedMsg{Type: TypeAnswerAccepted, RoundID: roundID, SubmittedAt: at, Late: late}
}

type AnswerRejectedMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
	MaxMs  *int64 `json:"maxMs,omitempty"`
	DiffMs *int64 `json:"diffMs,omitempty"`
}

func NewAnswerRejected(reason string) AnswerRejectedMsg {
	return AnswerRejectedMsg{Type: TypeAnswerRejected, Reason: reason}
}

func NewAnswerTooLate(maxMs, diffMs int64) AnswerRejectedMsg {
	return AnswerRejectedMsg{Type: TypeAnswerRejected, Reason: ReasonTooLate, MaxMs: &maxMs, DiffMs: &diffMs}
}

type AnswerImageReadyMsg struct {
	Type        string `json:"type"`
	RoundID     string `json:"roundId"`
	RoundNumber int    `json:"roundNumber"`
	PlayerID    string `json:"playerId"`
	PlayerName  string `json:"playerName"`
	ImagePath   string `json:"imagePath"`
	ModelName   string `json:"modelName,omitempty"`
}

type AnswerImageErrorMsg struct {
	Type        string `json:"type"`
	RoundID     string `json:"roundId"`
	RoundNumber int    `json:"roundNumber"`
	PlayerID    string `json:"playerId"`
	PlayerName  string `json:"playerName"`
	Error       string `json:"error"`
}

// NewImageOutcome picks the ready or error variant for res.
func NewImageOutcome(res promptparty.ImageResult) Outbound {
	j := res.Job
	if res.Update.Status == promptparty.ImageOK {
		return AnswerImageReadyMsg{
			Type:        TypeAnswerImageReady,
			RoundID:     j.RoundID,
			RoundNumber: j.RoundNumber,
			PlayerID:    j.PlayerID,
			PlayerName:  j.PlayerName,
			ImagePath:   res.Update.Path,
			ModelName:   res.Update.ModelName,
		}
	}
	return AnswerImageErrorMsg{
		Type:        TypeAnswerImageError,
		RoundID:     j.RoundID,
		RoundNumber: j.RoundNumber,
		PlayerID:    j.PlayerID,
		PlayerName:  j.PlayerName,
		Error:       res.Update.Error,
	}
}

// PlayerIdentityMsg is shared by player_registered, player_renamed and
// player_renamed_broadcast.
type PlayerIdentityMsg struct {
	Type       string `json:"type"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

func NewPlayerIdentity(typ string, id ConnID, name string) PlayerIdentityMsg {
	return PlayerIdentityMsg{Type: typ, PlayerID: string(id), PlayerName: name}
}

type PlayerInfo struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

type PlayerListMsg struct {
	Type    string       `json:"type"`
	Players []PlayerInfo `json:"players"`
}

func NewPlayerList(players []PlayerInfo) PlayerListMsg {
	if players == nil {
		players = []PlayerInfo{}
	}
	return PlayerListMsg{Type: TypePlayerList, Players: players}
}

type ScoreUpdateMsg struct {
	Type           string  `json:"type"`
	TournamentName *string `json:"tournamentName"`
	PlayerName     string  `json:"playerName"`
	Score          int     `json:"score"`
}

func NewScoreUpdate(s promptparty.Score) ScoreUpdateMsg {
	return ScoreUpdateMsg{
		Type:           TypeScoreUpdate,
		TournamentName: s.TournamentName,
		PlayerName:     s.PlayerName,
		Score:          s.Score,
	}
}

func (m RoundStartMsg) MessageType() string         { return m.Type }
func (m RoundStartRejectedMsg) MessageType() string { return m.Type }
func (m RoundAnswerMsg) MessageType() string        { return m.Type }
func (m AnswerAcceptedMsg) MessageType() string     { return m.Type }
func (m AnswerRejectedMsg) MessageType() string     { return m.Type }
func (m AnswerImageReadyMsg) MessageType() string   { return m.Type }
func (m AnswerImageErrorMsg) MessageType() string   { return m.Type }
func (m PlayerIdentityMsg) MessageType() string     { return m.Type }
func (m PlayerListMsg) MessageType() string         { return m.Type }
func (m ScoreUpdateMsg) MessageType() string        { return m.Type }
