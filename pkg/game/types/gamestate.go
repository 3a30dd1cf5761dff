package types

// Phase is the coarse state of a session.
type Phase string

const (
	PhaseLobby           Phase = "LOBBY"
	PhaseRoundWordSelect Phase = "ROUND_WORD_SELECT"
	PhaseRoundDrawing    Phase = "ROUND_DRAWING"
	PhaseRoundEnd        Phase = "ROUND_END"
	PhaseGameOver        Phase = "GAME_OVER"
)

// Snapshot is the full state of a session as delivered to one recipient.
// SecretWord is only ever set in the copy addressed to the drawer.
type Snapshot struct {
	ID                string             `json:"id"`
	Phase             Phase              `json:"phase"`
	Players           map[string]*Player `json:"players"`
	PlayerOrder       []string           `json:"player_order"`
	HostID            string             `json:"host_id"`
	IsGameStarted     bool               `json:"is_game_started"`
	CurrentDrawerID   *string            `json:"current_drawer_id"`
	SecretWord        *string            `json:"secret_word"`
	GuessedWordHint   string             `json:"guessed_word_hint"`
	TimerExpiresAt    *float64           `json:"timer_expires_at"`
	RoundNumber       int                `json:"round_number"`
	TotalRounds       int                `json:"total_rounds"`
	WordCategory      string             `json:"word_category"`
	DrawingStrokes    []Stroke           `json:"drawing_strokes"`
	UsedWords         []string           `json:"used_words"`
	ActiveConnections map[string]bool    `json:"active_connections"`
}

// Redacted returns a shallow copy with the secret word removed, including
// its entry in the used words.
func (s *Snapshot) Redacted() *Snapshot {
	c := *s
	if s.SecretWord == nil {
		return &c
	}
	c.SecretWord = nil
	c.UsedWords = make([]string, 0, len(s.UsedWords))
	for _, w := range s.UsedWords {
		if w != *s.SecretWord {
			c.UsedWords = append(c.UsedWords, w)
		}
	}
	return &c
}
