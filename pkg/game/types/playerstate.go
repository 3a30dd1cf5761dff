package types

// Player is a member of exactly one session.
type Player struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Score      int    `json:"score"`
	HasGuessed bool   `json:"has_guessed"`
}

// Copy returns a detached copy of the player
func (p *Player) Copy() *Player {
	return &Player{
		ID:         p.ID,
		Name:       p.Name,
		Score:      p.Score,
		HasGuessed: p.HasGuessed,
	}
}
