package model

import "time"

// Program is a recurring show; broadcasts reference the program they belong to.
type Program struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	Identifier  string    `json:"identifier" gorm:"index"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ImageURL    string    `json:"imageUrl"`
	Hidden      bool      `json:"hidden"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (p *Program) EntityID() int64        { return p.ID }
func (p *Program) EntityType() EntityType { return EntityProgram }
