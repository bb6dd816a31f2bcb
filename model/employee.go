package model

import "time"

// Employee is a host or staff member referenced by broadcasts.
type Employee struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ImageURL    string    `json:"imageUrl"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (e *Employee) EntityID() int64        { return e.ID }
func (e *Employee) EntityType() EntityType { return EntityEmployee }
