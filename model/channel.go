package model

import "time"

// Channel is a live station. The currently airing broadcast is a reference
// resolved by id; the referenced row may not have been synced yet.
type Channel struct {
	ID         int64  `json:"id" gorm:"primaryKey"`
	Identifier string `json:"identifier" gorm:"index"`
	Name       string `json:"name"`
	ImageURL   string `json:"imageUrl"`
	Live       bool   `json:"live"`
	Playable   bool   `json:"playable"`

	CurrentBroadcastID *int64     `json:"currentBroadcastId"`
	CurrentBroadcast   *Broadcast `json:"currentBroadcast,omitempty" gorm:"foreignKey:CurrentBroadcastID"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (c *Channel) EntityID() int64        { return c.ID }
func (c *Channel) EntityType() EntityType { return EntityChannel }
