package model

import (
	"encoding/json"
	"time"
)

// Setting is a remote-managed key/value row; the value is a JSON document.
type Setting struct {
	ID         int64     `json:"id" gorm:"primaryKey"`
	Identifier string    `json:"identifier" gorm:"index"`
	Value      string    `json:"value"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (s *Setting) EntityID() int64        { return s.ID }
func (s *Setting) EntityType() EntityType { return EntitySetting }

// FeaturedEntry is one entry of the featured-items setting value.
type FeaturedEntry struct {
	Type EntityType `json:"type"`
	ID   int64      `json:"id"`
}

// ParseFeatured decodes a featured-items setting value.
func ParseFeatured(value string) ([]FeaturedEntry, error) {
	var entries []FeaturedEntry
	if err := json.Unmarshal([]byte(value), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
