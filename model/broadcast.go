package model

import "time"

// Broadcast represents a single aired show, on demand once its VOD files exist.
type Broadcast struct {
	ID             int64      `json:"id" gorm:"primaryKey"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	ImageURL       string     `json:"imageUrl"`
	Hidden         bool       `json:"hidden"`
	DurationMillis int64      `json:"durationMillis"`
	AiredAt        *time.Time `json:"airedAt"`

	ProgramID *int64     `json:"programId"`
	Program   *Program   `json:"program,omitempty" gorm:"foreignKey:ProgramID"`
	Hosts     []Employee `json:"hosts,omitempty" gorm:"many2many:broadcast_hosts"`

	// VOD file variants, in descending playback preference.
	DirectFilePath      string `json:"directFilePath"`      // complete single audio file
	HLSFolderSingleFile string `json:"hlsFolderSingleFile"` // segmented VOD built from one file
	HLSFolderSegmented  string `json:"hlsFolderSegmented"`  // event-style segmented folder

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (b *Broadcast) EntityID() int64        { return b.ID }
func (b *Broadcast) EntityType() EntityType { return EntityBroadcast }

// HostIDs returns the ids of the referenced host employees.
// The wire node carries host references as ids; rows may arrive later.
func (b *Broadcast) HostIDs() []int64 {
	ids := make([]int64, 0, len(b.Hosts))
	for _, h := range b.Hosts {
		ids = append(ids, h.ID)
	}
	return ids
}
