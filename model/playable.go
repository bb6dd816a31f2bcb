package model

import "fmt"

// PlayableKind discriminates what a Playable wraps.
type PlayableKind int

const (
	PlayableBroadcast PlayableKind = iota
	PlayableChannel
)

// Playable is a unified reference to something the player can play:
// a Broadcast (on demand) or a Channel (live). Immutable; a live-updating
// wrapper re-derives a fresh Playable when the underlying entity changes.
type Playable struct {
	Kind      PlayableKind
	Broadcast *Broadcast
	Channel   *Channel
}

// FromBroadcast wraps a broadcast as a Playable.
func FromBroadcast(b *Broadcast) Playable {
	return Playable{Kind: PlayableBroadcast, Broadcast: b}
}

// FromChannel wraps a channel as a Playable.
func FromChannel(c *Channel) Playable {
	return Playable{Kind: PlayableChannel, Channel: c}
}

// Title of the wrapped entity.
func (p Playable) Title() string {
	switch p.Kind {
	case PlayableChannel:
		return p.Channel.Name
	default:
		return p.Broadcast.Title
	}
}

// Subtitle: program name for a broadcast, currently airing title for a channel.
func (p Playable) Subtitle() string {
	switch p.Kind {
	case PlayableChannel:
		if p.Channel.CurrentBroadcast != nil {
			return p.Channel.CurrentBroadcast.Title
		}
		return ""
	default:
		if p.Broadcast.Program != nil {
			return p.Broadcast.Program.Name
		}
		return ""
	}
}

// ArtworkURL of the wrapped entity.
func (p Playable) ArtworkURL() string {
	switch p.Kind {
	case PlayableChannel:
		return p.Channel.ImageURL
	default:
		return p.Broadcast.ImageURL
	}
}

// MediaID is a stable identity for the player's media item bookkeeping.
func (p Playable) MediaID() string {
	switch p.Kind {
	case PlayableChannel:
		return fmt.Sprintf("channel:%d", p.Channel.ID)
	default:
		return fmt.Sprintf("broadcast:%d", p.Broadcast.ID)
	}
}

// EntityRef returns the id and type of the wrapped entity.
func (p Playable) EntityRef() (int64, EntityType) {
	switch p.Kind {
	case PlayableChannel:
		return p.Channel.ID, EntityChannel
	default:
		return p.Broadcast.ID, EntityBroadcast
	}
}
