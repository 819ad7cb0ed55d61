package session

import (
	"context"
	"fmt"
	"strings"
)

// EventType names a playback signal emitted by the player.
type EventType string

const (
	EventPlay           EventType = "play"
	EventTimeUpdate     EventType = "timeupdate"
	EventSeeking        EventType = "seeking"
	EventPause          EventType = "pause"
	EventEnded          EventType = "ended"
	EventDurationChange EventType = "durationchange"
	EventLoadedMetadata EventType = "loadedmetadata"
)

// Event is one playback signal. Time is the player's current time in
// seconds; Duration is only read by duration events.
type Event struct {
	Type     EventType `json:"type"`
	Time     float64   `json:"time"`
	Duration float64   `json:"duration,omitempty"`
}

// ParseEventType normalizes s and rejects unknown event names.
func ParseEventType(s string) (EventType, error) {
	t := EventType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case EventPlay, EventTimeUpdate, EventSeeking, EventPause, EventEnded, EventDurationChange, EventLoadedMetadata:
		return t, nil
	}
	return "", fmt.Errorf("unknown event type %q", s)
}

// HandleEvent routes a playback event to the matching transition.
// Time updates only extend the pending interval while the player is playing.
func (c *Controller) HandleEvent(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventPlay:
		c.setPlaying(true)
		c.Start(ev.Time)
	case EventTimeUpdate:
		if c.isPlaying() {
			c.Extend(ev.Time)
		}
	case EventSeeking:
		c.Seek(ctx, ev.Time)
	case EventPause, EventEnded:
		c.setPlaying(false)
		c.Stop(ctx)
	case EventDurationChange, EventLoadedMetadata:
		c.SetDuration(ev.Duration)
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	return nil
}

func (c *Controller) setPlaying(v bool) {
	c.mu.Lock()
	if !c.closed {
		c.playing = v
	}
	c.mu.Unlock()
}

func (c *Controller) isPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}
