package types

import "sync"

// EditorState is the snapshot returned for COMMAND_TYPE_GET_EDITOR_STATE
type EditorState struct {
	Source    string `json:"source"`
	Cursor    int    `json:"cursor"` // rune offset into Source
	Filename  string `json:"filename"`
	Available bool   `json:"available"` // false when no editable buffer is focused
}

// Settings holds user preferences consulted on every update.
// Safe for concurrent use: the daemon may change it while the engine reads.
type Settings struct {
	mu         sync.RWMutex
	animations bool
}

// NewSettings creates settings with animations on or off
func NewSettings(animations bool) *Settings {
	return &Settings{animations: animations}
}

// AnimationsEnabled reports whether updates should be animated
func (s *Settings) AnimationsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.animations
}

// SetAnimations turns animated updates on or off
func (s *Settings) SetAnimations(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.animations = enabled
}
