package config

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Settings are the live-adjustable voice parameters. Admin patches apply to
// calls already in progress at their next turn boundary.
type Settings struct {
	BargeInEnabled         bool    `json:"barge_in_enabled"`
	BargeInEnergyThreshold float64 `json:"barge_in_energy_threshold"`
	BargeInConfirmFrames   int     `json:"barge_in_confirm_frames"`
	VADEnergyThreshold     float64 `json:"vad_energy_threshold"`
	VADSpeechConfirmFrames int     `json:"vad_speech_confirm_frames"`
	VADSilenceGapFrames    int     `json:"vad_silence_gap_frames"`
	TTSVoice               string  `json:"tts_voice"`
	TTSEngine              string  `json:"tts_engine"`
}

// DefaultSettings returns the shipped voice parameters.
func DefaultSettings() Settings {
	return Settings{
		BargeInEnabled:         true,
		BargeInEnergyThreshold: 1000,
		BargeInConfirmFrames:   3,
		VADEnergyThreshold:     300,
		VADSpeechConfirmFrames: 1,
		VADSilenceGapFrames:    8,
	}
}

// validate rejects settings no call could operate under.
func (s Settings) validate() error {
	if s.BargeInEnergyThreshold <= 0 {
		return fmt.Errorf("config: barge_in_energy_threshold %v must be positive", s.BargeInEnergyThreshold)
	}
	if s.BargeInConfirmFrames < 1 {
		return fmt.Errorf("config: barge_in_confirm_frames %d must be at least 1", s.BargeInConfirmFrames)
	}
	if s.VADEnergyThreshold <= 0 {
		return fmt.Errorf("config: vad_energy_threshold %v must be positive", s.VADEnergyThreshold)
	}
	if s.VADSpeechConfirmFrames < 1 {
		return fmt.Errorf("config: vad_speech_confirm_frames %d must be at least 1", s.VADSpeechConfirmFrames)
	}
	if s.VADSilenceGapFrames < 1 {
		return fmt.Errorf("config: vad_silence_gap_frames %d must be at least 1", s.VADSilenceGapFrames)
	}
	return nil
}

// Runtime holds the current [Settings] behind a lock so admin handlers can
// patch them while turn controllers read them. Safe for concurrent use.
type Runtime struct {
	mu sync.RWMutex
	s  Settings
}

// NewRuntime seeds the runtime settings from the voice section of cfg.
// Zero-valued fields keep their defaults.
func NewRuntime(cfg *Config) *Runtime {
	s := DefaultSettings()
	v := cfg.Voice
	if v.BargeInEnabled != nil {
		s.BargeInEnabled = *v.BargeInEnabled
	}
	if v.BargeInEnergyThreshold > 0 {
		s.BargeInEnergyThreshold = v.BargeInEnergyThreshold
	}
	if v.BargeInConfirmFrames > 0 {
		s.BargeInConfirmFrames = v.BargeInConfirmFrames
	}
	if v.VADEnergyThreshold > 0 {
		s.VADEnergyThreshold = v.VADEnergyThreshold
	}
	if v.VADSpeechConfirmFrames > 0 {
		s.VADSpeechConfirmFrames = v.VADSpeechConfirmFrames
	}
	if v.VADSilenceGapFrames > 0 {
		s.VADSilenceGapFrames = v.VADSilenceGapFrames
	}
	s.TTSVoice = v.TTSVoice
	s.TTSEngine = v.TTSEngine
	return &Runtime{s: s}
}

// Snapshot returns a copy of the current settings.
func (r *Runtime) Snapshot() Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.s
}

// settingsPatchFields is the closed set of patchable settings keys.
var settingsPatchFields = map[string]bool{
	"barge_in_enabled":          true,
	"barge_in_energy_threshold": true,
	"barge_in_confirm_frames":   true,
	"vad_energy_threshold":      true,
	"vad_speech_confirm_frames": true,
	"vad_silence_gap_frames":    true,
	"tts_voice":                 true,
	"tts_engine":                true,
}

// Patch applies a partial JSON update to the settings. Unknown keys, wrongly
// typed values, and out-of-range results are rejected and the current
// settings stay untouched. Returns the settings in effect after the patch.
func (r *Runtime) Patch(patch map[string]json.RawMessage) (Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range patch {
		if !settingsPatchFields[key] {
			return r.s, fmt.Errorf("config: setting %q is not patchable", key)
		}
	}

	next := r.s
	for key, raw := range patch {
		var err error
		switch key {
		case "barge_in_enabled":
			err = json.Unmarshal(raw, &next.BargeInEnabled)
		case "barge_in_energy_threshold":
			err = json.Unmarshal(raw, &next.BargeInEnergyThreshold)
		case "barge_in_confirm_frames":
			err = json.Unmarshal(raw, &next.BargeInConfirmFrames)
		case "vad_energy_threshold":
			err = json.Unmarshal(raw, &next.VADEnergyThreshold)
		case "vad_speech_confirm_frames":
			err = json.Unmarshal(raw, &next.VADSpeechConfirmFrames)
		case "vad_silence_gap_frames":
			err = json.Unmarshal(raw, &next.VADSilenceGapFrames)
		case "tts_voice":
			err = json.Unmarshal(raw, &next.TTSVoice)
		case "tts_engine":
			err = json.Unmarshal(raw, &next.TTSEngine)
		}
		if err != nil {
			return r.s, fmt.Errorf("config: patch setting %q: %w", key, err)
		}
	}
	if err := next.validate(); err != nil {
		return r.s, err
	}
	r.s = next
	return next, nil
}

// Reseed replaces the settings from a freshly loaded config, preserving the
// defaults-for-zero behaviour of [NewRuntime]. Used by the config watcher.
func (r *Runtime) Reseed(cfg *Config) {
	next := NewRuntime(cfg).Snapshot()
	r.mu.Lock()
	r.s = next
	r.mu.Unlock()
}
