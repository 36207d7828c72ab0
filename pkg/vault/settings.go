package vault

import (
	"fmt"
	"time"
)

type SnapshotSchedule struct {
	Freq   string `json:"freq"`
	Hour   int    `json:"hour"`
	Minute int    `json:"minute"`
}

type MonthlySchedule struct {
	Day    int `json:"day"`
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

type Privacy struct {
	StoreRawPayloads bool `json:"store_raw_payloads"`
}

type Security struct {
	EncryptionEnabled bool `json:"encryption_enabled"`
	AutoLockMinutes   int  `json:"auto_lock_minutes"`
}

// Settings is config/settings.json, owned by the vault rather than the process.
type Settings struct {
	VaultVersion          string           `json:"vault_version"`
	Timezone              string           `json:"timezone"`
	SnapshotSchedule      SnapshotSchedule `json:"snapshot_schedule"`
	MonthlyRecordSchedule MonthlySchedule  `json:"monthly_record_schedule"`
	Privacy               Privacy          `json:"privacy"`
	Security              Security         `json:"security"`
}

func DefaultSettings() Settings {
	return Settings{
		VaultVersion:          Version,
		Timezone:              "America/Los_Angeles",
		SnapshotSchedule:      SnapshotSchedule{Freq: "daily", Hour: 6, Minute: 0},
		MonthlyRecordSchedule: MonthlySchedule{Day: 1, Hour: 7, Minute: 0},
		Privacy:               Privacy{StoreRawPayloads: true},
		Security:              Security{EncryptionEnabled: false, AutoLockMinutes: 5},
	}
}

// LoadSettings reads config/settings.json, falling back to defaults when absent.
// Missing fields keep their default values.
func (l Layout) LoadSettings() (Settings, error) {
	s := DefaultSettings()
	if _, err := ReadJSON(l.SettingsPath(), &s); err != nil {
		return DefaultSettings(), err
	}
	return s, s.Validate()
}

func (l Layout) SaveSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return WriteJSONAtomic(l.SettingsPath(), s)
}

// Validate checks the schedule ranges and timezone name.
func (s Settings) Validate() error {
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrValidation, s.Timezone, err)
	}
	if s.SnapshotSchedule.Hour < 0 || s.SnapshotSchedule.Hour > 23 || s.SnapshotSchedule.Minute < 0 || s.SnapshotSchedule.Minute > 59 {
		return fmt.Errorf("%w: snapshot_schedule out of range", ErrValidation)
	}
	m := s.MonthlyRecordSchedule
	if m.Day < 1 || m.Day > 28 || m.Hour < 0 || m.Hour > 23 || m.Minute < 0 || m.Minute > 59 {
		return fmt.Errorf("%w: monthly_record_schedule out of range", ErrValidation)
	}
	switch s.SnapshotSchedule.Freq {
	case "daily", "hourly":
	default:
		return fmt.Errorf("%w: snapshot_schedule.freq %q", ErrValidation, s.SnapshotSchedule.Freq)
	}
	return nil
}

// Location returns the configured timezone, UTC if it fails to load.
func (s Settings) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
