package resource

import "encoding/json"

// Settings schema defaults as provisioned for a fresh owner row.
const (
	settingsSchemaVersion    = 1
	defaultWorkingHoursStart = "09:00"
	defaultWorkingHoursEnd   = "18:00"
	defaultSlotMinutes       = 30
)

// DayWindow describes the bookable window for a single weekday.
type DayWindow struct {
	Start  string `json:"start,omitempty"`
	End    string `json:"end,omitempty"`
	Closed bool   `json:"closed,omitempty"`
}

// WeekSchedule maps lowercase weekday names to their booking windows.
type WeekSchedule map[string]DayWindow

// Clone returns a copy so overlays never alias the source map.
func (w WeekSchedule) Clone() WeekSchedule {
	if w == nil {
		return nil
	}
	out := make(WeekSchedule, len(w))
	for day, window := range w {
		out[day] = window
	}
	return out
}

// BookingSettings is the per-owner booking configuration singleton. It is
// merged field by field rather than replaced wholesale because it converges
// from three partially overlapping sources: the remote row, the previous
// local object, and any pending settings update still in the queue.
type BookingSettings struct {
	SchemaVersion     int          `json:"schema_version,omitempty"`
	OwnerID           string       `json:"owner_id,omitempty"`
	BusinessName      string       `json:"business_name,omitempty"`
	WorkingHoursStart string       `json:"working_hours_start,omitempty"`
	WorkingHoursEnd   string       `json:"working_hours_end,omitempty"`
	SlotMinutes       int          `json:"slot_minutes,omitempty"`
	BreakTimeEnabled  bool         `json:"break_time_enabled,omitempty"`
	Schedule          WeekSchedule `json:"schedule,omitempty"`
}

// BreaksEnvelope is the storage representation wrapping the per-day
// schedule beside the break-time toggle in a single "breaks" column.
type BreaksEnvelope struct {
	BreakTimeEnabled bool         `json:"break_time_enabled"`
	Schedule         WeekSchedule `json:"schedule,omitempty"`
}

type storedSettings struct {
	SchemaVersion     int             `json:"schema_version,omitempty"`
	OwnerID           string          `json:"owner_id,omitempty"`
	BusinessName      string          `json:"business_name,omitempty"`
	WorkingHoursStart string          `json:"working_hours_start,omitempty"`
	WorkingHoursEnd   string          `json:"working_hours_end,omitempty"`
	SlotMinutes       int             `json:"slot_minutes,omitempty"`
	Breaks            *BreaksEnvelope `json:"breaks,omitempty"`
}

// DefaultBookingSettings returns the settings shape a freshly provisioned
// owner row carries before any configuration.
func DefaultBookingSettings() BookingSettings {
	return BookingSettings{
		SchemaVersion:     settingsSchemaVersion,
		WorkingHoursStart: defaultWorkingHoursStart,
		WorkingHoursEnd:   defaultWorkingHoursEnd,
		SlotMinutes:       defaultSlotMinutes,
	}
}

// IsZero reports whether no settings have ever been materialized.
func (s BookingSettings) IsZero() bool {
	return s.SchemaVersion == 0 &&
		s.OwnerID == "" &&
		s.BusinessName == "" &&
		s.WorkingHoursStart == "" &&
		s.WorkingHoursEnd == "" &&
		s.SlotMinutes == 0 &&
		!s.BreakTimeEnabled &&
		len(s.Schedule) == 0
}

// LooksLikeDefaults reports whether the settings resemble an untouched
// provisioned row: default hours and slot size, no name, no schedule.
func (s BookingSettings) LooksLikeDefaults() bool {
	return s.BusinessName == "" &&
		(s.WorkingHoursStart == "" || s.WorkingHoursStart == defaultWorkingHoursStart) &&
		(s.WorkingHoursEnd == "" || s.WorkingHoursEnd == defaultWorkingHoursEnd) &&
		(s.SlotMinutes == 0 || s.SlotMinutes == defaultSlotMinutes) &&
		!s.BreakTimeEnabled &&
		len(s.Schedule) == 0
}

// OverlaySettings merges top onto base field by field: fields top actually
// carries win, fields it omits fall through to base.
func OverlaySettings(base, top BookingSettings) BookingSettings {
	out := base
	if top.SchemaVersion != 0 {
		out.SchemaVersion = top.SchemaVersion
	}
	if top.OwnerID != "" {
		out.OwnerID = top.OwnerID
	}
	if top.BusinessName != "" {
		out.BusinessName = top.BusinessName
	}
	if top.WorkingHoursStart != "" {
		out.WorkingHoursStart = top.WorkingHoursStart
	}
	if top.WorkingHoursEnd != "" {
		out.WorkingHoursEnd = top.WorkingHoursEnd
	}
	if top.SlotMinutes != 0 {
		out.SlotMinutes = top.SlotMinutes
	}
	if top.BreakTimeEnabled {
		out.BreakTimeEnabled = true
	}
	if len(top.Schedule) > 0 {
		out.Schedule = top.Schedule.Clone()
	}
	return out
}

// ApplySettingsPatch shallow-merges allowlisted fields onto the settings.
// Both the UI-facing schedule fields and the packed storage "breaks"
// envelope are accepted, so in-memory state and replayed queue entries
// land on the same shape. Presence decides: a key the patch carries wins
// even when it holds a zero value.
func ApplySettingsPatch(base BookingSettings, patch Patch) BookingSettings {
	out := base
	if value, ok := patch.Int("schema_version"); ok {
		out.SchemaVersion = value
	}
	if value, ok := patch.String("owner_id"); ok {
		out.OwnerID = value
	}
	if value, ok := patch.String("business_name"); ok {
		out.BusinessName = value
	}
	if value, ok := patch.String("working_hours_start"); ok {
		out.WorkingHoursStart = value
	}
	if value, ok := patch.String("working_hours_end"); ok {
		out.WorkingHoursEnd = value
	}
	if value, ok := patch.Int("slot_minutes"); ok {
		out.SlotMinutes = value
	}
	if value, ok := patch.Bool("break_time_enabled"); ok {
		out.BreakTimeEnabled = value
	}
	if raw, ok := patch["schedule"]; ok {
		if schedule, ok := decodeSchedule(raw); ok {
			out.Schedule = schedule
		}
	}
	if raw, ok := patch["breaks"]; ok {
		if envelope, ok := decodeBreaks(raw); ok {
			out.BreakTimeEnabled = envelope.BreakTimeEnabled
			if len(envelope.Schedule) > 0 {
				out.Schedule = envelope.Schedule
			}
		}
	}
	return out
}

// TranslateSettingsPatch rewrites a UI-facing settings patch into the
// storage shape: the per-day schedule and break toggle are packed into the
// "breaks" envelope the remote column expects.
func TranslateSettingsPatch(patch Patch, current BookingSettings) Patch {
	out := patch.Clone()
	_, hasSchedule := out["schedule"]
	_, hasToggle := out["break_time_enabled"]
	if !hasSchedule && !hasToggle {
		return out
	}

	envelope := BreaksEnvelope{
		BreakTimeEnabled: current.BreakTimeEnabled,
		Schedule:         current.Schedule.Clone(),
	}
	if raw, ok := out["schedule"]; ok {
		if schedule, decoded := decodeSchedule(raw); decoded {
			envelope.Schedule = schedule
		}
		delete(out, "schedule")
	}
	if value, ok := out.Bool("break_time_enabled"); ok {
		envelope.BreakTimeEnabled = value
	}
	delete(out, "break_time_enabled")
	out["breaks"] = envelope
	return out
}

// DecodeSettings parses a raw remote settings row, unwrapping the packed
// breaks envelope.
func DecodeSettings(raw json.RawMessage) (BookingSettings, error) {
	var stored storedSettings
	if err := json.Unmarshal(raw, &stored); err != nil {
		return BookingSettings{}, err
	}
	settings := BookingSettings{
		SchemaVersion:     stored.SchemaVersion,
		OwnerID:           stored.OwnerID,
		BusinessName:      stored.BusinessName,
		WorkingHoursStart: stored.WorkingHoursStart,
		WorkingHoursEnd:   stored.WorkingHoursEnd,
		SlotMinutes:       stored.SlotMinutes,
	}
	if stored.Breaks != nil {
		settings.BreakTimeEnabled = stored.Breaks.BreakTimeEnabled
		settings.Schedule = stored.Breaks.Schedule
	}
	return settings, nil
}

// SettingsRow pairs a decoded remote settings row with the sparse view of
// the fields the row explicitly serialized. The sparse view lets merges
// honor a field the row set to a zero value, which the decoded struct
// alone cannot distinguish from an omitted one.
type SettingsRow struct {
	Settings BookingSettings
	Fields   Patch
}

// DecodeSettingsRow parses a raw remote settings row into both the decoded
// settings and the field-presence view.
func DecodeSettingsRow(raw json.RawMessage) (SettingsRow, error) {
	settings, err := DecodeSettings(raw)
	if err != nil {
		return SettingsRow{}, err
	}
	var fields Patch
	if err := json.Unmarshal(raw, &fields); err != nil {
		return SettingsRow{}, err
	}
	return SettingsRow{Settings: settings, Fields: fields}, nil
}

// EncodeSettings serializes settings into the storage row shape.
func EncodeSettings(s BookingSettings) (json.RawMessage, error) {
	stored := storedSettings{
		SchemaVersion:     s.SchemaVersion,
		OwnerID:           s.OwnerID,
		BusinessName:      s.BusinessName,
		WorkingHoursStart: s.WorkingHoursStart,
		WorkingHoursEnd:   s.WorkingHoursEnd,
		SlotMinutes:       s.SlotMinutes,
	}
	if s.BreakTimeEnabled || len(s.Schedule) > 0 {
		stored.Breaks = &BreaksEnvelope{
			BreakTimeEnabled: s.BreakTimeEnabled,
			Schedule:         s.Schedule.Clone(),
		}
	}
	return json.Marshal(stored)
}

func decodeSchedule(raw any) (WeekSchedule, bool) {
	switch value := raw.(type) {
	case WeekSchedule:
		return value.Clone(), true
	case map[string]DayWindow:
		return WeekSchedule(value).Clone(), true
	default:
		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, false
		}
		var schedule WeekSchedule
		if err := json.Unmarshal(encoded, &schedule); err != nil {
			return nil, false
		}
		return schedule, true
	}
}

func decodeBreaks(raw any) (BreaksEnvelope, bool) {
	switch value := raw.(type) {
	case BreaksEnvelope:
		return value, true
	case *BreaksEnvelope:
		if value == nil {
			return BreaksEnvelope{}, false
		}
		return *value, true
	default:
		encoded, err := json.Marshal(raw)
		if err != nil {
			return BreaksEnvelope{}, false
		}
		var envelope BreaksEnvelope
		if err := json.Unmarshal(encoded, &envelope); err != nil {
			return BreaksEnvelope{}, false
		}
		return envelope, true
	}
}
