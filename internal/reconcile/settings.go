package reconcile

import (
	"github.com/shopdeskhq/shopdesk/internal/resource"
)

// SettingsInput carries the merge sources for the per-owner settings
// singleton. Remote is nil when the row is unknown (fetch failed, no
// backend session, or never provisioned).
type SettingsInput struct {
	Remote *resource.SettingsRow
	Local  resource.BookingSettings
	Queue  []resource.Mutation
}

// MergeSettings converges the settings singleton from its three sources.
// Base precedence is remote over local: every field the remote row
// explicitly carries wins, including fields another device cleared to a
// zero value. The exception is a remote row that still looks like
// untouched provisioning defaults while local carries real configuration:
// then local wins, so a freshly provisioned row cannot clobber state the
// owner already shaped. The most recent queued settings update always
// lands on top.
func MergeSettings(input SettingsInput) resource.BookingSettings {
	base := input.Local
	if input.Remote != nil {
		localConfigured := !input.Local.IsZero() && !input.Local.LooksLikeDefaults()
		if input.Remote.Settings.LooksLikeDefaults() && localConfigured {
			base = resource.OverlaySettings(input.Remote.Settings, input.Local)
		} else {
			base = resource.ApplySettingsPatch(input.Local, input.Remote.Fields)
		}
	}

	// Last-write-wins among queued settings updates.
	if patch, ok := newestSettingsPatch(input.Queue); ok {
		base = resource.ApplySettingsPatch(base, patch)
	}
	return base
}

func newestSettingsPatch(queue []resource.Mutation) (resource.Patch, bool) {
	for index := len(queue) - 1; index >= 0; index-- {
		mutation := queue[index]
		if mutation.Table != resource.TableSettings || mutation.Action != resource.ActionUpdate {
			continue
		}
		patch, err := mutation.PatchFromPayload()
		if err != nil {
			continue
		}
		return patch, true
	}
	return nil, false
}
