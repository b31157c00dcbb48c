package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"custom-device-manager/internal/api"
	"custom-device-manager/internal/model"
)

// Reconciler runs the custom-device operations against one appliance.
// DryRun short-circuits every mutating call before it reaches the network;
// counters still advance so the summary previews the real run.
type Reconciler struct {
	Client  *api.Client
	Prompt  Prompter
	Summary *model.Summary
	DryRun  bool
}

// CreateOrPatch creates every desired device. A create rejected because the
// device already exists is skipped, or patched with the full desired
// payload when patch mode is on and the operator confirms. Any other create
// failure is a hard failure for that device.
func (r *Reconciler) CreateOrPatch(desired model.DeviceMap, patch, confirmAll bool) {
	if len(desired) == 0 {
		slog.Warn("No desired devices to create", "host", r.Client.Host())
		return
	}
	live := r.directory()
	latched := confirmAll

	for _, name := range sortedNames(desired) {
		device := desired[name]

		if r.DryRun {
			slog.Info("Would create custom device",
				"dry_run", true, "host", r.Client.Host(),
				"name", name, "payload", payloadString(device.CreatePayload()))
			r.Summary.Created++
			continue
		}

		resp, err := r.Client.CreateCustomDevice(device.CreatePayload())
		if err != nil {
			slog.Error("Failed to create custom device", "name", name, "error", err)
			r.Summary.Failed++
			continue
		}
		if resp.OK() {
			slog.Info("Custom device created", "name", name, "status", resp.StatusCode)
			r.Summary.Created++
			continue
		}

		var parsed struct {
			Detail string `json:"detail"`
		}
		if err := json.Unmarshal(resp.Body, &parsed); err != nil {
			slog.Error("Could not parse create error response",
				"name", name, "status", resp.StatusCode, "body", string(resp.Body))
			r.Summary.Failed++
			continue
		}
		detail := strings.TrimSpace(parsed.Detail)

		// The appliance reports name collisions only through this exact
		// phrasing. Anything else is a real error, not an invitation to
		// patch.
		expected := fmt.Sprintf("A custom device with the name %s already exists.", name)
		if detail != expected {
			slog.Error("Unexpected error creating custom device",
				"name", name, "status", resp.StatusCode, "detail", detail)
			r.Summary.Failed++
			continue
		}

		if !patch {
			slog.Info("Device already exists and patch mode is off, skipping", "name", name)
			r.Summary.Skipped++
			continue
		}
		if !r.confirm(&latched, fmt.Sprintf("Device %q already exists. Patch it?", name)) {
			slog.Info("Skipping patch", "name", name)
			r.Summary.Skipped++
			continue
		}

		existing, ok := live[name]
		if !ok {
			slog.Error("Could not find existing device id for patch", "name", name)
			r.Summary.Failed++
			continue
		}
		if r.patchDevice(existing.ID, device.PatchPayload(), name) {
			r.Summary.Patched++
		} else {
			r.Summary.Failed++
		}
	}
}

// AppendCriteria adds desired criteria to devices that already exist on the
// appliance, skipping entries that are already present. Existing criteria
// keep their order; additions go to the end.
func (r *Reconciler) AppendCriteria(desired model.DeviceMap, confirmAll bool) {
	if len(desired) == 0 {
		slog.Warn("No desired devices to append criteria to", "host", r.Client.Host())
		return
	}
	live := r.directory()
	if len(live) == 0 {
		slog.Warn("No custom devices found on appliance, nothing to append to",
			"host", r.Client.Host())
		return
	}
	latched := confirmAll

	for _, name := range sortedNames(desired) {
		existing, ok := live[name]
		if !ok {
			slog.Info("Device not found on appliance, skipping", "name", name)
			r.Summary.Skipped++
			continue
		}

		var toAdd []model.Criteria
		for _, nc := range desired[name].Criteria {
			duplicate := false
			for _, ec := range existing.Criteria {
				if Equivalent(ec, nc) {
					duplicate = true
					break
				}
			}
			if duplicate {
				slog.Info("Criteria already present, skipping entry",
					"name", name, "criteria", payloadString(nc))
			} else {
				toAdd = append(toAdd, nc)
			}
		}
		if len(toAdd) == 0 {
			slog.Info("No new criteria to add, skipping", "name", name)
			r.Summary.Skipped++
			continue
		}

		question := fmt.Sprintf("Add %d criteria to %q (%d existing)?",
			len(toAdd), name, len(existing.Criteria))
		if !r.confirm(&latched, question) {
			slog.Info("Skipping append", "name", name)
			r.Summary.Skipped++
			continue
		}

		combined := make([]model.Criteria, 0, len(existing.Criteria)+len(toAdd))
		combined = append(combined, existing.Criteria...)
		combined = append(combined, toAdd...)
		slog.Info("Appending criteria", "name", name,
			"adding", len(toAdd), "existing", len(existing.Criteria), "total", len(combined))

		if r.patchDevice(existing.ID, model.CriteriaPatch{Criteria: combined}, name) {
			r.Summary.Patched++
		} else {
			r.Summary.Failed++
		}
	}
}

// RemoveCriteria removes every existing criteria entry that matches a
// desired removal selector. Selectors are partial: a row naming only an
// ipaddr removes all entries with that address.
func (r *Reconciler) RemoveCriteria(desired model.DeviceMap, confirmAll bool) {
	if len(desired) == 0 {
		slog.Warn("No removal selectors provided", "host", r.Client.Host())
		return
	}
	live := r.directory()
	if len(live) == 0 {
		slog.Warn("No custom devices found on appliance, nothing to remove from",
			"host", r.Client.Host())
		return
	}
	latched := confirmAll

	for _, name := range sortedNames(desired) {
		existing, ok := live[name]
		if !ok {
			slog.Info("Device not found on appliance, skipping", "name", name)
			r.Summary.Skipped++
			continue
		}

		targets := desired[name].Criteria
		var remaining, removed []model.Criteria
		for _, ec := range existing.Criteria {
			matched := false
			for _, target := range targets {
				if Matches(ec, target) {
					matched = true
					break
				}
			}
			if matched {
				removed = append(removed, ec)
			} else {
				remaining = append(remaining, ec)
			}
		}
		if len(removed) == 0 {
			slog.Info("No matching criteria to remove, skipping", "name", name)
			r.Summary.Skipped++
			continue
		}

		question := fmt.Sprintf("Remove %d criteria from %q (%d existing -> %d remaining)?",
			len(removed), name, len(existing.Criteria), len(remaining))
		if !r.confirm(&latched, question) {
			slog.Info("Skipping removal", "name", name)
			r.Summary.Skipped++
			continue
		}

		slog.Info("Removing criteria", "name", name,
			"removing", len(removed), "existing", len(existing.Criteria), "remaining", len(remaining))
		if len(remaining) == 0 {
			slog.Warn("All criteria removed, device will have no filter criteria",
				"name", name)
		}

		if remaining == nil {
			remaining = []model.Criteria{}
		}
		if r.patchDevice(existing.ID, model.CriteriaPatch{Criteria: remaining}, name) {
			r.Summary.Patched++
		} else {
			r.Summary.Failed++
		}
	}
}

// DeleteByName deletes every listed device that exists on the appliance.
// Names without a live device are skipped. Deletion is driven by an
// explicit list, so there is no interactive confirmation.
func (r *Reconciler) DeleteByName(desired model.DeviceMap) {
	if len(desired) == 0 {
		slog.Warn("No devices listed for deletion", "host", r.Client.Host())
		return
	}
	live := r.directory()
	if len(live) == 0 {
		slog.Warn("No custom devices found on appliance, nothing to delete",
			"host", r.Client.Host())
		return
	}

	for _, name := range sortedNames(desired) {
		existing, ok := live[name]
		if !ok {
			slog.Info("No custom device found with name, skipping", "name", name)
			r.Summary.Skipped++
			continue
		}
		if r.deleteDevice(existing.ID, name) {
			r.Summary.Deleted++
		} else {
			r.Summary.Failed++
		}
	}
}

// directory fetches the live devices and indexes them by name, skipping
// entries without a name or id. Fetch failure and an empty appliance look
// the same to callers.
func (r *Reconciler) directory() map[string]*model.Device {
	devices, err := r.Client.CustomDevices(true)
	if err != nil {
		slog.Error("Could not retrieve custom devices",
			"host", r.Client.Host(), "error", err)
		return map[string]*model.Device{}
	}
	byName := make(map[string]*model.Device, len(devices))
	for i := range devices {
		d := &devices[i]
		if d.Name == "" || d.ID == 0 {
			continue
		}
		byName[d.Name] = d
	}
	return byName
}

// confirm resolves one confirmation decision. An "all" answer latches the
// flag for the rest of the current operation only.
func (r *Reconciler) confirm(latched *bool, question string) bool {
	if *latched {
		return true
	}
	answer, err := r.Prompt.Confirm(question)
	if err != nil {
		slog.Error("Confirmation prompt failed, skipping", "error", err)
		return false
	}
	switch answer {
	case AnswerAll:
		*latched = true
		return true
	case AnswerYes:
		return true
	}
	return false
}

func (r *Reconciler) patchDevice(id int64, payload any, name string) bool {
	if r.DryRun {
		slog.Info("Would patch custom device",
			"dry_run", true, "host", r.Client.Host(),
			"name", name, "id", id, "payload", payloadString(payload))
		return true
	}
	resp, err := r.Client.PatchCustomDevice(id, payload)
	if err != nil {
		slog.Error("Failed to patch custom device", "name", name, "id", id, "error", err)
		return false
	}
	if !resp.OK() {
		slog.Error("Patch rejected", "name", name, "id", id,
			"status", resp.StatusCode, "body", string(resp.Body))
		return false
	}
	slog.Info("Custom device patched", "name", name, "id", id, "status", resp.StatusCode)
	return true
}

func (r *Reconciler) deleteDevice(id int64, name string) bool {
	if r.DryRun {
		slog.Info("Would delete custom device",
			"dry_run", true, "host", r.Client.Host(), "name", name, "id", id)
		return true
	}
	resp, err := r.Client.DeleteCustomDevice(id)
	if err != nil {
		slog.Error("Failed to delete custom device", "name", name, "id", id, "error", err)
		return false
	}
	if !resp.OK() {
		slog.Error("Delete rejected", "name", name, "id", id,
			"status", resp.StatusCode, "body", string(resp.Body))
		return false
	}
	slog.Info("Custom device deleted", "name", name, "id", id, "status", resp.StatusCode)
	return true
}

// sortedNames gives map iteration a stable order so prompts and logs are
// deterministic across runs.
func sortedNames(m model.DeviceMap) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func payloadString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
