// Package engine reconciles desired custom-device state against live
// appliance state: matching, create-or-patch, criteria append/remove,
// delete, and the audit report.
package engine

import "custom-device-manager/internal/model"

// Matches reports whether existing satisfies the target selector: every
// field set on target must have an equal value on existing. Fields absent
// from target are wildcards, so an empty target matches anything. The
// check is deliberately one-directional; removal selectors rely on it to
// match many concrete records with a partial description.
func Matches(existing, target model.Criteria) bool {
	if target.IPAddr != "" && existing.IPAddr != target.IPAddr {
		return false
	}
	if target.Direction != "" && existing.Direction != target.Direction {
		return false
	}
	if target.PeerIPAddr != "" && existing.PeerIPAddr != target.PeerIPAddr {
		return false
	}
	return intMatches(existing.SrcPortMin, target.SrcPortMin) &&
		intMatches(existing.SrcPortMax, target.SrcPortMax) &&
		intMatches(existing.DstPortMin, target.DstPortMin) &&
		intMatches(existing.DstPortMax, target.DstPortMax) &&
		intMatches(existing.VLANMin, target.VLANMin) &&
		intMatches(existing.VLANMax, target.VLANMax)
}

// Equivalent reports field-set equality of two criteria records. Used for
// deduplication on append, where one-directional matching is not enough: a
// partial record must not be treated as a duplicate of a fuller one.
func Equivalent(a, b model.Criteria) bool {
	return Matches(a, b) && Matches(b, a)
}

func intMatches(existing, target *int) bool {
	if target == nil {
		return true
	}
	return existing != nil && *existing == *target
}
