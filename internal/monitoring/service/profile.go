package service

import (
	"slices"

	"bastion/internal/monitoring/device"
	"bastion/internal/monitoring/models"
	"bastion/pkg/domain"
)

// updateProfile folds ev into the user's behavioral profile.
func (s *Service) updateProfile(ev domain.SecurityEvent) {
	s.profileMu.Lock()
	defer s.profileMu.Unlock()

	p, ok := s.profiles[ev.UserID]
	if !ok {
		p = models.NewProfile(ev.UserID)
		s.profiles[ev.UserID] = p
	}
	p.AccessHours[ev.Timestamp.Hour()]++
	p.IPAddresses = addBounded(p.IPAddresses, ev.IPAddress)
	p.UserAgents = addBounded(p.UserAgents, ev.UserAgent)
	if ev.UserAgent != "" {
		p.Devices = addBounded(p.Devices, device.Family(ev.UserAgent))
	}
	p.Actions[string(ev.Type)+":"+ev.Action]++
	p.Events++
	p.LastUpdate = ev.Timestamp
}

// addBounded appends v when it is new, evicting the oldest entry beyond
// maxProfileEntries.
func addBounded(set []string, v string) []string {
	if v == "" || slices.Contains(set, v) {
		return set
	}
	set = append(set, v)
	if len(set) > maxProfileEntries {
		set = slices.Delete(set, 0, len(set)-maxProfileEntries)
	}
	return set
}
