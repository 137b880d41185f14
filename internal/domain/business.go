package domain

import "strings"

// FeatureFlags toggles optional ledgers per business.
type FeatureFlags struct {
	AffiliateProgram   bool
	DeliveryManagement bool
}

// NotificationKey addresses a type-specific notification preference.
type NotificationKey struct {
	Status OrderStatus
	Type   OrderType
}

// NotificationPreferences is the per-business notification matrix. TypeSpecific entries take
// precedence over Global entries; a missing entry falls through to the next layer.
type NotificationPreferences struct {
	Enabled      bool
	AdminEnabled bool
	TypeSpecific map[NotificationKey]bool
	Global       map[OrderStatus]bool
}

// TypeSetting returns the explicit (status, type) preference when configured.
func (p NotificationPreferences) TypeSetting(status OrderStatus, orderType OrderType) (bool, bool) {
	if p.TypeSpecific == nil {
		return false, false
	}
	value, ok := p.TypeSpecific[NotificationKey{Status: status, Type: orderType}]
	return value, ok
}

// GlobalSetting returns the explicit per-status preference when configured.
func (p NotificationPreferences) GlobalSetting(status OrderStatus) (bool, bool) {
	if p.Global == nil {
		return false, false
	}
	value, ok := p.Global[status]
	return value, ok
}

// Clone returns a deep copy safe for concurrent readers.
func (p NotificationPreferences) Clone() NotificationPreferences {
	out := NotificationPreferences{Enabled: p.Enabled, AdminEnabled: p.AdminEnabled}
	if p.TypeSpecific != nil {
		out.TypeSpecific = make(map[NotificationKey]bool, len(p.TypeSpecific))
		for k, v := range p.TypeSpecific {
			out.TypeSpecific[k] = v
		}
	}
	if p.Global != nil {
		out.Global = make(map[OrderStatus]bool, len(p.Global))
		for k, v := range p.Global {
			out.Global[k] = v
		}
	}
	return out
}

// BusinessSettings is the configuration the lifecycle engine reads for the owning business.
type BusinessSettings struct {
	BusinessID    string
	Name          string
	ContactEmail  string
	ContactPhone  string
	AdminEmails   []string
	Locale        string
	Currency      string
	Notifications NotificationPreferences
	Features      FeatureFlags
}

// NotificationPreferencesFromMaps decodes preference maps as stored by the repositories.
// Type-specific keys use the form "STATUS:TYPE"; malformed keys and unknown values are ignored.
func NotificationPreferencesFromMaps(enabled, adminEnabled bool, typeSpecific, global map[string]bool) NotificationPreferences {
	prefs := NotificationPreferences{Enabled: enabled, AdminEnabled: adminEnabled}
	for key, value := range typeSpecific {
		statusPart, typePart, ok := strings.Cut(key, ":")
		if !ok {
			continue
		}
		status, validStatus := ParseOrderStatus(statusPart)
		orderType := OrderType(strings.ToUpper(strings.TrimSpace(typePart)))
		if !validStatus || !orderType.Valid() {
			continue
		}
		if prefs.TypeSpecific == nil {
			prefs.TypeSpecific = make(map[NotificationKey]bool)
		}
		prefs.TypeSpecific[NotificationKey{Status: status, Type: orderType}] = value
	}
	for key, value := range global {
		status, ok := ParseOrderStatus(key)
		if !ok {
			continue
		}
		if prefs.Global == nil {
			prefs.Global = make(map[OrderStatus]bool)
		}
		prefs.Global[status] = value
	}
	return prefs
}
