package services

import domain "github.com/hanko-field/orderflow/internal/domain"

// ShouldNotify decides whether a status change is announced. Each status consults the
// type-specific preference, then the global per-status preference, then a built-in default.
func ShouldNotify(prefs NotificationPreferences, status OrderStatus, orderType OrderType) bool {
	if !prefs.Enabled {
		return false
	}

	switch status {
	case domain.OrderStatusConfirmed, domain.OrderStatusPreparing:
		return resolvePreference(prefs, status, orderType, false)
	case domain.OrderStatusReady, domain.OrderStatusPickedUp:
		if !orderType.IsCounterService() {
			return false
		}
		return resolvePreference(prefs, status, orderType, true)
	case domain.OrderStatusOutForDelivery:
		if orderType != domain.OrderTypeDelivery {
			return false
		}
		return resolvePreference(prefs, status, orderType, true)
	case domain.OrderStatusDelivered:
		if !orderType.Valid() {
			return false
		}
		return resolvePreference(prefs, status, orderType, true)
	case domain.OrderStatusCancelled:
		if value, ok := prefs.GlobalSetting(status); ok {
			return value
		}
		return true
	default:
		return false
	}
}

func resolvePreference(prefs NotificationPreferences, status OrderStatus, orderType OrderType, fallback bool) bool {
	if value, ok := prefs.TypeSetting(status, orderType); ok {
		return value
	}
	if value, ok := prefs.GlobalSetting(status); ok {
		return value
	}
	return fallback
}
