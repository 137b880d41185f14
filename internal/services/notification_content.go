package services

import (
	"math"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"golang.org/x/text/number"
	"golang.org/x/text/unicode/norm"

	domain "github.com/hanko-field/orderflow/internal/domain"
)

const (
	msgCustomerStatusSubject = "customer.status.subject"
	msgCustomerStatusBody    = "customer.status.body"
	msgAdminStatusSubject    = "admin.status.subject"
	msgAdminStatusBody       = "admin.status.body"
	msgAdminPaidSubject      = "admin.paid.subject"
	msgAdminPaidBody         = "admin.paid.body"
	msgCustomerFallbackName  = "customer.fallback_name"

	statusLabelPrefix = "status."
)

var supportedNotificationLocales = []language.Tag{language.English, language.Japanese}

var notificationMessages = map[language.Tag]map[string]string{
	language.English: {
		msgCustomerStatusSubject: "Your order %[1]s is %[2]s",
		msgCustomerStatusBody:    "Hi %[1]s, your order %[2]s from %[3]s is now %[4]s. Total: %[5]s.",
		msgAdminStatusSubject:    "[%[1]s] Order %[2]s: %[3]s",
		msgAdminStatusBody:       "Order %[1]s (%[2]s) is now %[3]s. Payment: %[4]s. Total: %[5]s.",
		msgAdminPaidSubject:      "[%[1]s] Order %[2]s completed and paid",
		msgAdminPaidBody:         "Order %[1]s (%[2]s) was handed over and paid in full. Total: %[3]s.",
		msgCustomerFallbackName:  "there",

		statusLabelPrefix + string(domain.OrderStatusPending):        "pending",
		statusLabelPrefix + string(domain.OrderStatusConfirmed):      "confirmed",
		statusLabelPrefix + string(domain.OrderStatusPreparing):      "being prepared",
		statusLabelPrefix + string(domain.OrderStatusReady):          "ready",
		statusLabelPrefix + string(domain.OrderStatusOutForDelivery): "out for delivery",
		statusLabelPrefix + string(domain.OrderStatusDelivered):      "delivered",
		statusLabelPrefix + string(domain.OrderStatusPickedUp):       "picked up",
		statusLabelPrefix + string(domain.OrderStatusCancelled):      "cancelled",
		statusLabelPrefix + string(domain.OrderStatusReturned):       "returned",
		statusLabelPrefix + string(domain.OrderStatusRefunded):       "refunded",
	},
	language.Japanese: {
		msgCustomerStatusSubject: "ご注文 %[1]s は「%[2]s」です",
		msgCustomerStatusBody:    "%[1]s 様、%[3]s でのご注文 %[2]s は「%[4]s」になりました。合計: %[5]s",
		msgAdminStatusSubject:    "[%[1]s] 注文 %[2]s: %[3]s",
		msgAdminStatusBody:       "注文 %[1]s (%[2]s) は「%[3]s」になりました。支払い: %[4]s。合計: %[5]s",
		msgAdminPaidSubject:      "[%[1]s] 注文 %[2]s の受け渡しと支払いが完了しました",
		msgAdminPaidBody:         "注文 %[1]s (%[2]s) は受け渡し済みで支払いも完了しています。合計: %[3]s",
		msgCustomerFallbackName:  "お客",

		statusLabelPrefix + string(domain.OrderStatusPending):        "受付待ち",
		statusLabelPrefix + string(domain.OrderStatusConfirmed):      "受付済み",
		statusLabelPrefix + string(domain.OrderStatusPreparing):      "準備中",
		statusLabelPrefix + string(domain.OrderStatusReady):          "準備完了",
		statusLabelPrefix + string(domain.OrderStatusOutForDelivery): "配達中",
		statusLabelPrefix + string(domain.OrderStatusDelivered):      "配達済み",
		statusLabelPrefix + string(domain.OrderStatusPickedUp):       "受け取り済み",
		statusLabelPrefix + string(domain.OrderStatusCancelled):      "キャンセル",
		statusLabelPrefix + string(domain.OrderStatusReturned):       "返品",
		statusLabelPrefix + string(domain.OrderStatusRefunded):       "返金済み",
	},
}

// NotificationContent is the localized text of one notification.
type NotificationContent struct {
	Locale  string
	Subject string
	Body    string
	Total   string
	Items   []NotificationLineItem
}

// NotificationRenderer renders notification text from a message catalog.
type NotificationRenderer struct {
	catalog  catalog.Catalog
	matcher  language.Matcher
	fallback language.Tag
}

// NewNotificationRenderer builds the catalog. Unknown or unsupported locales render in defaultLocale,
// and English when defaultLocale is itself unsupported.
func NewNotificationRenderer(defaultLocale string) (*NotificationRenderer, error) {
	builder := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, messages := range notificationMessages {
		for key, msg := range messages {
			if err := builder.SetString(tag, key, msg); err != nil {
				return nil, err
			}
		}
	}

	renderer := &NotificationRenderer{
		catalog:  builder,
		matcher:  language.NewMatcher(supportedNotificationLocales),
		fallback: language.English,
	}
	renderer.fallback = renderer.match(defaultLocale, language.English)
	return renderer, nil
}

// Render produces localized content for kind. The first non-empty locale wins.
func (r *NotificationRenderer) Render(kind NotificationKind, order Order, settings BusinessSettings, locales ...string) NotificationContent {
	tag := r.fallback
	for _, locale := range locales {
		if strings.TrimSpace(locale) != "" {
			tag = r.match(locale, r.fallback)
			break
		}
	}
	printer := message.NewPrinter(tag, message.Catalog(r.catalog))

	currencyCode := strings.TrimSpace(order.Currency)
	if currencyCode == "" {
		currencyCode = strings.TrimSpace(settings.Currency)
	}
	total := formatMoney(printer, currencyCode, order.Total)
	status := printer.Sprintf(statusLabelPrefix + string(order.Status))
	businessName := cleanText(settings.Name)

	content := NotificationContent{
		Locale: tag.String(),
		Total:  total,
		Items:  make([]NotificationLineItem, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		content.Items = append(content.Items, NotificationLineItem{
			Name:     cleanText(item.Name),
			Quantity: item.Quantity,
			Amount:   formatMoney(printer, currencyCode, item.UnitPrice*int64(item.Quantity)),
		})
	}

	switch kind {
	case NotificationKindCustomerStatus:
		name := cleanText(order.Customer.Name)
		if name == "" {
			name = printer.Sprintf(msgCustomerFallbackName)
		}
		content.Subject = printer.Sprintf(msgCustomerStatusSubject, order.OrderNumber, status)
		content.Body = printer.Sprintf(msgCustomerStatusBody, name, order.OrderNumber, businessName, status, total)
	case NotificationKindAdminStatus:
		content.Subject = printer.Sprintf(msgAdminStatusSubject, businessName, order.OrderNumber, status)
		content.Body = printer.Sprintf(msgAdminStatusBody, order.OrderNumber, string(order.Type), status, string(order.PaymentStatus), total)
	case NotificationKindAdminPaid:
		content.Subject = printer.Sprintf(msgAdminPaidSubject, businessName, order.OrderNumber)
		content.Body = printer.Sprintf(msgAdminPaidBody, order.OrderNumber, string(order.Type), total)
	}
	return content
}

func (r *NotificationRenderer) match(locale string, fallback language.Tag) language.Tag {
	parsed, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		return fallback
	}
	_, index, confidence := r.matcher.Match(parsed)
	if confidence == language.No {
		return fallback
	}
	return supportedNotificationLocales[index]
}

// formatMoney renders minor units using the currency's standard scale.
func formatMoney(printer *message.Printer, code string, minor int64) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return printer.Sprintf("%d", minor)
	}
	scale, _ := currency.Standard.Rounding(unit)
	amount := float64(minor) / math.Pow10(scale)
	return printer.Sprintf("%v%v", currency.Symbol(unit), number.Decimal(amount, number.Scale(scale)))
}

func cleanText(value string) string {
	return norm.NFC.String(strings.TrimSpace(value))
}
