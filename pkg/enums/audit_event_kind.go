package enums

import "fmt"

// AuditEventKind names the operation an audit row records.
type AuditEventKind string

const (
	AuditOrderCreateStart   AuditEventKind = "order.create.start"
	AuditOrderCreateSuccess AuditEventKind = "order.create.success"
	AuditOrderCreateFail    AuditEventKind = "order.create.fail"
	AuditOrderShip          AuditEventKind = "order.ship"
	AuditOrderDeliver       AuditEventKind = "order.deliver"
	AuditOrderCancel        AuditEventKind = "order.cancel"
	AuditPaymentSettle      AuditEventKind = "payment.settle"
	AuditOfferActivate      AuditEventKind = "offer.activate"
	AuditOfferDeactivate    AuditEventKind = "offer.deactivate"
	AuditOfferMarkSold      AuditEventKind = "offer.mark_sold"
	AuditOfferModerate      AuditEventKind = "offer.moderate"
	AuditOfferUnmoderate    AuditEventKind = "offer.unmoderate"
	AuditUserBlock          AuditEventKind = "user.block"
	AuditUserUnblock        AuditEventKind = "user.unblock"
	AuditUserRegister       AuditEventKind = "user.register"
	AuditUserLogin          AuditEventKind = "user.login"
)

var validAuditEventKinds = []AuditEventKind{
	AuditOrderCreateStart,
	AuditOrderCreateSuccess,
	AuditOrderCreateFail,
	AuditOrderShip,
	AuditOrderDeliver,
	AuditOrderCancel,
	AuditPaymentSettle,
	AuditOfferActivate,
	AuditOfferDeactivate,
	AuditOfferMarkSold,
	AuditOfferModerate,
	AuditOfferUnmoderate,
	AuditUserBlock,
	AuditUserUnblock,
	AuditUserRegister,
	AuditUserLogin,
}

// String implements fmt.Stringer.
func (k AuditEventKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known AuditEventKind.
func (k AuditEventKind) IsValid() bool {
	for _, candidate := range validAuditEventKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseAuditEventKind converts raw input into an AuditEventKind.
func ParseAuditEventKind(value string) (AuditEventKind, error) {
	for _, candidate := range validAuditEventKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid audit event kind %q", value)
}
