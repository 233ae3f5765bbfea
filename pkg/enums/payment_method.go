package enums

// PaymentMethod is the customer's chosen way to pay.
type PaymentMethod string

const (
	PaymentMethodCard           PaymentMethod = "card"
	PaymentMethodBankTransfer   PaymentMethod = "bank_transfer"
	PaymentMethodEWallet        PaymentMethod = "e_wallet"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

var paymentMethods = []PaymentMethod{
	PaymentMethodCard, PaymentMethodBankTransfer, PaymentMethodEWallet, PaymentMethodCashOnDelivery,
}

func (m PaymentMethod) String() string { return string(m) }

func (m PaymentMethod) IsValid() bool { return member(m, paymentMethods) }

// RequiresGateway reports whether checkout must hand off to the external
// gateway. Cash on delivery is settled by staff instead.
func (m PaymentMethod) RequiresGateway() bool {
	return m.IsValid() && m != PaymentMethodCashOnDelivery
}

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	return parse("payment method", value, paymentMethods)
}
