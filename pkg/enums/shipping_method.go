package enums

type ShippingMethod string

const (
	ShippingMethodStandard ShippingMethod = "standard"
	ShippingMethodExpress  ShippingMethod = "express"
)

func (m ShippingMethod) String() string { return string(m) }

func (m ShippingMethod) IsValid() bool {
	return m == ShippingMethodStandard || m == ShippingMethodExpress
}

func ParseShippingMethod(value string) (ShippingMethod, error) {
	return parse("shipping method", value, []ShippingMethod{ShippingMethodStandard, ShippingMethodExpress})
}
