package payment

const (
	payloadExpireAfterSec = 1200
	payloadTag            = "FILLS_AI_PAYMENT"
	flowTypeCheckout      = "PG_CHECKOUT"

	// DefaultPaymentMessage is shown on the checkout page when none is supplied.
	DefaultPaymentMessage = "Payment for FILLS AI Services"
)

// PaymentPayload is the body of a checkout creation request.
type PaymentPayload struct {
	MerchantOrderID string      `json:"merchantOrderId"`
	Amount          int64       `json:"amount"`
	ExpireAfter     int         `json:"expireAfter"`
	MetaInfo        MetaInfo    `json:"metaInfo"`
	PaymentFlow     PaymentFlow `json:"paymentFlow"`
}

// MetaInfo carries merchant-defined fields echoed back by the gateway.
type MetaInfo struct {
	UDF1 string `json:"udf1"`
	UDF2 string `json:"udf2"`
}

// PaymentFlow selects the hosted checkout flow.
type PaymentFlow struct {
	Type         string       `json:"type"`
	Message      string       `json:"message"`
	MerchantURLs MerchantURLs `json:"merchantUrls"`
}

// MerchantURLs are where the gateway sends the customer and the server callback.
type MerchantURLs struct {
	RedirectURL string `json:"redirectUrl"`
	CallbackURL string `json:"callbackUrl"`
}

// PayloadParams are the inputs to BuildPayload. Amount is already in paise.
type PayloadParams struct {
	MerchantOrderID string
	Amount          int64
	RedirectURL     string
	CallbackURL     string
	Message         string
}

// BuildPayload assembles the checkout request body.
func BuildPayload(p PayloadParams) PaymentPayload {
	message := p.Message
	if message == "" {
		message = DefaultPaymentMessage
	}
	callback := p.CallbackURL
	if callback == "" {
		callback = p.RedirectURL
	}
	return PaymentPayload{
		MerchantOrderID: p.MerchantOrderID,
		Amount:          p.Amount,
		ExpireAfter:     payloadExpireAfterSec,
		MetaInfo: MetaInfo{
			UDF1: payloadTag,
			UDF2: p.MerchantOrderID,
		},
		PaymentFlow: PaymentFlow{
			Type:    flowTypeCheckout,
			Message: message,
			MerchantURLs: MerchantURLs{
				RedirectURL: p.RedirectURL,
				CallbackURL: callback,
			},
		},
	}
}
