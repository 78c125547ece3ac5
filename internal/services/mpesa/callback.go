package mpesa

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"tikiti/models"
)

type callbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string      `json:"MerchantRequestID"`
			CheckoutRequestID string      `json:"CheckoutRequestID"`
			ResultCode        json.Number `json:"ResultCode"`
			ResultDesc        string      `json:"ResultDesc"`
			CallbackMetadata  *struct {
				Item []struct {
					Name  string `json:"Name"`
					Value any    `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// ParseCallback normalizes a raw STK callback payload. Metadata is only
// trusted on ResultCode 0; anything missing or malformed comes back as an
// error for the handler to log and ACK with a rejection code.
func ParseCallback(raw []byte) (*models.NormalizedResult, error) {
	var env callbackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("ParseCallback: json.Unmarshal: %w", err)
	}

	cb := env.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		return nil, fmt.Errorf("ParseCallback: missing CheckoutRequestID")
	}

	resultCode := cb.ResultCode.String()
	result := &models.NormalizedResult{
		Success:           resultCode == "0",
		ResultCode:        resultCode,
		ResultDesc:        cb.ResultDesc,
		CheckoutRequestID: cb.CheckoutRequestID,
	}

	if !result.Success || cb.CallbackMetadata == nil {
		return result, nil
	}

	for _, item := range cb.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			if v, ok := item.Value.(float64); ok {
				result.Amount = decimal.NewFromFloat(v)
			}
		case "MpesaReceiptNumber":
			if v, ok := item.Value.(string); ok {
				result.ReceiptNumber = v
			}
		case "PhoneNumber":
			result.Phone = metadataString(item.Value)
		case "TransactionDate":
			result.TransactionDate = metadataString(item.Value)
		}
	}

	return result, nil
}

func metadataString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	default:
		return ""
	}
}
