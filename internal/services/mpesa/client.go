package mpesa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"tikiti/models"
)

// connect makes http call to perform authentication with the Daraja backend.
func (c *Client) connect(ctx context.Context) (string, error) {
	_baseURL, _ := url.Parse(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s%s", _baseURL.String(), "/oauth/v1/generate?grant_type=client_credentials"), nil)
	if err != nil {
		return "", fmt.Errorf("connectDaraja: http.NewRequestWithContext: %w", err)
	}
	req.SetBasicAuth(c.consumerKey, c.consumerSecret)

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("connectDaraja: http.Do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", errors.New("connectDaraja: resp.StatusCode: 401 => Unauthorized")
	}
	if resp.StatusCode != http.StatusOK {
		rbody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("connectDaraja: resp.StatusCode: %d, resp.Body: %s", resp.StatusCode, rbody)
	}

	var reply struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return "", fmt.Errorf("connectDaraja: json.Decode: %w", err)
	}

	return fmt.Sprintf("Bearer %s", reply.AccessToken), nil
}

type stkPushReq struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// stkPush submits the signed payment initiation request.
func (c *Client) stkPush(ctx context.Context, phone string, amount int64, reference, description string) (*StkResponse, error) {
	password, timestamp := Password(c.shortCode, c.passkey, time.Now())

	b, err := json.Marshal(&stkPushReq{
		BusinessShortCode: c.shortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            amount,
		PartyA:            phone,
		PartyB:            c.shortCode,
		PhoneNumber:       phone,
		CallBackURL:       c.callbackURL,
		AccountReference:  reference,
		TransactionDesc:   description,
	})
	if err != nil {
		return nil, fmt.Errorf("stkPush: json.Marshal: %w", err)
	}

	_baseURL, _ := url.Parse(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", _baseURL.String(), "/mpesa/stkpush/v1/processrequest"), bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("stkPush: http.NewRequestWithContext: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.getAccessToken())

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stkPush: http.Do: %w", err)
	}
	defer resp.Body.Close()

	// toggle token refresher if unauthorized
	if resp.StatusCode == http.StatusUnauthorized {
		c.toggleTokenRefresher <- struct{}{}
		return nil, errors.New("stkPush: resp.StatusCode: 401 => Unauthorized")
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			RequestID    string `json:"requestId"`
			ErrorCode    string `json:"errorCode"`
			ErrorMessage string `json:"errorMessage"`
		}
		rbody, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(rbody, &apiErr); err == nil && apiErr.ErrorCode != "" {
			return nil, fmt.Errorf("stkPush: errorCode: %s, errorMessage: %s", apiErr.ErrorCode, apiErr.ErrorMessage)
		}
		return nil, fmt.Errorf("stkPush: resp.StatusCode: %d, resp.Body: %s", resp.StatusCode, rbody)
	}

	var reply StkResponse
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("stkPush: json.Decode: %w", err)
	}

	return &reply, nil
}

// stkQuery checks the status of an STK push from the Daraja backend.
func (c *Client) stkQuery(ctx context.Context, checkoutRequestID string) (*models.NormalizedResult, error) {
	password, timestamp := Password(c.shortCode, c.passkey, time.Now())

	b, err := json.Marshal(map[string]string{
		"BusinessShortCode": c.shortCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"CheckoutRequestID": checkoutRequestID,
	})
	if err != nil {
		return nil, fmt.Errorf("stkQuery: json.Marshal: %w", err)
	}

	_baseURL, _ := url.Parse(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", _baseURL.String(), "/mpesa/stkpushquery/v1/query"), bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("stkQuery: http.NewRequestWithContext: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.getAccessToken())

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stkQuery: http.Do: %w", err)
	}
	defer resp.Body.Close()

	// toggle token refresher if unauthorized
	if resp.StatusCode == http.StatusUnauthorized {
		c.toggleTokenRefresher <- struct{}{}
		return nil, errors.New("stkQuery: resp.StatusCode: 401 => Unauthorized")
	}

	if resp.StatusCode != http.StatusOK {
		rbody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("stkQuery: resp.StatusCode: %d, resp.Body: %s", resp.StatusCode, rbody)
	}

	var reply struct {
		ResponseCode        string      `json:"ResponseCode"`
		ResponseDescription string      `json:"ResponseDescription"`
		MerchantRequestID   string      `json:"MerchantRequestID"`
		CheckoutRequestID   string      `json:"CheckoutRequestID"`
		ResultCode          json.Number `json:"ResultCode"`
		ResultDesc          string      `json:"ResultDesc"`
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("stkQuery: json.Decode: %w", err)
	}

	resultCode := reply.ResultCode.String()
	return &models.NormalizedResult{
		Success:           resultCode == "0",
		ResultCode:        resultCode,
		ResultDesc:        reply.ResultDesc,
		CheckoutRequestID: reply.CheckoutRequestID,
	}, nil
}
