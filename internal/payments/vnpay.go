package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	vnpayVersion       = "2.1.0"
	vnpayCommandPay    = "pay"
	vnpayCurrency      = "VND"
	vnpayOrderType     = "other"
	vnpayDefaultLocale = "vn"
	vnpayTimeLayout    = "20060102150405"

	// VNPayResponseSuccess is the gateway response code for a captured
	// payment.
	VNPayResponseSuccess = "00"

	defaultVNPayExpiry = 15 * time.Minute
)

// vnpayZone is the gateway's reference timezone. Create and expire
// timestamps are rendered in UTC+7 regardless of server locale.
var vnpayZone = time.FixedZone("GMT+7", 7*60*60)

var (
	// ErrVNPayInvalidSignature indicates the callback hash did not verify.
	ErrVNPayInvalidSignature = errors.New("vnpay: invalid signature")
	// ErrVNPayMissingField indicates a required callback parameter is absent.
	ErrVNPayMissingField = errors.New("vnpay: missing field")
)

// VNPayConfig configures the VNPay provider.
type VNPayConfig struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	ReturnURL  string
	Expiry     time.Duration
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

// VNPayProvider builds signed hosted-payment URLs and verifies return
// callbacks for the VNPay gateway.
type VNPayProvider struct {
	tmnCode   string
	secret    []byte
	payURL    string
	returnURL string
	expiry    time.Duration
	clock     func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewVNPayProvider validates the configuration and constructs the provider.
func NewVNPayProvider(cfg VNPayConfig) (*VNPayProvider, error) {
	tmnCode := strings.TrimSpace(cfg.TmnCode)
	if tmnCode == "" {
		return nil, errors.New("vnpay: tmn code is required")
	}
	secret := strings.TrimSpace(cfg.HashSecret)
	if secret == "" {
		return nil, errors.New("vnpay: hash secret is required")
	}
	payURL := strings.TrimSpace(cfg.PayURL)
	if payURL == "" {
		return nil, errors.New("vnpay: pay url is required")
	}
	returnURL := strings.TrimSpace(cfg.ReturnURL)
	if returnURL == "" {
		return nil, errors.New("vnpay: return url is required")
	}
	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = defaultVNPayExpiry
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &VNPayProvider{
		tmnCode:   tmnCode,
		secret:    []byte(secret),
		payURL:    payURL,
		returnURL: returnURL,
		expiry:    expiry,
		clock:     clock,
		logger:    logger,
	}, nil
}

// CreateRedirect builds the signed payment URL for one order. The
// gateway expects the amount multiplied by 100 and timestamps rendered
// in UTC+7.
func (p *VNPayProvider) CreateRedirect(ctx context.Context, req RedirectRequest) (Redirect, error) {
	if p == nil {
		return Redirect{}, errors.New("vnpay: provider is nil")
	}
	txnRef := strings.TrimSpace(req.TxnRef)
	if txnRef == "" {
		return Redirect{}, errors.New("vnpay: txn ref is required")
	}
	if req.Amount <= 0 {
		return Redirect{}, errors.New("vnpay: amount must be positive")
	}

	now := p.clock().In(vnpayZone)
	expiresAt := now.Add(p.expiry)

	locale := strings.ToLower(strings.TrimSpace(req.Locale))
	if locale == "" {
		locale = vnpayDefaultLocale
	}
	clientIP := strings.TrimSpace(req.ClientIP)
	if clientIP == "" {
		clientIP = "127.0.0.1"
	}

	params := map[string]string{
		"vnp_Version":    vnpayVersion,
		"vnp_Command":    vnpayCommandPay,
		"vnp_TmnCode":    p.tmnCode,
		"vnp_Amount":     strconv.FormatInt(req.Amount*100, 10),
		"vnp_CurrCode":   vnpayCurrency,
		"vnp_TxnRef":     txnRef,
		"vnp_OrderInfo":  "Thanh toan don hang " + req.OrderNumber,
		"vnp_OrderType":  vnpayOrderType,
		"vnp_Locale":     locale,
		"vnp_ReturnUrl":  p.returnURL,
		"vnp_IpAddr":     clientIP,
		"vnp_CreateDate": now.Format(vnpayTimeLayout),
		"vnp_ExpireDate": expiresAt.Format(vnpayTimeLayout),
	}
	if bank := strings.TrimSpace(req.BankCode); bank != "" {
		params["vnp_BankCode"] = bank
	}

	hashData, query := vnpayCanonical(params)
	signature := p.sign(hashData)

	p.logger(ctx, "vnpay_redirect_created", map[string]any{
		"txn_ref":  txnRef,
		"order_id": req.OrderID,
		"amount":   req.Amount,
	})

	return Redirect{
		URL:       fmt.Sprintf("%s?%s&vnp_SecureHash=%s", p.payURL, query, signature),
		Provider:  "vnpay",
		TxnRef:    txnRef,
		ExpiresAt: expiresAt.UTC(),
	}, nil
}

// VNPayCallback is the verified payload of a gateway return.
type VNPayCallback struct {
	TxnRef        string
	ResponseCode  string
	Amount        int64
	BankCode      string
	TransactionNo string
}

// Success reports whether the gateway captured the payment.
func (c VNPayCallback) Success() bool {
	return c.ResponseCode == VNPayResponseSuccess
}

// VerifyCallback checks the callback signature and extracts the
// payload. The received hash is removed from the parameter set, the
// canonical string is rebuilt from the sorted remainder, and the HMAC
// is compared in constant time. No side effect is applied on failure.
func (p *VNPayProvider) VerifyCallback(params url.Values) (VNPayCallback, error) {
	if p == nil {
		return VNPayCallback{}, errors.New("vnpay: provider is nil")
	}
	received := strings.TrimSpace(params.Get("vnp_SecureHash"))
	if received == "" {
		return VNPayCallback{}, fmt.Errorf("%w: vnp_SecureHash", ErrVNPayMissingField)
	}

	fields := make(map[string]string, len(params))
	for key := range params {
		if key == "vnp_SecureHash" || key == "vnp_SecureHashType" {
			continue
		}
		if value := params.Get(key); value != "" {
			fields[key] = value
		}
	}

	hashData, _ := vnpayCanonical(fields)
	expected := p.sign(hashData)
	if !hmac.Equal([]byte(strings.ToLower(received)), []byte(expected)) {
		return VNPayCallback{}, ErrVNPayInvalidSignature
	}

	txnRef := strings.TrimSpace(params.Get("vnp_TxnRef"))
	if txnRef == "" {
		return VNPayCallback{}, fmt.Errorf("%w: vnp_TxnRef", ErrVNPayMissingField)
	}

	var amount int64
	if raw := strings.TrimSpace(params.Get("vnp_Amount")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return VNPayCallback{}, fmt.Errorf("vnpay: malformed amount %q", raw)
		}
		amount = parsed / 100
	}

	return VNPayCallback{
		TxnRef:        txnRef,
		ResponseCode:  strings.TrimSpace(params.Get("vnp_ResponseCode")),
		Amount:        amount,
		BankCode:      strings.TrimSpace(params.Get("vnp_BankCode")),
		TransactionNo: strings.TrimSpace(params.Get("vnp_TransactionNo")),
	}, nil
}

func (p *VNPayProvider) sign(data string) string {
	mac := hmac.New(sha512.New, p.secret)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// vnpayCanonical renders the sorted parameter set twice: once as the
// hash input and once as the redirect query string. Both use the same
// form encoding so the gateway's verification matches ours.
func vnpayCanonical(params map[string]string) (hashData, query string) {
	keys := make([]string, 0, len(params))
	for key, value := range params {
		if value == "" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var hashBuilder, queryBuilder strings.Builder
	for i, key := range keys {
		if i > 0 {
			hashBuilder.WriteByte('&')
			queryBuilder.WriteByte('&')
		}
		encoded := url.QueryEscape(params[key])
		hashBuilder.WriteString(key)
		hashBuilder.WriteByte('=')
		hashBuilder.WriteString(encoded)
		queryBuilder.WriteString(url.QueryEscape(key))
		queryBuilder.WriteByte('=')
		queryBuilder.WriteString(encoded)
	}
	return hashBuilder.String(), queryBuilder.String()
}
