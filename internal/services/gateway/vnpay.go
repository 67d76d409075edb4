package gateway

import (
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

	"github.com/shopspring/decimal"
)

const (
	vnpVersion   = "2.1.0"
	vnpCommand   = "pay"
	vnpCurrency  = "VND"
	vnpOrderType = "billpayment"
	vnpLocale    = "vn"

	// Формат дат VNPay, время Вьетнама
	vnpDateLayout = "20060102150405"

	ResponseCodeSuccess = "00"
)

var (
	ErrMissingSignature = errors.New("vnpay: missing vnp_SecureHash")
	ErrMalformedReport  = errors.New("vnpay: malformed report")
)

var vnpLocation = time.FixedZone("ICT", 7*60*60)

// Config - учетные данные терминала
type Config struct {
	TmnCode    string
	HashSecret string
	PaymentURL string
	ReturnURL  string
}

// Report - то, что шлюз сообщил о платеже (return redirect или IPN).
type Report struct {
	TxnRef            string
	Amount            int64 // минорные единицы, amount*100
	ResponseCode      string
	TransactionStatus string
	TransactionNo     string
	BankCode          string
	PayDate           string
	Raw               map[string]string
}

// Succeeded - шлюз подтвердил списание.
func (r *Report) Succeeded() bool {
	if r.ResponseCode != ResponseCodeSuccess {
		return false
	}
	return r.TransactionStatus == "" || r.TransactionStatus == ResponseCodeSuccess
}

// AmountMatches - точное сравнение с суммой платежа в основных единицах.
func (r *Report) AmountMatches(amount decimal.Decimal) bool {
	return decimal.NewFromInt(r.Amount).Div(decimal.NewFromInt(100)).Equal(amount)
}

// VNPayService собирает ссылки на оплату и проверяет подписи.
type VNPayService struct {
	cfg Config
}

func NewVNPayService(cfg Config) *VNPayService {
	return &VNPayService{cfg: cfg}
}

// PaymentRequest - данные для ссылки на оплату
type PaymentRequest struct {
	TxnRef    string
	Amount    decimal.Decimal
	OrderInfo string
	ClientIP  string
	CreatedAt time.Time
}

// BuildPaymentURL создаёт ссылку на оплату.
func (s *VNPayService) BuildPaymentURL(req PaymentRequest) (string, error) {
	if s.cfg.TmnCode == "" || s.cfg.HashSecret == "" {
		return "", errors.New("vnpay: terminal is not configured")
	}

	minor := req.Amount.Mul(decimal.NewFromInt(100))
	if !minor.Equal(minor.Truncate(0)) {
		return "", fmt.Errorf("vnpay: amount %s has sub-minor precision", req.Amount)
	}

	ip := req.ClientIP
	if ip == "" {
		ip = "127.0.0.1"
	}

	params := map[string]string{
		"vnp_Version":    vnpVersion,
		"vnp_Command":    vnpCommand,
		"vnp_TmnCode":    s.cfg.TmnCode,
		"vnp_Amount":     minor.String(),
		"vnp_CurrCode":   vnpCurrency,
		"vnp_TxnRef":     req.TxnRef,
		"vnp_OrderInfo":  req.OrderInfo,
		"vnp_OrderType":  vnpOrderType,
		"vnp_Locale":     vnpLocale,
		"vnp_CreateDate": req.CreatedAt.In(vnpLocation).Format(vnpDateLayout),
		"vnp_IpAddr":     ip,
		"vnp_ReturnUrl":  s.cfg.ReturnURL,
	}

	query := canonicalQuery(params)
	return fmt.Sprintf("%s?%s&vnp_SecureHash=%s", s.cfg.PaymentURL, query, s.sign(query)), nil
}

// VerifySignature пересчитывает подпись без vnp_SecureHash / vnp_SecureHashType
// и сравнивает за постоянное время.
func (s *VNPayService) VerifySignature(params map[string]string) error {
	received := params["vnp_SecureHash"]
	if received == "" {
		return ErrMissingSignature
	}

	filtered := make(map[string]string, len(params))
	for k, v := range params {
		if k == "vnp_SecureHash" || k == "vnp_SecureHashType" {
			continue
		}
		if !strings.HasPrefix(k, "vnp_") || v == "" {
			continue
		}
		filtered[k] = v
	}

	expected := s.sign(canonicalQuery(filtered))
	if !hmac.Equal([]byte(strings.ToLower(received)), []byte(expected)) {
		return errors.New("vnpay: signature mismatch")
	}
	return nil
}

// ParseReport достает поля отчета. Подпись должна быть проверена до вызова.
func (s *VNPayService) ParseReport(params map[string]string) (*Report, error) {
	ref := params["vnp_TxnRef"]
	if ref == "" {
		return nil, fmt.Errorf("%w: vnp_TxnRef is empty", ErrMalformedReport)
	}

	amount, err := strconv.ParseInt(params["vnp_Amount"], 10, 64)
	if err != nil || amount < 0 {
		return nil, fmt.Errorf("%w: vnp_Amount %q", ErrMalformedReport, params["vnp_Amount"])
	}

	raw := make(map[string]string, len(params))
	for k, v := range params {
		raw[k] = v
	}

	return &Report{
		TxnRef:            ref,
		Amount:            amount,
		ResponseCode:      params["vnp_ResponseCode"],
		TransactionStatus: params["vnp_TransactionStatus"],
		TransactionNo:     params["vnp_TransactionNo"],
		BankCode:          params["vnp_BankCode"],
		PayDate:           params["vnp_PayDate"],
		Raw:               raw,
	}, nil
}

// SignParams подписывает набор параметров. Нужен для тестов и ручных сверок.
func (s *VNPayService) SignParams(params map[string]string) string {
	return s.sign(canonicalQuery(params))
}

func (s *VNPayService) sign(data string) string {
	mac := hmac.New(sha512.New, []byte(s.cfg.HashSecret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonicalQuery - ключи по алфавиту, значения в query-escape (пробел = '+').
func canonicalQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}

var responseMessages = map[string]string{
	"00": "Transaction successful",
	"07": "Charge succeeded, transaction flagged as suspicious",
	"09": "Card or account is not registered for internet banking",
	"10": "Card or account verification failed more than 3 times",
	"11": "Payment window expired",
	"12": "Card or account is locked",
	"13": "Wrong one-time password",
	"24": "Customer cancelled the transaction",
	"51": "Insufficient balance",
	"65": "Daily transaction limit exceeded",
	"75": "Bank is under maintenance",
	"79": "Wrong payment password too many times",
	"99": "Other error",
}

// ResponseMessage - человекочитаемый текст кода ответа шлюза.
func ResponseMessage(code string) string {
	if msg, ok := responseMessages[code]; ok {
		return msg
	}
	return "Unknown error"
}
