package plaid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fiscus/internal/domain/provider"
)

const (
	sandboxBaseURL    = "https://sandbox.plaid.com"
	productionBaseURL = "https://production.plaid.com"

	defaultTimeout = 60 * time.Second

	linkTokenPath    = "/link/token/create"
	exchangePath     = "/item/public_token/exchange"
	accountsPath     = "/accounts/get"
	transactionsPath = "/transactions/get"
	syncPath         = "/transactions/sync"
	holdingsPath     = "/investments/holdings/get"
	liabilitiesPath  = "/liabilities/get"
	incomePath       = "/credit/payroll_income/get"
	recurringPath    = "/transactions/recurring/get"
	identityPath     = "/identity/get"
	itemPath         = "/item/get"
	itemRemovePath   = "/item/remove"
)

// Retry bounds for transient failures. Only transport errors, 429 and 5xx
// responses are retried; provider-level rejections are final.
const maxAttempts = 3

var retryBaseWait = 500 * time.Millisecond

// Client handles communication with the Plaid API. Every endpoint is a POST
// with the client credentials in the JSON body.
type Client struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
	secret     string
}

// NewClient creates a Plaid API client for the given environment.
func NewClient(clientID, secret, environment string) *Client {
	base := sandboxBaseURL
	if environment == provider.EnvProduction {
		base = productionBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL:  base,
		clientID: clientID,
		secret:   secret,
	}
}

// authFields are injected into every request body.
type authFields struct {
	ClientID string `json:"client_id"`
	Secret   string `json:"secret"`
}

func (c *Client) auth() authFields {
	return authFields{ClientID: c.clientID, Secret: c.secret}
}

// APIError is the error envelope Plaid returns on non-200 responses. It also
// appears inline on /item/get when the item is in a failed state.
type APIError struct {
	ErrorType      string `json:"error_type"`
	ErrorCode      string `json:"error_code"`
	ErrorMessage   string `json:"error_message"`
	DisplayMessage string `json:"display_message"`
	RequestID      string `json:"request_id"`
}

// LinkTokenResponse represents the API response for link token creation.
type LinkTokenResponse struct {
	LinkToken  string    `json:"link_token"`
	Expiration time.Time `json:"expiration"`
	RequestID  string    `json:"request_id"`
}

// ExchangeResponse represents the API response for a public token exchange.
type ExchangeResponse struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
	RequestID   string `json:"request_id"`
}

// AccountBalances represents the balance block on an account.
type AccountBalances struct {
	Available       decimal.Decimal `json:"available"`
	Current         decimal.Decimal `json:"current"`
	Limit           decimal.Decimal `json:"limit"`
	ISOCurrencyCode string          `json:"iso_currency_code"`
}

// Account represents an account from the Plaid API.
type Account struct {
	AccountID    string          `json:"account_id"`
	Balances     AccountBalances `json:"balances"`
	Mask         string          `json:"mask"`
	Name         string          `json:"name"`
	OfficialName string          `json:"official_name"`
	Type         string          `json:"type"`
	Subtype      string          `json:"subtype"`
}

// Item represents the connection-level record attached to most responses.
type Item struct {
	ItemID          string    `json:"item_id"`
	InstitutionID   string    `json:"institution_id"`
	InstitutionName string    `json:"institution_name"`
	Error           *APIError `json:"error"`
}

// AccountsResponse represents the API response for account data.
type AccountsResponse struct {
	Accounts  []Account `json:"accounts"`
	Item      Item      `json:"item"`
	RequestID string    `json:"request_id"`
}

// PersonalFinanceCategory is Plaid's hierarchical transaction category.
type PersonalFinanceCategory struct {
	Primary  string `json:"primary"`
	Detailed string `json:"detailed"`
}

// Transaction represents a transaction from the Plaid API. Amounts are
// positive for outflows and negative for inflows.
type Transaction struct {
	TransactionID           string                   `json:"transaction_id"`
	AccountID               string                   `json:"account_id"`
	Amount                  decimal.Decimal          `json:"amount"`
	ISOCurrencyCode         string                   `json:"iso_currency_code"`
	Date                    string                   `json:"date"` // "2006-01-02" format
	Name                    string                   `json:"name"`
	MerchantName            string                   `json:"merchant_name"`
	Pending                 bool                     `json:"pending"`
	Category                []string                 `json:"category"`
	PersonalFinanceCategory *PersonalFinanceCategory `json:"personal_finance_category"`
}

// TransactionsResponse represents the API response for a windowed
// transaction fetch. TotalTransactions drives offset pagination.
type TransactionsResponse struct {
	Accounts          []Account     `json:"accounts"`
	Transactions      []Transaction `json:"transactions"`
	TotalTransactions int           `json:"total_transactions"`
	RequestID         string        `json:"request_id"`
}

// RemovedTransaction identifies a transaction deleted at the provider.
type RemovedTransaction struct {
	TransactionID string `json:"transaction_id"`
}

// SyncResponse represents one page of the cursor-based transaction feed.
type SyncResponse struct {
	Added      []Transaction        `json:"added"`
	Modified   []Transaction        `json:"modified"`
	Removed    []RemovedTransaction `json:"removed"`
	NextCursor string               `json:"next_cursor"`
	HasMore    bool                 `json:"has_more"`
	RequestID  string               `json:"request_id"`
}

// Holding represents an investment position from the Plaid API.
type Holding struct {
	AccountID        string          `json:"account_id"`
	SecurityID       string          `json:"security_id"`
	InstitutionPrice decimal.Decimal `json:"institution_price"`
	InstitutionValue decimal.Decimal `json:"institution_value"`
	CostBasis        decimal.Decimal `json:"cost_basis"`
	Quantity         decimal.Decimal `json:"quantity"`
}

// Security describes the instrument behind a holding.
type Security struct {
	SecurityID   string `json:"security_id"`
	Name         string `json:"name"`
	TickerSymbol string `json:"ticker_symbol"`
}

// HoldingsResponse represents the API response for investment holdings.
type HoldingsResponse struct {
	Accounts   []Account  `json:"accounts"`
	Holdings   []Holding  `json:"holdings"`
	Securities []Security `json:"securities"`
	RequestID  string     `json:"request_id"`
}

// InterestRate is the rate block on a mortgage liability.
type InterestRate struct {
	Percentage decimal.Decimal `json:"percentage"`
	Type       string          `json:"type"`
}

// MortgageLiability represents a mortgage from the Plaid API.
type MortgageLiability struct {
	AccountID          string          `json:"account_id"`
	InterestRate       InterestRate    `json:"interest_rate"`
	NextPaymentDueDate string          `json:"next_payment_due_date"` // "2006-01-02" format
	YTDInterestPaid    decimal.Decimal `json:"ytd_interest_paid"`
}

// StudentLoanLiability represents a student loan from the Plaid API.
type StudentLoanLiability struct {
	AccountID              string          `json:"account_id"`
	InterestRatePercentage decimal.Decimal `json:"interest_rate_percentage"`
	NextPaymentDueDate     string          `json:"next_payment_due_date"`
	YTDInterestPaid        decimal.Decimal `json:"ytd_interest_paid"`
}

// APR is one annual percentage rate on a credit card liability.
type APR struct {
	APRPercentage decimal.Decimal `json:"apr_percentage"`
	APRType       string          `json:"apr_type"`
}

// CreditLiability represents a credit card from the Plaid API.
type CreditLiability struct {
	AccountID          string `json:"account_id"`
	APRs               []APR  `json:"aprs"`
	NextPaymentDueDate string `json:"next_payment_due_date"`
}

// LiabilitySet groups liabilities by class, mirroring the API layout.
type LiabilitySet struct {
	Credit   []CreditLiability      `json:"credit"`
	Mortgage []MortgageLiability    `json:"mortgage"`
	Student  []StudentLoanLiability `json:"student"`
}

// LiabilitiesResponse represents the API response for liability data.
type LiabilitiesResponse struct {
	Accounts    []Account    `json:"accounts"`
	Liabilities LiabilitySet `json:"liabilities"`
	RequestID   string       `json:"request_id"`
}

// Employer identifies the payer on a payroll income record.
type Employer struct {
	Name string `json:"name"`
}

// PayrollIncome represents one verified income stream from the Plaid API.
type PayrollIncome struct {
	Employer              Employer        `json:"employer"`
	PayFrequency          string          `json:"pay_frequency"`
	ProjectedAnnualIncome decimal.Decimal `json:"projected_annual_income"`
	VerificationStatus    string          `json:"verification_status"`
}

// IncomeResponse represents the API response for payroll income data.
type IncomeResponse struct {
	PayrollIncome []PayrollIncome `json:"payroll_income"`
	RequestID     string          `json:"request_id"`
}

// RecurringAmount wraps the amount block on a recurring stream.
type RecurringAmount struct {
	Amount decimal.Decimal `json:"amount"`
}

// RecurringStream represents a detected recurring stream from the Plaid API.
type RecurringStream struct {
	StreamID                string                   `json:"stream_id"`
	AccountID               string                   `json:"account_id"`
	Description             string                   `json:"description"`
	MerchantName            string                   `json:"merchant_name"`
	Frequency               string                   `json:"frequency"`
	AverageAmount           RecurringAmount          `json:"average_amount"`
	LastAmount              RecurringAmount          `json:"last_amount"`
	IsActive                bool                     `json:"is_active"`
	PersonalFinanceCategory *PersonalFinanceCategory `json:"personal_finance_category"`
}

// RecurringResponse represents the API response for recurring streams.
type RecurringResponse struct {
	InflowStreams  []RecurringStream `json:"inflow_streams"`
	OutflowStreams []RecurringStream `json:"outflow_streams"`
	RequestID      string            `json:"request_id"`
}

// IdentityValue is a single typed contact value on an owner record.
type IdentityValue struct {
	Data string `json:"data"`
}

// IdentityAddress is a structured mailing address on an owner record.
type IdentityAddress struct {
	Data struct {
		Street     string `json:"street"`
		City       string `json:"city"`
		Region     string `json:"region"`
		PostalCode string `json:"postal_code"`
	} `json:"data"`
}

// IdentityOwner represents one account owner from the Plaid API.
type IdentityOwner struct {
	Names        []string          `json:"names"`
	Emails       []IdentityValue   `json:"emails"`
	PhoneNumbers []IdentityValue   `json:"phone_numbers"`
	Addresses    []IdentityAddress `json:"addresses"`
}

// IdentityAccount is an account annotated with its owners.
type IdentityAccount struct {
	AccountID string          `json:"account_id"`
	Owners    []IdentityOwner `json:"owners"`
}

// IdentityResponse represents the API response for identity data.
type IdentityResponse struct {
	Accounts  []IdentityAccount `json:"accounts"`
	RequestID string            `json:"request_id"`
}

// ItemResponse represents the API response for item status.
type ItemResponse struct {
	Item      Item   `json:"item"`
	RequestID string `json:"request_id"`
}

type linkTokenUser struct {
	ClientUserID string `json:"client_user_id"`
}

type linkTokenRequest struct {
	authFields
	ClientName   string        `json:"client_name"`
	Language     string        `json:"language"`
	CountryCodes []string      `json:"country_codes"`
	User         linkTokenUser `json:"user"`
	Products     []string      `json:"products"`
}

type publicTokenRequest struct {
	authFields
	PublicToken string `json:"public_token"`
}

type accessTokenRequest struct {
	authFields
	AccessToken string `json:"access_token"`
}

type transactionsOptions struct {
	Count  int `json:"count"`
	Offset int `json:"offset"`
}

type transactionsRequest struct {
	authFields
	AccessToken string              `json:"access_token"`
	StartDate   string              `json:"start_date"`
	EndDate     string              `json:"end_date"`
	Options     transactionsOptions `json:"options"`
}

type syncRequest struct {
	authFields
	AccessToken string `json:"access_token"`
	Cursor      string `json:"cursor,omitempty"`
	Count       int    `json:"count"`
}

// CreateLinkToken starts a link flow for the given user and product set.
func (c *Client) CreateLinkToken(ctx context.Context, userID string, products []string) (*LinkTokenResponse, error) {
	req := linkTokenRequest{
		authFields:   c.auth(),
		ClientName:   "fiscus",
		Language:     "en",
		CountryCodes: []string{"US"},
		User:         linkTokenUser{ClientUserID: userID},
		Products:     products,
	}
	var resp LinkTokenResponse
	if err := c.post(ctx, linkTokenPath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExchangePublicToken trades a link public token for an access token.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (*ExchangeResponse, error) {
	req := publicTokenRequest{authFields: c.auth(), PublicToken: publicToken}
	var resp ExchangeResponse
	if err := c.post(ctx, exchangePath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetAccounts fetches all accounts reachable with the access token.
func (c *Client) GetAccounts(ctx context.Context, accessToken string) (*AccountsResponse, error) {
	req := accessTokenRequest{authFields: c.auth(), AccessToken: accessToken}
	var resp AccountsResponse
	if err := c.post(ctx, accountsPath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetTransactions fetches one page of transactions over a date window.
func (c *Client) GetTransactions(ctx context.Context, accessToken string, startDate, endDate string, count, offset int) (*TransactionsResponse, error) {
	req := transactionsRequest{
		authFields:  c.auth(),
		AccessToken: accessToken,
		StartDate:   startDate,
		EndDate:     endDate,
		Options:     transactionsOptions{Count: count, Offset: offset},
	}
	var resp TransactionsResponse
	if err := c.post(ctx, transactionsPath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SyncTransactions fetches one page of the incremental transaction feed.
// An empty cursor starts the feed from the beginning of history.
func (c *Client) SyncTransactions(ctx context.Context, accessToken, cursor string, count int) (*SyncResponse, error) {
	req := syncRequest{authFields: c.auth(), AccessToken: accessToken, Cursor: cursor, Count: count}
	var resp SyncResponse
	if err := c.post(ctx, syncPath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetHoldings fetches investment holdings and their securities.
func (c *Client) GetHoldings(ctx context.Context, accessToken string) (*HoldingsResponse, error) {
	req := accessTokenRequest{authFields: c.auth(), AccessToken: accessToken}
	var resp HoldingsResponse
	if err := c.post(ctx, holdingsPath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetLiabilities fetches liability detail for loan and credit accounts.
func (c *Client) GetLiabilities(ctx context.Context, accessToken string) (*LiabilitiesResponse, error) {
	req := accessTokenRequest{authFields: c.auth(), AccessToken: accessToken}
	var resp LiabilitiesResponse
	if err := c.post(ctx, liabilitiesPath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetPayrollIncome fetches verified payroll income streams.
func (c *Client) GetPayrollIncome(ctx context.Context, accessToken string) (*IncomeResponse, error) {
	req := accessTokenRequest{authFields: c.auth(), AccessToken: accessToken}
	var resp IncomeResponse
	if err := c.post(ctx, incomePath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetRecurringTransactions fetches detected recurring streams.
func (c *Client) GetRecurringTransactions(ctx context.Context, accessToken string) (*RecurringResponse, error) {
	req := accessTokenRequest{authFields: c.auth(), AccessToken: accessToken}
	var resp RecurringResponse
	if err := c.post(ctx, recurringPath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetIdentity fetches owner identity records for all accounts.
func (c *Client) GetIdentity(ctx context.Context, accessToken string) (*IdentityResponse, error) {
	req := accessTokenRequest{authFields: c.auth(), AccessToken: accessToken}
	var resp IdentityResponse
	if err := c.post(ctx, identityPath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetItem fetches the item record, including its error state if any.
func (c *Client) GetItem(ctx context.Context, accessToken string) (*ItemResponse, error) {
	req := accessTokenRequest{authFields: c.auth(), AccessToken: accessToken}
	var resp ItemResponse
	if err := c.post(ctx, itemPath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RemoveItem revokes the access token at Plaid.
func (c *Client) RemoveItem(ctx context.Context, accessToken string) error {
	req := accessTokenRequest{authFields: c.auth(), AccessToken: accessToken}
	return c.post(ctx, itemRemovePath, req, nil)
}

// post executes one API call with bounded retry. Transport failures, 429 and
// 5xx responses are retried with exponential backoff; everything else is
// returned immediately as a *provider.Error.
func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return provider.Errorf(provider.CodeInvalidInput, "failed to encode %s request: %v", path, err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			wait := retryBaseWait * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return provider.Errorf(provider.CodeTransport, "request to %s cancelled: %v", path, ctx.Err())
			case <-time.After(wait):
			}
		}

		retryable, err := c.doRequest(ctx, path, body, out)
		if err == nil {
			return nil
		}
		if !retryable {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// doRequest executes a single attempt. The bool reports whether the failure
// is worth retrying.
func (c *Client) doRequest(ctx context.Context, path string, body []byte, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return false, provider.Errorf(provider.CodeInvalidInput, "failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true, provider.Errorf(provider.CodeTransport, "request to %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, provider.Errorf(provider.CodeTransport, "failed to read %s response: %v", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return retryable, decodeError(path, resp.StatusCode, respBody)
	}

	if out == nil {
		return false, nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return false, provider.Errorf(provider.CodeProvider, "failed to unmarshal %s response: %v", path, err)
	}
	return false, nil
}

// decodeError converts a non-200 response body into a *provider.Error.
func decodeError(path string, status int, body []byte) error {
	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err != nil || (apiErr.ErrorCode == "" && apiErr.ErrorType == "") {
		return provider.Errorf(provider.CodeProvider, "%s failed with status %d: %s", path, status, strings.TrimSpace(string(body)))
	}

	msg := apiErr.ErrorMessage
	if msg == "" {
		msg = apiErr.DisplayMessage
	}
	if msg == "" {
		msg = fmt.Sprintf("%s failed with status %d", path, status)
	}
	return provider.NewError(mapErrorCode(&apiErr, status), msg)
}

// mapErrorCode translates a Plaid error identifier into a shared adapter
// code where one exists and passes the native code through otherwise.
func mapErrorCode(apiErr *APIError, status int) string {
	switch apiErr.ErrorCode {
	case "ITEM_LOGIN_REQUIRED":
		return provider.CodeLoginRequired
	case "INVALID_ACCESS_TOKEN":
		return provider.CodeInvalidToken
	case "ITEM_LOCKED":
		return provider.CodeItemLocked
	case "ITEM_NOT_FOUND":
		return provider.CodeItemNotFound
	}
	switch apiErr.ErrorType {
	case "RATE_LIMIT_EXCEEDED":
		return provider.CodeRateLimited
	case "INVALID_REQUEST", "INVALID_INPUT":
		return provider.CodeInvalidInput
	}
	if status == http.StatusTooManyRequests {
		return provider.CodeRateLimited
	}
	if apiErr.ErrorCode != "" {
		return apiErr.ErrorCode
	}
	return provider.CodeProvider
}
