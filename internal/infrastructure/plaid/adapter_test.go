package plaid

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fiscus/internal/domain/canonical"
	"fiscus/internal/domain/provider"
)

// newTestAdapter points an adapter at a local test server and shrinks the
// retry backoff so failure paths stay fast.
func newTestAdapter(t *testing.T, handler http.Handler) *Adapter {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	prevWait := retryBaseWait
	retryBaseWait = time.Millisecond
	t.Cleanup(func() { retryBaseWait = prevWait })

	client := NewClient("client-id", "secret", provider.EnvSandbox)
	client.baseURL = srv.URL
	return &Adapter{client: client}
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		t.Errorf("failed to write response: %v", err)
	}
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode request body: %v", err)
	}
	return body
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(provider.Config{Provider: "plaid", ClientID: "id", Secret: "s", Environment: "staging"})
	if !errors.Is(err, provider.ErrInvalidEnvironment) {
		t.Errorf("New() error = %v, want %v", err, provider.ErrInvalidEnvironment)
	}

	adapter, err := New(provider.Config{Provider: "plaid", ClientID: "id", Secret: "s", Environment: provider.EnvSandbox})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if adapter.Name() != "plaid" {
		t.Errorf("Name() = %q, want plaid", adapter.Name())
	}
	if !adapter.Capabilities().Has(provider.CapTransactionSync) {
		t.Error("Capabilities() missing transactions_sync")
	}
}

func TestCreateLinkTokenSendsCredentialsAndProducts(t *testing.T) {
	var got map[string]any
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != linkTokenPath {
			t.Errorf("path = %q, want %q", r.URL.Path, linkTokenPath)
		}
		got = decodeBody(t, r)
		writeJSON(t, w, http.StatusOK, `{
			"link_token": "link-sandbox-abc",
			"expiration": "2026-08-21T12:00:00Z",
			"request_id": "req-1"
		}`)
	}))

	token, err := adapter.CreateLinkToken(context.Background(), "user-9", []provider.Capability{
		provider.CapTransactions,
		provider.CapTransactionSync,
		provider.CapIncome,
	})
	if err != nil {
		t.Fatalf("CreateLinkToken() failed: %v", err)
	}
	if token.Token != "link-sandbox-abc" {
		t.Errorf("Token = %q, want link-sandbox-abc", token.Token)
	}

	if got["client_id"] != "client-id" || got["secret"] != "secret" {
		t.Errorf("credentials not sent in body: %v", got)
	}
	user, _ := got["user"].(map[string]any)
	if user["client_user_id"] != "user-9" {
		t.Errorf("client_user_id = %v, want user-9", user["client_user_id"])
	}

	products, _ := got["products"].([]any)
	if len(products) != 2 {
		t.Fatalf("products = %v, want [transactions income_verification]", products)
	}
	if products[0] != "transactions" || products[1] != "income_verification" {
		t.Errorf("products = %v, want [transactions income_verification]", products)
	}
}

func TestExchangePublicToken(t *testing.T) {
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		if body["public_token"] != "public-sandbox-xyz" {
			t.Errorf("public_token = %v, want public-sandbox-xyz", body["public_token"])
		}
		writeJSON(t, w, http.StatusOK, `{
			"access_token": "access-sandbox-123",
			"item_id": "item-42",
			"request_id": "req-2"
		}`)
	}))

	ex, err := adapter.ExchangePublicToken(context.Background(), "public-sandbox-xyz")
	if err != nil {
		t.Fatalf("ExchangePublicToken() failed: %v", err)
	}
	if ex.ConnectionID != "item-42" {
		t.Errorf("ConnectionID = %q, want item-42", ex.ConnectionID)
	}
	if ex.AccessToken != "access-sandbox-123" {
		t.Errorf("AccessToken = %q, want access-sandbox-123", ex.AccessToken)
	}
}

func TestGetAccountsMapsCanonical(t *testing.T) {
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, `{
			"accounts": [
				{
					"account_id": "acc-chk",
					"name": "Everyday Checking",
					"official_name": "Premier Checking Account",
					"mask": "4321",
					"type": "depository",
					"subtype": "checking",
					"balances": {"current": 2500.50, "available": 2400, "iso_currency_code": "USD"}
				},
				{
					"account_id": "acc-401k",
					"name": "Employer 401k",
					"type": "investment",
					"subtype": "401k",
					"balances": {"current": 88000, "available": null, "iso_currency_code": null}
				},
				{
					"account_id": "acc-hel",
					"name": "Mystery Product",
					"type": "paypal",
					"subtype": "",
					"balances": {"current": 10}
				}
			],
			"item": {"item_id": "item-42"},
			"request_id": "req-3"
		}`)
	}))

	accounts, err := adapter.GetAccounts(context.Background(), "token")
	if err != nil {
		t.Fatalf("GetAccounts() failed: %v", err)
	}
	if len(accounts) != 3 {
		t.Fatalf("GetAccounts() returned %d accounts, want 3", len(accounts))
	}

	chk := accounts[0]
	if chk.ID != "acc-chk" || chk.Type != canonical.AccountTypeDepository {
		t.Errorf("checking mapped wrong: %+v", chk)
	}
	if !chk.Balances.Current.Equal(decimal.NewFromFloat(2500.50)) {
		t.Errorf("Balances.Current = %s, want 2500.5", chk.Balances.Current)
	}
	if chk.Balances.Currency != "USD" {
		t.Errorf("Currency = %q, want USD", chk.Balances.Currency)
	}

	ret := accounts[1]
	if ret.Type != canonical.AccountTypeInvestment || ret.Subtype != "401k" {
		t.Errorf("401k mapped wrong: type=%q subtype=%q", ret.Type, ret.Subtype)
	}
	if ret.Balances.Currency != "USD" {
		t.Errorf("null currency should default to USD, got %q", ret.Balances.Currency)
	}

	if accounts[2].Type != canonical.AccountTypeOther {
		t.Errorf("unknown type should map to other, got %q", accounts[2].Type)
	}
}

func TestGetTransactionsPaginatesAndMapsDirections(t *testing.T) {
	var offsets []int
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		opts, _ := body["options"].(map[string]any)
		offset := int(opts["offset"].(float64))
		offsets = append(offsets, offset)

		if offset == 0 {
			writeJSON(t, w, http.StatusOK, `{
				"transactions": [
					{
						"transaction_id": "tx-1",
						"account_id": "acc-chk",
						"amount": 43.27,
						"date": "2026-08-10",
						"name": "WHOLE FOODS MARKET",
						"merchant_name": "Whole Foods",
						"pending": false,
						"iso_currency_code": "USD",
						"personal_finance_category": {"primary": "FOOD_AND_DRINK", "detailed": "FOOD_AND_DRINK_GROCERIES"}
					},
					{
						"transaction_id": "tx-2",
						"account_id": "acc-chk",
						"amount": -2100,
						"date": "2026-08-14",
						"name": "ACME PAYROLL",
						"pending": false,
						"personal_finance_category": {"primary": "INCOME", "detailed": "INCOME_WAGES"}
					}
				],
				"total_transactions": 3,
				"request_id": "req-4"
			}`)
			return
		}
		writeJSON(t, w, http.StatusOK, `{
			"transactions": [
				{
					"transaction_id": "tx-3",
					"account_id": "acc-chk",
					"amount": 500,
					"date": "2026-08-15",
					"name": "TRANSFER TO SAVINGS",
					"pending": true,
					"personal_finance_category": {"primary": "TRANSFER_OUT", "detailed": "TRANSFER_OUT_SAVINGS"}
				}
			],
			"total_transactions": 3,
			"request_id": "req-5"
		}`)
	}))

	start := time.Date(2026, 5, 23, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)
	txs, err := adapter.GetTransactions(context.Background(), "token", provider.TransactionOptions{StartDate: start, EndDate: end})
	if err != nil {
		t.Fatalf("GetTransactions() failed: %v", err)
	}

	if len(offsets) != 2 || offsets[0] != 0 || offsets[1] != 2 {
		t.Errorf("offsets = %v, want [0 2]", offsets)
	}
	if len(txs) != 3 {
		t.Fatalf("GetTransactions() returned %d transactions, want 3", len(txs))
	}

	grocery := txs[0]
	if grocery.Direction != canonical.DirectionDebit {
		t.Errorf("positive amount should map to debit, got %q", grocery.Direction)
	}
	if grocery.Category != "food and drink" {
		t.Errorf("Category = %q, want food and drink", grocery.Category)
	}
	if grocery.Date.Format("2006-01-02") != "2026-08-10" {
		t.Errorf("Date = %s, want 2026-08-10", grocery.Date.Format("2006-01-02"))
	}

	payroll := txs[1]
	if payroll.Direction != canonical.DirectionCredit {
		t.Errorf("negative amount should map to credit, got %q", payroll.Direction)
	}
	if !payroll.Amount.Equal(decimal.NewFromInt(2100)) {
		t.Errorf("Amount = %s, want 2100 (positive)", payroll.Amount)
	}

	transfer := txs[2]
	if transfer.Direction != canonical.DirectionTransfer {
		t.Errorf("TRANSFER_OUT should map to transfer, got %q", transfer.Direction)
	}
	if !transfer.Pending {
		t.Error("Pending flag lost in mapping")
	}
}

func TestSyncTransactionsMapsPage(t *testing.T) {
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		if body["cursor"] != "cursor-7" {
			t.Errorf("cursor = %v, want cursor-7", body["cursor"])
		}
		writeJSON(t, w, http.StatusOK, `{
			"added": [
				{"transaction_id": "tx-a", "account_id": "acc-1", "amount": 12.50, "date": "2026-08-18", "name": "COFFEE"}
			],
			"modified": [
				{"transaction_id": "tx-b", "account_id": "acc-1", "amount": 99, "date": "2026-08-17", "name": "HOTEL"}
			],
			"removed": [{"transaction_id": "tx-c"}],
			"next_cursor": "cursor-8",
			"has_more": true,
			"request_id": "req-6"
		}`)
	}))

	page, err := adapter.SyncTransactions(context.Background(), "token", "cursor-7")
	if err != nil {
		t.Fatalf("SyncTransactions() failed: %v", err)
	}
	if len(page.Added) != 1 || page.Added[0].ID != "tx-a" {
		t.Errorf("Added = %+v, want one tx-a", page.Added)
	}
	if len(page.Modified) != 1 || page.Modified[0].ID != "tx-b" {
		t.Errorf("Modified = %+v, want one tx-b", page.Modified)
	}
	if len(page.Removed) != 1 || page.Removed[0] != "tx-c" {
		t.Errorf("Removed = %v, want [tx-c]", page.Removed)
	}
	if page.NextCursor != "cursor-8" || !page.HasMore {
		t.Errorf("cursor/hasMore = %q/%v, want cursor-8/true", page.NextCursor, page.HasMore)
	}
}

func TestGetInvestmentHoldingsJoinsSecurities(t *testing.T) {
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, `{
			"holdings": [
				{"account_id": "acc-inv", "security_id": "sec-1", "quantity": 10, "cost_basis": 2500, "institution_price": 230, "institution_value": 2300},
				{"account_id": "acc-inv", "security_id": "sec-2", "quantity": 5, "cost_basis": 0, "institution_price": 100, "institution_value": 500}
			],
			"securities": [
				{"security_id": "sec-1", "ticker_symbol": "VTI", "name": "Vanguard Total Stock Market ETF"},
				{"security_id": "sec-2", "ticker_symbol": "BND", "name": "Vanguard Total Bond Market ETF"}
			],
			"request_id": "req-7"
		}`)
	}))

	holdings, err := adapter.GetInvestmentHoldings(context.Background(), "token")
	if err != nil {
		t.Fatalf("GetInvestmentHoldings() failed: %v", err)
	}
	if len(holdings) != 2 {
		t.Fatalf("GetInvestmentHoldings() returned %d holdings, want 2", len(holdings))
	}

	vti := holdings[0]
	if vti.Symbol != "VTI" || vti.Name != "Vanguard Total Stock Market ETF" {
		t.Errorf("security join failed: %+v", vti)
	}
	if !vti.UnrealizedGainLoss.Equal(decimal.NewFromInt(-200)) {
		t.Errorf("UnrealizedGainLoss = %s, want -200", vti.UnrealizedGainLoss)
	}

	// Unknown cost basis must not fabricate a gain.
	if !holdings[1].UnrealizedGainLoss.IsZero() {
		t.Errorf("UnrealizedGainLoss with zero cost basis = %s, want 0", holdings[1].UnrealizedGainLoss)
	}
}

func TestGetLiabilitiesMapsClasses(t *testing.T) {
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, `{
			"accounts": [
				{"account_id": "acc-mort", "type": "loan", "subtype": "mortgage", "balances": {"current": 285000}},
				{"account_id": "acc-stu", "type": "loan", "subtype": "student", "balances": {"current": 32000}},
				{"account_id": "acc-cc", "type": "credit", "subtype": "credit card", "balances": {"current": 1850}}
			],
			"liabilities": {
				"mortgage": [
					{"account_id": "acc-mort", "interest_rate": {"percentage": 6.125, "type": "fixed"}, "ytd_interest_paid": 9000, "next_payment_due_date": "2026-09-01"}
				],
				"student": [
					{"account_id": "acc-stu", "interest_rate_percentage": 5.5, "ytd_interest_paid": 3400, "next_payment_due_date": "2026-09-15"}
				],
				"credit": [
					{"account_id": "acc-cc", "aprs": [{"apr_percentage": 29.99, "apr_type": "cash_apr"}, {"apr_percentage": 24.49, "apr_type": "purchase_apr"}], "next_payment_due_date": "2026-09-05"}
				]
			},
			"request_id": "req-8"
		}`)
	}))

	liabilities, err := adapter.GetLiabilities(context.Background(), "token")
	if err != nil {
		t.Fatalf("GetLiabilities() failed: %v", err)
	}
	if len(liabilities) != 3 {
		t.Fatalf("GetLiabilities() returned %d liabilities, want 3", len(liabilities))
	}

	byType := make(map[string]canonical.Liability)
	for _, l := range liabilities {
		byType[l.Type] = l
	}

	mort := byType[canonical.LiabilityMortgage]
	if !mort.DeductibleInterest {
		t.Error("mortgage should carry deductible interest")
	}
	if !mort.Balance.Equal(decimal.NewFromInt(285000)) {
		t.Errorf("mortgage Balance = %s, want 285000 (joined from accounts)", mort.Balance)
	}
	if !mort.YTDInterestPaid.Equal(decimal.NewFromInt(9000)) {
		t.Errorf("mortgage YTDInterestPaid = %s, want 9000", mort.YTDInterestPaid)
	}
	if mort.NextPaymentDue.Format("2006-01-02") != "2026-09-01" {
		t.Errorf("mortgage NextPaymentDue = %s, want 2026-09-01", mort.NextPaymentDue.Format("2006-01-02"))
	}

	stu := byType[canonical.LiabilityStudentLoan]
	if !stu.DeductibleInterest {
		t.Error("student loan should carry deductible interest")
	}
	if !stu.InterestRate.Equal(decimal.NewFromFloat(5.5)) {
		t.Errorf("student InterestRate = %s, want 5.5", stu.InterestRate)
	}

	cc := byType[canonical.LiabilityCreditCard]
	if cc.DeductibleInterest {
		t.Error("credit card interest is never deductible")
	}
	if !cc.InterestRate.Equal(decimal.NewFromFloat(24.49)) {
		t.Errorf("credit InterestRate = %s, want purchase APR 24.49", cc.InterestRate)
	}
}

func TestGetIncomeVerification(t *testing.T) {
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, `{
			"payroll_income": [
				{"employer": {"name": "Acme Corp"}, "pay_frequency": "BIWEEKLY", "projected_annual_income": 95000, "verification_status": "VERIFIED"},
				{"employer": {"name": "Side Gig LLC"}, "pay_frequency": "MONTHLY", "projected_annual_income": 12000, "verification_status": "UNVERIFIED"}
			],
			"request_id": "req-9"
		}`)
	}))

	sources, err := adapter.GetIncomeVerification(context.Background(), "token")
	if err != nil {
		t.Fatalf("GetIncomeVerification() failed: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("GetIncomeVerification() returned %d sources, want 2", len(sources))
	}

	if sources[0].EmployerName != "Acme Corp" || !sources[0].Verified {
		t.Errorf("first source mapped wrong: %+v", sources[0])
	}
	if sources[0].Frequency != "biweekly" {
		t.Errorf("Frequency = %q, want biweekly", sources[0].Frequency)
	}
	if sources[1].Verified {
		t.Error("UNVERIFIED status should map to Verified=false")
	}
}

func TestGetRecurringTransactions(t *testing.T) {
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, `{
			"inflow_streams": [
				{"stream_id": "rs-1", "account_id": "acc-chk", "description": "ACME PAYROLL", "frequency": "BIWEEKLY", "average_amount": {"amount": -2100}, "last_amount": {"amount": -2100}, "is_active": true, "personal_finance_category": {"primary": "INCOME"}}
			],
			"outflow_streams": [
				{"stream_id": "rs-2", "account_id": "acc-cc", "description": "NETFLIX", "merchant_name": "Netflix", "frequency": "MONTHLY", "average_amount": {"amount": 15.49}, "last_amount": {"amount": 15.49}, "is_active": false}
			],
			"request_id": "req-10"
		}`)
	}))

	streams, err := adapter.GetRecurringTransactions(context.Background(), "token")
	if err != nil {
		t.Fatalf("GetRecurringTransactions() failed: %v", err)
	}
	if len(streams) != 2 {
		t.Fatalf("GetRecurringTransactions() returned %d streams, want 2", len(streams))
	}

	payroll := streams[0]
	if payroll.Direction != "inflow" {
		t.Errorf("Direction = %q, want inflow", payroll.Direction)
	}
	if !payroll.AverageAmount.Equal(decimal.NewFromInt(2100)) {
		t.Errorf("AverageAmount = %s, want 2100 (absolute)", payroll.AverageAmount)
	}
	if payroll.Frequency != "biweekly" {
		t.Errorf("Frequency = %q, want biweekly", payroll.Frequency)
	}

	netflix := streams[1]
	if netflix.Direction != "outflow" || netflix.Active {
		t.Errorf("outflow stream mapped wrong: %+v", netflix)
	}
}

func TestGetIdentityMergesOwners(t *testing.T) {
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, `{
			"accounts": [
				{
					"account_id": "acc-1",
					"owners": [
						{"names": ["Ada Lovelace"], "emails": [{"data": "ada@example.com"}], "phone_numbers": [{"data": "+15550100"}], "addresses": [{"data": {"street": "1 Analytical Way", "city": "Austin", "region": "TX", "postal_code": "78701"}}]}
					]
				},
				{
					"account_id": "acc-2",
					"owners": [
						{"names": ["ADA LOVELACE"], "emails": [{"data": "ada@example.com"}, {"data": "ada@work.example"}]}
					]
				}
			],
			"request_id": "req-11"
		}`)
	}))

	identity, err := adapter.GetIdentity(context.Background(), "token")
	if err != nil {
		t.Fatalf("GetIdentity() failed: %v", err)
	}

	if len(identity.Names) != 1 {
		t.Errorf("Names = %v, want case-insensitive dedupe to 1", identity.Names)
	}
	if len(identity.Emails) != 2 {
		t.Errorf("Emails = %v, want 2", identity.Emails)
	}
	if len(identity.Phones) != 1 || identity.Phones[0] != "+15550100" {
		t.Errorf("Phones = %v, want [+15550100]", identity.Phones)
	}
	if len(identity.Addresses) != 1 || identity.Addresses[0] != "1 Analytical Way Austin TX 78701" {
		t.Errorf("Addresses = %v", identity.Addresses)
	}
}

func TestGetConnectionStatus(t *testing.T) {
	tests := []struct {
		name string
		body string
		want provider.ItemStatus
	}{
		{
			name: "healthy item",
			body: `{"item": {"item_id": "item-42", "error": null}, "request_id": "r"}`,
			want: provider.ItemHealthy,
		},
		{
			name: "login required",
			body: `{"item": {"item_id": "item-42", "error": {"error_type": "ITEM_ERROR", "error_code": "ITEM_LOGIN_REQUIRED"}}, "request_id": "r"}`,
			want: provider.ItemReauthRequired,
		},
		{
			name: "other item error degrades",
			body: `{"item": {"item_id": "item-42", "error": {"error_type": "INSTITUTION_ERROR", "error_code": "INSTITUTION_DOWN"}}, "request_id": "r"}`,
			want: provider.ItemDegraded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, http.StatusOK, tt.body)
			}))

			status, err := adapter.GetConnectionStatus(context.Background(), "token")
			if err != nil {
				t.Fatalf("GetConnectionStatus() failed: %v", err)
			}
			if status != tt.want {
				t.Errorf("GetConnectionStatus() = %q, want %q", status, tt.want)
			}
		})
	}
}

func TestGetConnectionStatusItemNotFound(t *testing.T) {
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusBadRequest, `{"error_type": "ITEM_ERROR", "error_code": "ITEM_NOT_FOUND", "error_message": "item removed"}`)
	}))

	status, err := adapter.GetConnectionStatus(context.Background(), "token")
	if err != nil {
		t.Fatalf("GetConnectionStatus() failed: %v", err)
	}
	if status != provider.ItemDisconnected {
		t.Errorf("GetConnectionStatus() = %q, want %q", status, provider.ItemDisconnected)
	}
}

func TestAuthErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int64
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(t, w, http.StatusBadRequest, `{
			"error_type": "ITEM_ERROR",
			"error_code": "ITEM_LOGIN_REQUIRED",
			"error_message": "the login details of this item have changed",
			"request_id": "req-err"
		}`)
	}))

	_, err := adapter.GetAccounts(context.Background(), "token")
	if err == nil {
		t.Fatal("GetAccounts() expected error, got nil")
	}
	if !provider.IsAuthError(err) {
		t.Errorf("error %v should classify as auth error", err)
	}
	pe, ok := provider.AsError(err)
	if !ok || pe.Code != provider.CodeLoginRequired {
		t.Errorf("error code = %v, want %s", err, provider.CodeLoginRequired)
	}
	if calls.Load() != 1 {
		t.Errorf("provider rejections should not be retried, got %d calls", calls.Load())
	}
}

func TestTransientFailuresAreRetried(t *testing.T) {
	var calls atomic.Int64
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(t, w, http.StatusTooManyRequests, `{"error_type": "RATE_LIMIT_EXCEEDED", "error_code": "TRANSACTIONS_LIMIT", "error_message": "rate limited"}`)
			return
		}
		writeJSON(t, w, http.StatusOK, `{"accounts": [], "item": {"item_id": "i"}, "request_id": "r"}`)
	}))

	if _, err := adapter.GetAccounts(context.Background(), "token"); err != nil {
		t.Fatalf("GetAccounts() failed after retryable 429: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", calls.Load())
	}
}

func TestRetriesAreBounded(t *testing.T) {
	var calls atomic.Int64
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(t, w, http.StatusInternalServerError, `{"error_type": "API_ERROR", "error_code": "INTERNAL_SERVER_ERROR", "error_message": "boom"}`)
	}))

	_, err := adapter.GetAccounts(context.Background(), "token")
	if err == nil {
		t.Fatal("GetAccounts() expected error after exhausting retries")
	}
	if calls.Load() != maxAttempts {
		t.Errorf("calls = %d, want %d", calls.Load(), maxAttempts)
	}

	pe, ok := provider.AsError(err)
	if !ok {
		t.Fatalf("error %v is not a *provider.Error", err)
	}
	if pe.Code != "INTERNAL_SERVER_ERROR" {
		t.Errorf("unmapped native code should pass through, got %q", pe.Code)
	}
}

func TestRemoveConnection(t *testing.T) {
	var path string
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		writeJSON(t, w, http.StatusOK, `{"request_id": "req-12"}`)
	}))

	if err := adapter.RemoveConnection(context.Background(), "token"); err != nil {
		t.Fatalf("RemoveConnection() failed: %v", err)
	}
	if path != itemRemovePath {
		t.Errorf("path = %q, want %q", path, itemRemovePath)
	}
}
