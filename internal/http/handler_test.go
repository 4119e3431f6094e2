package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nurpe/marketplace/internal/auth"
	"github.com/nurpe/marketplace/internal/config"
	"github.com/nurpe/marketplace/internal/http/middleware"
	"github.com/nurpe/marketplace/internal/model"
	"github.com/nurpe/marketplace/internal/repository"
	"github.com/nurpe/marketplace/internal/service"
)

const (
	clientID     uint = 1
	contractorID uint = 5
	adminID      uint = 9
)

// fakeStore applies writes directly; every test request runs sequentially.
type fakeStore struct {
	profiles  map[uint]model.Profile
	contracts map[uint]model.Contract
	jobs      map[uint]model.Job

	reportLimits []int
	reportFrom   time.Time
	reportTo     time.Time
}

func newFakeStore() *fakeStore {
	paid := true
	paidAt := time.Date(2020, 8, 15, 19, 11, 26, 0, time.UTC)
	return &fakeStore{
		profiles: map[uint]model.Profile{
			clientID:     {ID: clientID, FirstName: "Harry", LastName: "Potter", Type: model.ProfileTypeClient, Balance: decimal.NewFromInt(1150)},
			contractorID: {ID: contractorID, FirstName: "John", LastName: "Lenon", Profession: "Musician", Type: model.ProfileTypeContractor, Balance: decimal.NewFromInt(64)},
			adminID:      {ID: adminID, FirstName: "Ada", LastName: "Admin", Type: model.ProfileTypeAdmin},
		},
		contracts: map[uint]model.Contract{
			1: {ID: 1, Terms: "bla bla bla", ClientID: clientID, ContractorID: contractorID, Status: model.ContractStatusNew},
		},
		jobs: map[uint]model.Job{
			1: {ID: 1, Description: "work", Price: decimal.NewFromInt(200), ContractID: 1},
			2: {ID: 2, Description: "work", Price: decimal.NewFromInt(201), ContractID: 1, Paid: &paid, PaymentDate: &paidAt},
			3: {ID: 3, Description: "work", Price: decimal.NewFromInt(5000), ContractID: 1},
		},
	}
}

func (s *fakeStore) GetProfile(ctx context.Context, id uint) (*model.Profile, error) {
	profile, ok := s.profiles[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &profile, nil
}

func (s *fakeStore) GetContract(ctx context.Context, id uint) (*model.Contract, error) {
	contract, ok := s.contracts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &contract, nil
}

func (s *fakeStore) ListActiveByContractor(ctx context.Context, contractorID uint) ([]model.Contract, error) {
	var result []model.Contract
	for _, contract := range s.contracts {
		if contract.ContractorID == contractorID && isActive(contract) {
			result = append(result, contract)
		}
	}
	return result, nil
}

func (s *fakeStore) ListUnpaidJobsByContractor(ctx context.Context, contractorID uint) ([]model.Job, error) {
	var result []model.Job
	for _, job := range s.jobs {
		contract := s.contracts[job.ContractID]
		if contract.ContractorID == contractorID && isActive(contract) && !job.IsPaid() {
			result = append(result, job)
		}
	}
	return result, nil
}

func (s *fakeStore) GetPaymentReceipt(ctx context.Context, jobID uint) (*model.PaymentReceipt, error) {
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	contract := s.contracts[job.ContractID]
	return &model.PaymentReceipt{
		Job:        job,
		Contract:   contract,
		Client:     s.profiles[contract.ClientID],
		Contractor: s.profiles[contract.ContractorID],
	}, nil
}

func (s *fakeStore) ProfessionEarnings(ctx context.Context, from, to time.Time, limit int) ([]model.ProfessionEarnings, error) {
	s.reportLimits = append(s.reportLimits, limit)
	s.reportFrom, s.reportTo = from, to
	return []model.ProfessionEarnings{{Profession: "Musician", Earned: decimal.NewFromInt(201)}}, nil
}

func (s *fakeStore) ClientPayments(ctx context.Context, from, to time.Time, limit int) ([]model.ClientPayments, error) {
	s.reportLimits = append(s.reportLimits, limit)
	return []model.ClientPayments{{ID: clientID, FullName: "Harry Potter", Paid: decimal.NewFromInt(201)}}, nil
}

func (s *fakeStore) InTx(ctx context.Context, fn func(tx repository.SettlementTx) error) error {
	return fn(s)
}

func (s *fakeStore) LockJob(ctx context.Context, id uint) (*model.Job, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &job, nil
}

func (s *fakeStore) LockContract(ctx context.Context, id uint) (*model.Contract, error) {
	return s.GetContract(ctx, id)
}

func (s *fakeStore) LockProfiles(ctx context.Context, ids ...uint) (map[uint]model.Profile, error) {
	result := make(map[uint]model.Profile, len(ids))
	for _, id := range ids {
		profile, ok := s.profiles[id]
		if !ok {
			return nil, gorm.ErrRecordNotFound
		}
		result[id] = profile
	}
	return result, nil
}

func (s *fakeStore) DebitBalance(ctx context.Context, profileID uint, amount decimal.Decimal) (bool, error) {
	profile := s.profiles[profileID]
	if profile.Balance.LessThan(amount) {
		return false, nil
	}
	profile.Balance = profile.Balance.Sub(amount)
	s.profiles[profileID] = profile
	return true, nil
}

func (s *fakeStore) CreditBalance(ctx context.Context, profileID uint, amount decimal.Decimal) error {
	profile := s.profiles[profileID]
	profile.Balance = profile.Balance.Add(amount)
	s.profiles[profileID] = profile
	return nil
}

func (s *fakeStore) MarkJobPaid(ctx context.Context, jobID uint, paidAt time.Time) (bool, error) {
	job := s.jobs[jobID]
	if job.IsPaid() {
		return false, nil
	}
	paid := true
	job.Paid = &paid
	job.PaymentDate = &paidAt
	s.jobs[jobID] = job
	return true, nil
}

func (s *fakeStore) StartContract(ctx context.Context, contractID uint) (bool, error) {
	contract := s.contracts[contractID]
	if contract.Status != model.ContractStatusNew {
		return false, nil
	}
	contract.Status = model.ContractStatusInProgress
	s.contracts[contractID] = contract
	return true, nil
}

func (s *fakeStore) OutstandingTotal(ctx context.Context, clientID uint) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, job := range s.jobs {
		contract := s.contracts[job.ContractID]
		if contract.ClientID == clientID && isActive(contract) && !job.IsPaid() {
			total = total.Add(job.Price)
		}
	}
	return total, nil
}

type fileGeneratorStub struct{}

func (fileGeneratorStub) Generate(model.PaymentReceipt) ([]byte, error) {
	return []byte("%PDF-1.3"), nil
}

type workbookGeneratorStub struct{}

func (workbookGeneratorStub) Generate(model.EarningsReport) ([]byte, error) {
	return []byte("PK"), nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) (*gin.Engine, *fakeStore) {
	t.Helper()

	store := newFakeStore()
	cfg := &config.Config{
		Settlement: config.SettlementConfig{DepositCapRatio: decimal.RequireFromString("0.25")},
		Reports:    config.ReportsConfig{DefaultLimit: 2, MaxLimit: 100},
	}
	log := zerolog.Nop()

	handler := NewHandler(
		service.NewContractService(store, fileGeneratorStub{}),
		service.NewSettlementService(store, cfg, log),
		service.NewReportService(store, workbookGeneratorStub{}, cfg),
		log,
	)
	router := NewRouter(handler, Middlewares{
		Auth:            middleware.Auth(store, auth.NewParser(""), true),
		Admin:           middleware.RequireAdmin(),
		SettlementLimit: middleware.NewRateLimiter(0, 0).Handler(),
	}, RouterConfig{Environment: "test"}, log)
	return router, store
}

func doRequest(router *gin.Engine, method, path string, profileID uint, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if profileID != 0 {
		req.Header.Set("profile_id", strconv.FormatUint(uint64(profileID), 10))
	}
	for key, value := range header {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/health", 0, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProtectedRoutesRequireProfile(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/contracts", 0, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(router, http.MethodGet, "/contracts", 42, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetContract(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/contracts/1", contractorID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 5, body["ContractorId"])
	assert.EqualValues(t, 1, body["ClientId"])
	assert.Equal(t, "new", body["status"])

	rec = doRequest(router, http.MethodGet, "/contracts/1", clientID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(router, http.MethodGet, "/contracts/abc", contractorID, "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListRoutesReturnArrays(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/contracts", clientID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = doRequest(router, http.MethodGet, "/jobs/unpaid", contractorID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []model.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	assert.Len(t, jobs, 2)
}

func TestPayJob(t *testing.T) {
	router, store := newTestRouter(t)

	rec := doRequest(router, http.MethodPost, "/jobs/1/pay", clientID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Message string    `json:"message"`
		Job     model.Job `json:"job"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Message)
	assert.True(t, body.Job.IsPaid())
	assert.True(t, store.profiles[clientID].Balance.Equal(decimal.NewFromInt(950)))
	assert.True(t, store.profiles[contractorID].Balance.Equal(decimal.NewFromInt(264)))
	assert.Equal(t, model.ContractStatusInProgress, store.contracts[1].Status)

	rec = doRequest(router, http.MethodPost, "/jobs/1/pay", clientID, "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPayJob_Failures(t *testing.T) {
	router, store := newTestRouter(t)

	rec := doRequest(router, http.MethodPost, "/jobs/3/pay", clientID, "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.True(t, store.profiles[clientID].Balance.Equal(decimal.NewFromInt(1150)))

	rec = doRequest(router, http.MethodPost, "/jobs/99/pay", clientID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(router, http.MethodPost, "/jobs/x/pay", clientID, "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeposit(t *testing.T) {
	router, store := newTestRouter(t)

	rec := doRequest(router, http.MethodPost, "/balances/deposit/1", clientID, `{"amount": 50}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, store.profiles[clientID].Balance.Equal(decimal.NewFromInt(1200)))

	var body struct {
		Message string        `json:"message"`
		Profile model.Profile `json:"profile"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Profile.Balance.Equal(decimal.NewFromInt(1200)))
}

func TestDeposit_HeaderFallback(t *testing.T) {
	router, store := newTestRouter(t)

	// outstanding is 5200, so the cap is 1300
	rec := doRequest(router, http.MethodPost, "/balances/deposit/1", clientID, "", map[string]string{"deposit_value": "1300"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, store.profiles[clientID].Balance.Equal(decimal.NewFromInt(2450)))
}

func TestDeposit_Failures(t *testing.T) {
	router, store := newTestRouter(t)

	cases := []struct {
		name   string
		path   string
		body   string
		header map[string]string
		status int
	}{
		{name: "over cap", path: "/balances/deposit/1", body: `{"amount": "1300.01"}`, status: http.StatusUnprocessableEntity},
		{name: "negative", path: "/balances/deposit/1", body: `{"amount": -1}`, status: http.StatusBadRequest},
		{name: "three decimals", path: "/balances/deposit/1", body: `{"amount": 1.005}`, status: http.StatusBadRequest},
		{name: "malformed body", path: "/balances/deposit/1", body: `{`, status: http.StatusBadRequest},
		{name: "missing amount", path: "/balances/deposit/1", status: http.StatusBadRequest},
		{name: "bad header", path: "/balances/deposit/1", header: map[string]string{"deposit_value": "ten"}, status: http.StatusBadRequest},
		{name: "unknown profile", path: "/balances/deposit/77", body: `{"amount": 1}`, status: http.StatusNotFound},
		{name: "bad user id", path: "/balances/deposit/abc", body: `{"amount": 1}`, status: http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(router, http.MethodPost, tc.path, clientID, tc.body, tc.header)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
	assert.True(t, store.profiles[clientID].Balance.Equal(decimal.NewFromInt(1150)))
}

func TestJobReceipt(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/jobs/2/receipt", clientID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "receipt-job-2.pdf")

	rec = doRequest(router, http.MethodGet, "/jobs/1/receipt", clientID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminReports(t *testing.T) {
	router, store := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/admin/best-profession?start=2020-08-10&end=2020-08-17", adminID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var professions []model.ProfessionEarnings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &professions))
	require.Len(t, professions, 1)
	assert.Equal(t, "Musician", professions[0].Profession)
	assert.True(t, professions[0].Earned.Equal(decimal.NewFromInt(201)))

	rec = doRequest(router, http.MethodGet, "/admin/best-clients?start=2020-08-10&end=2020-08-17&limit=3", adminID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(router, http.MethodGet, "/admin/best-clients?start=2020-08-10&end=2020-08-17", adminID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{1, 3, 2}, store.reportLimits)

	rec = doRequest(router, http.MethodGet, "/admin/earnings/export?start=2020-08-10&end=2020-08-17", adminID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxMediaType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "earnings-20200810-20200817.xlsx")
}

func TestAdminReports_EndBounds(t *testing.T) {
	router, store := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/admin/best-profession?start=2020-08-10&end=2020-08-15", adminID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2020, 8, 16, 0, 0, 0, 0, time.UTC), store.reportTo)

	rec = doRequest(router, http.MethodGet, "/admin/best-profession?start=2020-08-10&end=2020-08-15T00:00:00Z", adminID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2020, 8, 15, 0, 0, 0, 1000, time.UTC), store.reportTo)

	rec = doRequest(router, http.MethodGet, "/admin/best-profession?start=2020-08-10&end=2020-08-15T00:00:00%2B02:00", adminID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, store.reportTo.Equal(time.Date(2020, 8, 14, 22, 0, 0, 1000, time.UTC)))
}

func TestMoneyIsEncodedAsJSONNumbers(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodPost, "/jobs/1/pay", clientID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Job struct {
			Price json.RawMessage `json:"price"`
		} `json:"job"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "200", string(body.Job.Price))

	rec = doRequest(router, http.MethodPost, "/balances/deposit/1", clientID, `{"amount": 12.5}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var deposit struct {
		Profile struct {
			Balance json.RawMessage `json:"balance"`
		} `json:"profile"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &deposit))
	assert.Equal(t, "962.5", string(deposit.Profile.Balance))
}

func TestAdminReports_Failures(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/admin/best-profession?start=2020-08-10&end=2020-08-17", clientID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	for _, query := range []string{
		"start=yesterday&end=2020-08-17",
		"start=2020-08-10",
		"start=2020-08-18&end=2020-08-17",
		"start=2020-08-10&end=2020-08-17&limit=abc",
		"start=2020-08-10&end=2020-08-17&limit=0",
		"start=2020-08-10&end=2020-08-17&limit=101",
	} {
		rec = doRequest(router, http.MethodGet, "/admin/best-clients?"+query, adminID, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

// isActive mirrors the repositories' status <> 'terminated' filter.
func isActive(contract model.Contract) bool {
	return contract.Status != model.ContractStatusTerminated
}
