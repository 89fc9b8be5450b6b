package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"metacoin-ledger/internal/adapter/http/middleware"
	"metacoin-ledger/internal/core/domain"
	"metacoin-ledger/internal/core/ledger"
	"metacoin-ledger/internal/core/ports"
	"metacoin-ledger/internal/core/ports/mocks"
	"metacoin-ledger/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	alice = domain.DeriveAccountID("alice")
	bob   = domain.DeriveAccountID("bob")
)

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %s", w.Body.String())
	return data
}

func decodeErrorCode(t *testing.T, w *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	code, _ := resp["error_code"].(string)
	msg, _ := resp["message"].(string)
	return code, msg
}

func metaInfo() ports.ContractInfo {
	return ports.ContractInfo{
		Symbol:          "META",
		TotalSupply:     100000,
		GenesisAccount:  alice,
		ReserveAccount:  domain.DeriveAccountID("MetaCoin"),
		ConversionRatio: 2,
		Seq:             3,
	}
}

// --- Contract Handler Tests ---

func TestInfo_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := mocks.NewMockContractService(ctrl)
	h := NewContractHandler(svc)

	svc.EXPECT().Info(gomock.Any()).Return(metaInfo())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/contract", nil)

	h.Info(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "META", data["symbol"])
	assert.Equal(t, float64(100000), data["total_supply"])
	assert.Equal(t, domain.FormatAccountID(alice), data["genesis_account"])
	assert.Equal(t, float64(3), data["seq"])
}

func TestGetBalance_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := mocks.NewMockContractService(ctrl)
	h := NewContractHandler(svc)

	svc.EXPECT().GetBalance(gomock.Any(), alice).Return(domain.Balance(10000))
	svc.EXPECT().Info(gomock.Any()).Return(metaInfo())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Params = gin.Params{{Key: "account", Value: domain.FormatAccountID(alice)}}

	h.GetBalance(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(10000), data["balance"])
	assert.Equal(t, "META", data["unit"])
	assert.Equal(t, domain.FormatAccountID(alice), data["account"])
}

func TestGetBalance_ScriptHashForm(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := mocks.NewMockContractService(ctrl)
	h := NewContractHandler(svc)

	svc.EXPECT().GetBalance(gomock.Any(), bob).Return(domain.Balance(0))
	svc.EXPECT().Info(gomock.Any()).Return(metaInfo())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Params = gin.Params{{Key: "account", Value: "0x" + bob.StringLE()}}

	h.GetBalance(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decodeData(t, w)["balance"])
}

func TestGetBalance_InvalidAccount(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := mocks.NewMockContractService(ctrl)
	h := NewContractHandler(svc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Params = gin.Params{{Key: "account", Value: "0xnothex"}}

	h.GetBalance(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	code, _ := decodeErrorCode(t, w)
	assert.Equal(t, "REQ_002", code)
}

func TestGetBalanceInEth_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := mocks.NewMockContractService(ctrl)
	h := NewContractHandler(svc)

	svc.EXPECT().GetBalanceInSecondaryUnit(gomock.Any(), alice).Return(domain.Balance(20000), nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Params = gin.Params{{Key: "account", Value: domain.FormatAccountID(alice)}}

	h.GetBalanceInEth(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(20000), data["balance"])
	assert.Equal(t, "ETH", data["unit"])
}

func TestGetBalanceInEth_Overflow(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := mocks.NewMockContractService(ctrl)
	h := NewContractHandler(svc)

	svc.EXPECT().GetBalanceInSecondaryUnit(gomock.Any(), alice).
		Return(domain.Balance(0), apperror.ErrArithmeticOverflow(ledger.ErrArithmeticOverflow))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Params = gin.Params{{Key: "account", Value: domain.FormatAccountID(alice)}}

	h.GetBalanceInEth(c)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	code, msg := decodeErrorCode(t, w)
	assert.Equal(t, "LEDGER_002", code)
	assert.Contains(t, msg, "revert")
}

func TestTotalSupply_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := mocks.NewMockContractService(ctrl)
	h := NewContractHandler(svc)

	svc.EXPECT().TotalSupply(gomock.Any()).Return(domain.Balance(100000))
	svc.EXPECT().Info(gomock.Any()).Return(metaInfo())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	h.TotalSupply(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(100000), data["total_supply"])
	assert.Equal(t, "META", data["symbol"])
}

func sendCoinContext(t *testing.T, body string, caller *domain.AccountID) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/send-coin", bytes.NewReader([]byte(body)))
	c.Request.Header.Set("Content-Type", "application/json")
	if caller != nil {
		c.Set(middleware.CtxCaller, *caller)
	}
	return c, w
}

func TestSendCoin_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := mocks.NewMockContractService(ctrl)
	h := NewContractHandler(svc)

	ev := domain.TransferEvent{From: alice, To: bob, Value: 10}
	receipt := domain.NewReceipt(&domain.Posting{Seq: 1, Event: ev}, time.Now())

	svc.EXPECT().SendCoin(gomock.Any(), ports.SendCoinRequest{
		Sender:         alice,
		Recipient:      bob,
		Amount:         10,
		IdempotencyKey: "order-1",
	}).Return(receipt, nil)

	body := `{"recipient":"` + domain.FormatAccountID(bob) + `","amount":10}`
	c, w := sendCoinContext(t, body, &alice)
	c.Request.Header.Set(HeaderIdempotencyKey, "order-1")

	h.SendCoin(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, receipt.TxHash, data["tx_hash"])
	assert.Equal(t, "SUCCESS", data["status"])
	logs := data["logs"].([]interface{})
	require.Len(t, logs, 1)
	entry := logs[0].(map[string]interface{})
	assert.Equal(t, "Transfer", entry["event"])
	args := entry["args"].(map[string]interface{})
	assert.Equal(t, domain.FormatAccountID(alice), args["from"])
	assert.Equal(t, domain.FormatAccountID(bob), args["to"])
	assert.Equal(t, float64(10), args["value"])
}

func TestSendCoin_ZeroAmount(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := mocks.NewMockContractService(ctrl)
	h := NewContractHandler(svc)

	ev := domain.TransferEvent{From: alice, To: bob, Value: 0}
	svc.EXPECT().SendCoin(gomock.Any(), ports.SendCoinRequest{Sender: alice, Recipient: bob, Amount: 0}).
		Return(domain.NewReceipt(&domain.Posting{Seq: 1, Event: ev}, time.Now()), nil)

	c, w := sendCoinContext(t, `{"recipient":"`+domain.FormatAccountID(bob)+`","amount":0}`, &alice)
	h.SendCoin(c)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestSendCoin_MissingCaller(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewContractHandler(mocks.NewMockContractService(ctrl))

	c, w := sendCoinContext(t, `{}`, nil)
	h.SendCoin(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSendCoin_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"empty body", `{}`, "recipient is required"},
		{"bad recipient", `{"recipient":"zzz","amount":1}`, "recipient is not a valid account"},
		{"missing amount", `{"recipient":"` + domain.FormatAccountID(bob) + `"}`, "amount is required"},
		{"negative amount", `{"recipient":"` + domain.FormatAccountID(bob) + `","amount":-1}`, ""},
		{"amount beyond uint64", `{"recipient":"` + domain.FormatAccountID(bob) + `","amount":18446744073709551616}`, ""},
		{"not json", `recipient=bob`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			h := NewContractHandler(mocks.NewMockContractService(ctrl))
			c, w := sendCoinContext(t, tt.body, &alice)
			h.SendCoin(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			code, msg := decodeErrorCode(t, w)
			assert.Equal(t, "REQ_001", code)
			if tt.msg != "" {
				assert.Equal(t, tt.msg, msg)
			}
		})
	}
}

func TestSendCoin_InvalidIdempotencyKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewContractHandler(mocks.NewMockContractService(ctrl))

	c, w := sendCoinContext(t, `{"recipient":"`+domain.FormatAccountID(bob)+`","amount":1}`, &alice)
	c.Request.Header.Set(HeaderIdempotencyKey, "not a key!")
	h.SendCoin(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendCoin_InsufficientFunds(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := mocks.NewMockContractService(ctrl)
	h := NewContractHandler(svc)

	svc.EXPECT().SendCoin(gomock.Any(), gomock.Any()).
		Return(nil, apperror.ErrInsufficientFunds(ledger.ErrInsufficientFunds))

	c, w := sendCoinContext(t, `{"recipient":"`+domain.FormatAccountID(bob)+`","amount":10001}`, &alice)
	h.SendCoin(c)

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	code, msg := decodeErrorCode(t, w)
	assert.Equal(t, "LEDGER_001", code)
	assert.Equal(t, "VM Exception while processing transaction: revert insufficient funds", msg)
}

func TestSendCoin_UnknownError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := mocks.NewMockContractService(ctrl)
	h := NewContractHandler(svc)

	svc.EXPECT().SendCoin(gomock.Any(), gomock.Any()).Return(nil, errors.New("boom"))

	c, w := sendCoinContext(t, `{"recipient":"`+domain.FormatAccountID(bob)+`","amount":1}`, &alice)
	h.SendCoin(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	code, _ := decodeErrorCode(t, w)
	assert.Equal(t, "SYS_000", code)
}

func TestSendCoin_BodyTooLarge(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewContractHandler(mocks.NewMockContractService(ctrl))

	body := `{"recipient":"` + strings.Repeat("x", 200) + `","amount":1}`
	c, w := sendCoinContext(t, body, &alice)
	c.Request.Body = http.MaxBytesReader(w, c.Request.Body, 32)
	h.SendCoin(c)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

// --- History Handler Tests ---

func TestListTransfers_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := mocks.NewMockHistoryService(ctrl)
	h := NewHistoryHandler(svc)

	rec := domain.TransferRecord{
		Seq: 2, TxHash: "0xaa", From: alice, To: bob, Value: 5,
		CreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	svc.EXPECT().ListTransfers(gomock.Any(), ports.TransferListParams{
		Account:   alice,
		Direction: ports.DirectionOutgoing,
		Page:      2,
		PageSize:  5,
	}).Return([]domain.TransferRecord{rec}, int64(6), nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/?page=2&page_size=5&direction=out", nil)
	c.Params = gin.Params{{Key: "account", Value: domain.FormatAccountID(alice)}}

	h.ListTransfers(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(2), data["page"])
	assert.Equal(t, float64(5), data["page_size"])
	assert.Equal(t, float64(6), data["total"])
	items := data["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "0xaa", items[0].(map[string]interface{})["tx_hash"])
}

func TestListTransfers_Defaults(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := mocks.NewMockHistoryService(ctrl)
	h := NewHistoryHandler(svc)

	svc.EXPECT().ListTransfers(gomock.Any(), ports.TransferListParams{
		Account:  bob,
		Page:     1,
		PageSize: 20,
	}).Return(nil, int64(0), nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Params = gin.Params{{Key: "account", Value: domain.FormatAccountID(bob)}}

	h.ListTransfers(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, []interface{}{}, data["items"])
}

func TestListTransfers_BadQuery(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewHistoryHandler(mocks.NewMockHistoryService(ctrl))

	for _, q := range []string{"?direction=up", "?page_size=1000", "?page=abc"} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/"+q, nil)
		c.Params = gin.Params{{Key: "account", Value: domain.FormatAccountID(bob)}}

		h.ListTransfers(c)

		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestListTransfers_ServiceError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := mocks.NewMockHistoryService(ctrl)
	h := NewHistoryHandler(svc)

	svc.EXPECT().ListTransfers(gomock.Any(), gomock.Any()).
		Return(nil, int64(0), apperror.InternalError(errors.New("db down")))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Params = gin.Params{{Key: "account", Value: domain.FormatAccountID(bob)}}

	h.ListTransfers(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// --- Health Check Tests ---

func TestHealthCheck_AllHealthy(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pg := mocks.NewMockHealthChecker(ctrl)
	pg.EXPECT().Ping(gomock.Any()).Return(nil)
	pg.EXPECT().Name().Return("postgresql").AnyTimes()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	HealthCheck(pg)(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestHealthCheck_Degraded(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pg := mocks.NewMockHealthChecker(ctrl)
	pg.EXPECT().Ping(gomock.Any()).Return(nil)
	pg.EXPECT().Name().Return("postgresql").AnyTimes()

	rd := mocks.NewMockHealthChecker(ctrl)
	rd.EXPECT().Ping(gomock.Any()).Return(errors.New("connection refused"))
	rd.EXPECT().Name().Return("redis").AnyTimes()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	HealthCheck(pg, rd)(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp["status"])
	deps := resp["dependencies"].(map[string]interface{})
	assert.Equal(t, "unhealthy", deps["redis"].(map[string]interface{})["status"])
	assert.Equal(t, "healthy", deps["postgresql"].(map[string]interface{})["status"])
}

func TestHealthCheck_NoCheckers(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	HealthCheck()(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

// --- Swagger ---

func TestSwagger(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/swagger/spec", nil)
	SwaggerSpec(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/v1/send-coin")

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/swagger", nil)
	SwaggerUI(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "swagger-ui")
}
