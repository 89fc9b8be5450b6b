package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"metacoin-ledger/internal/adapter/http/middleware"
	"metacoin-ledger/internal/adapter/storage/memory"
	redisStore "metacoin-ledger/internal/adapter/storage/redis"
	"metacoin-ledger/internal/core/domain"
	"metacoin-ledger/internal/core/ports"
	"metacoin-ledger/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLedger wires the real ledger, services and in-memory store behind the
// router: genesis A holds 10000 of a 100000 supply, B is unfunded.
type testLedger struct {
	router   *gin.Engine
	tokenSvc *service.JWTTokenService
	a, b     domain.AccountID
}

type ledgerOptions struct {
	cache     ports.ReceiptCache
	publisher ports.EventPublisher
	rlStore   *redisStore.RateLimitStore
	rlRules   map[string]middleware.RateLimitRule
}

func newTestLedger(t *testing.T, opts ledgerOptions) *testLedger {
	t.Helper()

	a := domain.DeriveAccountID("account-a")
	b := domain.DeriveAccountID("account-b")

	settings := service.LedgerSettings{
		Symbol:            "META",
		TotalSupply:       100000,
		Genesis:           a,
		GenesisAllocation: 10000,
		Reserve:           domain.DeriveAccountID("MetaCoin"),
		ConversionRatio:   2,
		ReceiptTTL:        time.Hour,
	}

	store := memory.NewStore()
	l, err := service.Bootstrap(context.Background(), settings, store, zerolog.Nop())
	require.NoError(t, err)

	contractSvc := service.NewContractService(l, settings, store, opts.cache, opts.publisher, nil, zerolog.Nop())
	tokenSvc := service.NewJWTTokenService("e2e-secret", time.Hour, "metacoin-ledger")

	router := SetupRouter(RouterDeps{
		ContractSvc:    contractSvc,
		HistorySvc:     service.NewHistoryService(store),
		TokenSvc:       tokenSvc,
		RateLimitStore: opts.rlStore,
		RateLimitRules: opts.rlRules,
		Logger:         zerolog.Nop(),
	})

	return &testLedger{router: router, tokenSvc: tokenSvc, a: a, b: b}
}

func (tl *testLedger) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	tl.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func (tl *testLedger) sendCoin(t *testing.T, from, to domain.AccountID, amount uint64, idemKey string) *httptest.ResponseRecorder {
	t.Helper()
	token, _, err := tl.tokenSvc.Generate(from)
	require.NoError(t, err)

	body := fmt.Sprintf(`{"recipient":%q,"amount":%d}`, domain.FormatAccountID(to), amount)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/send-coin", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if idemKey != "" {
		req.Header.Set(HeaderIdempotencyKey, idemKey)
	}

	w := httptest.NewRecorder()
	tl.router.ServeHTTP(w, req)
	return w
}

func (tl *testLedger) balance(t *testing.T, account domain.AccountID, suffix string) float64 {
	t.Helper()
	w := tl.get(t, "/api/v1/accounts/"+domain.FormatAccountID(account)+"/balance"+suffix)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decodeData(t, w)["balance"].(float64)
}

func (tl *testLedger) totalSupply(t *testing.T) float64 {
	t.Helper()
	w := tl.get(t, "/api/v1/total-supply")
	require.Equal(t, http.StatusOK, w.Code)
	return decodeData(t, w)["total_supply"].(float64)
}

func TestMetaCoinScenarios(t *testing.T) {
	tl := newTestLedger(t, ledgerOptions{})

	assert.Equal(t, float64(100000), tl.totalSupply(t))

	// 1. Genesis balance.
	assert.Equal(t, float64(10000), tl.balance(t, tl.a, ""))

	// 2. Secondary unit is twice the primary balance.
	assert.Equal(t, float64(20000), tl.balance(t, tl.a, "/eth"))

	// 3. A sends 10 to B; one Transfer event.
	w := tl.sendCoin(t, tl.a, tl.b, 10, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	receipt := decodeData(t, w)
	logs := receipt["logs"].([]interface{})
	require.Len(t, logs, 1)
	entry := logs[0].(map[string]interface{})
	assert.Equal(t, "Transfer", entry["event"])
	assert.Equal(t, domain.TransferTopic, entry["topic"])
	assert.Equal(t, map[string]interface{}{
		"from":  domain.FormatAccountID(tl.a),
		"to":    domain.FormatAccountID(tl.b),
		"value": float64(10),
	}, entry["args"])

	assert.Equal(t, float64(9990), tl.balance(t, tl.a, ""))
	assert.Equal(t, float64(10), tl.balance(t, tl.b, ""))

	// 4. Overdraft reverts and changes nothing.
	w = tl.sendCoin(t, tl.a, tl.b, 10001, "")
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	code, msg := decodeErrorCode(t, w)
	assert.Equal(t, "LEDGER_001", code)
	assert.Contains(t, msg, "revert")
	assert.Equal(t, float64(9990), tl.balance(t, tl.a, ""))
	assert.Equal(t, float64(10), tl.balance(t, tl.b, ""))

	// 5. Supply is fixed.
	assert.Equal(t, float64(100000), tl.totalSupply(t))

	// Only the successful transfer is in history.
	w = tl.get(t, "/api/v1/accounts/"+domain.FormatAccountID(tl.b)+"/transfers")
	require.Equal(t, http.StatusOK, w.Code)
	page := decodeData(t, w)
	assert.Equal(t, float64(1), page["total"])
	items := page["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, receipt["tx_hash"], items[0].(map[string]interface{})["tx_hash"])

	w = tl.get(t, "/api/v1/contract")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decodeData(t, w)["seq"])
}

func TestRouter_UnfundedSenderReverts(t *testing.T) {
	tl := newTestLedger(t, ledgerOptions{})

	w := tl.sendCoin(t, tl.b, tl.a, 1, "")
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, float64(0), tl.balance(t, tl.b, ""))
}

func TestRouter_SendCoinRequiresToken(t *testing.T) {
	tl := newTestLedger(t, ledgerOptions{})

	body := fmt.Sprintf(`{"recipient":%q,"amount":1}`, domain.FormatAccountID(tl.b))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/send-coin", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	tl.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))
	assert.Equal(t, float64(10000), tl.balance(t, tl.a, ""))
}

func TestRouter_UnknownAccountReadsZero(t *testing.T) {
	tl := newTestLedger(t, ledgerOptions{})

	stranger := domain.DeriveAccountID("stranger")
	assert.Equal(t, float64(0), tl.balance(t, stranger, ""))
	assert.Equal(t, float64(0), tl.balance(t, stranger, "/eth"))
}

func TestRouter_TransferHistoryPageOutOfRange(t *testing.T) {
	tl := newTestLedger(t, ledgerOptions{})
	require.Equal(t, http.StatusCreated, tl.sendCoin(t, tl.a, tl.b, 10, "").Code)

	path := "/api/v1/accounts/" + domain.FormatAccountID(tl.b) + "/transfers?page_size=3&page=" + strconv.Itoa(math.MaxInt/3+2)
	w := tl.get(t, path)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	code, _ := decodeErrorCode(t, w)
	assert.Equal(t, "REQ_001", code)

	w = tl.get(t, "/api/v1/accounts/"+domain.FormatAccountID(tl.b)+"/transfers?page=2&page_size=3")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decodeData(t, w)["total"])
}

func TestRouter_IdempotentSendCoinWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	publisher := redisStore.NewEventPublisher(client, "metacoin:transfers")
	sub := client.Subscribe(context.Background(), publisher.Channel())
	defer sub.Close()
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	tl := newTestLedger(t, ledgerOptions{
		cache:     redisStore.NewReceiptCache(client),
		publisher: publisher,
	})

	first := tl.sendCoin(t, tl.a, tl.b, 25, "invoice-7")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := tl.sendCoin(t, tl.a, tl.b, 25, "invoice-7")
	require.Equal(t, http.StatusCreated, second.Code)

	assert.Equal(t, decodeData(t, first)["tx_hash"], decodeData(t, second)["tx_hash"])
	assert.Equal(t, float64(9975), tl.balance(t, tl.a, ""))
	assert.Equal(t, float64(25), tl.balance(t, tl.b, ""))

	reused := tl.sendCoin(t, tl.a, tl.b, 26, "invoice-7")
	assert.Equal(t, http.StatusConflict, reused.Code)
	code, _ := decodeErrorCode(t, reused)
	assert.Equal(t, "REQ_005", code)
	assert.Equal(t, float64(9975), tl.balance(t, tl.a, ""))

	select {
	case msg := <-sub.Channel():
		var published domain.Receipt
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &published))
		assert.Equal(t, decodeData(t, first)["tx_hash"], published.TxHash)
	case <-time.After(2 * time.Second):
		t.Fatal("transfer was not published")
	}
}

func TestRouter_RateLimitsSendCoin(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	tl := newTestLedger(t, ledgerOptions{
		rlStore: redisStore.NewRateLimitStore(client),
		rlRules: map[string]middleware.RateLimitRule{
			middleware.GroupSendCoin: {Limit: 2, Window: time.Minute},
			middleware.GroupRead:     {Limit: 100, Window: time.Minute},
		},
	})

	assert.Equal(t, http.StatusCreated, tl.sendCoin(t, tl.a, tl.b, 1, "").Code)
	assert.Equal(t, http.StatusCreated, tl.sendCoin(t, tl.a, tl.b, 1, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, tl.sendCoin(t, tl.a, tl.b, 1, "").Code)

	// B's budget is separate from A's.
	assert.Equal(t, http.StatusCreated, tl.sendCoin(t, tl.b, tl.a, 1, "").Code)
	assert.Equal(t, float64(9999), tl.balance(t, tl.a, ""))
}

func TestRouter_HealthAndSwagger(t *testing.T) {
	tl := newTestLedger(t, ledgerOptions{})

	assert.Equal(t, http.StatusOK, tl.get(t, "/health").Code)
	assert.Equal(t, http.StatusOK, tl.get(t, "/swagger/spec").Code)
	assert.Equal(t, http.StatusNotFound, tl.get(t, "/api/v1/unknown").Code)
}

// TestRouter_ConcurrentSendCoin fires more transfers than A can fund and
// checks that exactly the fundable ones commit.
func TestRouter_ConcurrentSendCoin(t *testing.T) {
	tl := newTestLedger(t, ledgerOptions{})

	const (
		concurrency = 100
		amount      = 150
	)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		reverted  atomic.Int64
	)
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch tl.sendCoin(t, tl.a, tl.b, amount, "").Code {
			case http.StatusCreated:
				succeeded.Add(1)
			case http.StatusPaymentRequired:
				reverted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10000/amount), succeeded.Load())
	assert.Equal(t, int64(concurrency-10000/amount), reverted.Load())

	a := tl.balance(t, tl.a, "")
	b := tl.balance(t, tl.b, "")
	assert.Equal(t, float64(10000%amount), a)
	assert.Equal(t, float64(10000-10000%amount), b)

	reserve := tl.balance(t, domain.DeriveAccountID("MetaCoin"), "")
	assert.Equal(t, tl.totalSupply(t), a+b+reserve)

	w := tl.get(t, "/api/v1/accounts/"+domain.FormatAccountID(tl.a)+"/transfers?direction=out&page_size=100")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(10000/amount), decodeData(t, w)["total"])
}
