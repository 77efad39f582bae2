package rpc

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"editionmarket/core/state"
	"editionmarket/core/types"
	"editionmarket/native/assets"
	"editionmarket/native/market"
	"editionmarket/storage"
)

const (
	adminHex        = "0x0000000000000000000000000000000000000001"
	creatorHex      = "0x0000000000000000000000000000000000000002"
	collaboratorHex = "0x0000000000000000000000000000000000000003"
	buyerHex        = "0x0000000000000000000000000000000000000004"
	vaultHex        = "0x00000000000000000000000000000000000000ee"
	collectorHex    = "0x00000000000000000000000000000000000000ff"
)

func mustAddr(t *testing.T, hex string) [20]byte {
	t.Helper()
	addr, err := parseAddress(hex)
	if err != nil {
		t.Fatalf("parse address %q: %v", hex, err)
	}
	return addr
}

func newTestServer(t *testing.T) (*Server, *state.Manager) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	manager := state.NewManager(db)

	ledger := assets.NewLedger()
	ledger.SetState(manager)

	engine := market.NewEngine()
	engine.SetState(manager)
	engine.SetLedger(ledger)
	engine.SetAdmin(mustAddr(t, adminHex))
	engine.SetEscrowVault(mustAddr(t, vaultHex))
	engine.SetFeeCollector(mustAddr(t, collectorHex))

	if err := engine.SetMaxEditions(mustAddr(t, adminHex), 100); err != nil {
		t.Fatalf("set max editions: %v", err)
	}
	if err := engine.ApproveCreators(mustAddr(t, adminHex), [][20]byte{mustAddr(t, creatorHex)}); err != nil {
		t.Fatalf("approve creators: %v", err)
	}
	return NewServer(engine, ledger, slog.Default()), manager
}

func call(t *testing.T, handler http.Handler, method string, params interface{}) (*httptest.ResponseRecorder, RPCResponse) {
	t.Helper()
	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		req["params"] = []interface{}{params}
	}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body)))
	var resp RPCResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v (body %q)", err, rec.Body.String())
	}
	return rec, resp
}

func mintFixture() mintParams {
	return mintParams{
		Caller:            creatorHex,
		EditionCount:      20,
		MetadataURI:       "ipfs://work",
		Creator:           creatorHex,
		Collaborator:      collaboratorHex,
		CreatorSplit:      60,
		CollaboratorSplit: 40,
		SaleMode:          0,
		Price:             "10000",
		FeeBps:            1000,
	}
}

func TestMintAndReadBack(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Router()

	rec, resp := call(t, router, "market_mint", mintFixture())
	if rec.Code != http.StatusOK || resp.Error != nil {
		t.Fatalf("mint failed: status=%d err=%+v", rec.Code, resp.Error)
	}

	rec, resp = call(t, router, "market_getWork", getByIDParams{ID: 1})
	if rec.Code != http.StatusOK || resp.Error != nil {
		t.Fatalf("getWork failed: status=%d err=%+v", rec.Code, resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected result %T", resp.Result)
	}
	if result["price"] != "10000" || result["saleMode"] != "fixed-price" {
		t.Fatalf("unexpected work: %v", result)
	}

	rec, resp = call(t, router, "market_getHolder", editionRefParams{WorkID: 1, EditionIndex: 10})
	if rec.Code != http.StatusOK || resp.Error != nil {
		t.Fatalf("getHolder failed: status=%d err=%+v", rec.Code, resp.Error)
	}
	holder, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected result %T", resp.Result)
	}
	if holder["status"] != "minted" {
		t.Fatalf("unexpected holder: %v", holder)
	}
}

func TestBuyNowOverRPC(t *testing.T) {
	server, manager := newTestServer(t)
	router := server.Router()

	if _, resp := call(t, router, "market_mint", mintFixture()); resp.Error != nil {
		t.Fatalf("mint failed: %+v", resp.Error)
	}
	buyer := mustAddr(t, buyerHex)
	if err := manager.PutAccount(buyer[:], &types.Account{Balance: big.NewInt(10_000)}); err != nil {
		t.Fatalf("fund buyer: %v", err)
	}

	rec, resp := call(t, router, "market_buyNow", buyNowParams{
		Buyer:        buyerHex,
		OrderID:      1,
		EditionIndex: 10,
		Paid:         "10000",
	})
	if rec.Code != http.StatusOK || resp.Error != nil {
		t.Fatalf("buyNow failed: status=%d err=%+v", rec.Code, resp.Error)
	}

	_, resp = call(t, router, "market_getHolder", editionRefParams{WorkID: 1, EditionIndex: 10})
	holder, _ := resp.Result.(map[string]interface{})
	if holder["status"] != "sold" {
		t.Fatalf("unexpected holder after sale: %v", holder)
	}

	_, resp = call(t, router, "assets_balanceOf", balanceOfParams{Owner: buyerHex, WorkID: 1})
	balance, _ := resp.Result.(map[string]interface{})
	if balance["balance"] != float64(1) {
		t.Fatalf("unexpected balance: %v", balance)
	}
}

func TestRejectionsUseDedicatedCode(t *testing.T) {
	server, manager := newTestServer(t)
	router := server.Router()

	if _, resp := call(t, router, "market_mint", mintFixture()); resp.Error != nil {
		t.Fatalf("mint failed: %+v", resp.Error)
	}
	buyer := mustAddr(t, buyerHex)
	if err := manager.PutAccount(buyer[:], &types.Account{Balance: big.NewInt(10_000)}); err != nil {
		t.Fatalf("fund buyer: %v", err)
	}

	// Precondition failures answer 200 with the rejection code, not 500.
	rec, resp := call(t, router, "market_buyNow", buyNowParams{
		Buyer:        buyerHex,
		OrderID:      1,
		EditionIndex: 10,
		Paid:         "1000",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("rejection status %d, want 200", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeRejected {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if resp.Error.Message != market.ErrWrongPrice.Error() {
		t.Fatalf("unexpected message %q", resp.Error.Message)
	}
}

func TestInvalidRequests(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Router()

	rec, resp := call(t, router, "market_noSuchMethod", nil)
	if rec.Code != http.StatusNotFound || resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("unknown method: status=%d err=%+v", rec.Code, resp.Error)
	}

	rec, resp = call(t, router, "market_buyNow", buyNowParams{Buyer: "not-an-address", OrderID: 1, Paid: "1"})
	if rec.Code != http.StatusBadRequest || resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("bad address: status=%d err=%+v", rec.Code, resp.Error)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader([]byte("{not json"))))
	var parseResp RPCResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &parseResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.Code != http.StatusBadRequest || parseResp.Error == nil || parseResp.Error.Code != codeParseError {
		t.Fatalf("malformed body: status=%d err=%+v", rec.Code, parseResp.Error)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: status=%d body=%q", rec.Code, rec.Body.String())
	}
}
