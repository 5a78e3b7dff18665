package gateway

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"nftmarket/gateway/middleware"
	"nftmarket/ledger"
	"nftmarket/native/market"
	"nftmarket/registry"
	marketstate "nftmarket/state/market"
	"nftmarket/storage"
)

const testSecret = "gateway-test-secret"

type testFixture struct {
	handler  http.Handler
	ledger   *ledger.Ledger
	store    *marketstate.Store
	registry *registry.Registry
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()
	db := storage.NewMemDB()
	custody := ledger.New(db)
	store := marketstate.NewStore(custody.StateDB())
	reg := registry.New()

	engine := market.NewEngine()
	engine.SetState(store)
	engine.SetLedger(custody)
	engine.SetRegistry(reg)
	var feeCollector [20]byte
	feeCollector[19] = 0xfe
	engine.SetFeeCollector(feeCollector)

	handler := NewRouter(Config{
		Engine:        engine,
		Store:         store,
		Authenticator: middleware.NewAuthenticator(middleware.AuthConfig{HMACSecret: testSecret}, nil),
	})
	return &testFixture{handler: handler, ledger: custody, store: store, registry: reg}
}

func testAddr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

func testAsset(b byte) [32]byte {
	var a [32]byte
	a[31] = b
	return a
}

func signToken(t *testing.T, caller [20]byte) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   hex.EncodeToString(caller[:]),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func (f *testFixture) do(t *testing.T, method, path string, caller *[20]byte, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if caller != nil {
		req.Header.Set("Authorization", "Bearer "+signToken(t, *caller))
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateListingRequiresAuth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/v1/listings", nil, createListingRequest{
		Asset:    hex.EncodeToString(bytes32(testAsset(1))),
		Price:    "100",
		Quantity: 1,
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func bytes32(a [32]byte) []byte { return a[:] }

func TestCreateAndFetchListing(t *testing.T) {
	f := newFixture(t)
	seller := testAddr(1)
	asset := testAsset(2)
	require.NoError(t, f.ledger.Mint(market.AssetHoldingAddress(seller, asset), big.NewInt(3)))

	rec := f.do(t, http.MethodPost, "/v1/listings", &seller, createListingRequest{
		Asset:    hex.EncodeToString(asset[:]),
		Price:    "1000",
		Quantity: 3,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created listingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "1000", created.Price)
	require.Equal(t, uint64(3), created.Quantity)

	rec = f.do(t, http.MethodGet, "/v1/listings/"+created.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched listingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	require.Equal(t, created, fetched)
}

func TestCreateListingWithoutAssetsConflicts(t *testing.T) {
	f := newFixture(t)
	seller := testAddr(1)
	rec := f.do(t, http.MethodPost, "/v1/listings", &seller, createListingRequest{
		Asset:    hex.EncodeToString(bytes32(testAsset(2))),
		Price:    "1000",
		Quantity: 1,
	})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestCancelListingByNonOwnerForbidden(t *testing.T) {
	f := newFixture(t)
	seller := testAddr(1)
	intruder := testAddr(9)
	asset := testAsset(2)
	require.NoError(t, f.ledger.Mint(market.AssetHoldingAddress(seller, asset), big.NewInt(1)))

	rec := f.do(t, http.MethodPost, "/v1/listings", &seller, createListingRequest{
		Asset:    hex.EncodeToString(asset[:]),
		Price:    "10",
		Quantity: 1,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created listingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = f.do(t, http.MethodDelete, "/v1/listings/"+created.ID, &intruder, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodDelete, "/v1/listings/"+created.ID, &seller, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestExecuteSaleSettles(t *testing.T) {
	f := newFixture(t)
	seller := testAddr(1)
	buyer := testAddr(2)
	asset := testAsset(3)
	require.NoError(t, f.ledger.Mint(market.AssetHoldingAddress(seller, asset), big.NewInt(1)))
	require.NoError(t, f.ledger.Mint(buyer, big.NewInt(1_000)))

	rec := f.do(t, http.MethodPost, "/v1/listings", &seller, createListingRequest{
		Asset:    hex.EncodeToString(asset[:]),
		Price:    "1000",
		Quantity: 1,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created listingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/v1/listings/%s/sale", created.ID), &buyer, settleRequest{
		SecondHighestBid: "0",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var settlement settlementResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settlement))
	require.Equal(t, "25", settlement.MarketplaceFee)
	require.Equal(t, "0", settlement.RebateFee)
	require.Equal(t, "975", settlement.SellerPayment)

	sellerBal, err := f.ledger.Balance(seller)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(975), sellerBal)

	rec = f.do(t, http.MethodGet, "/v1/listings/"+created.ID, nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecuteSaleEncodesCreatorPayments(t *testing.T) {
	f := newFixture(t)
	seller := testAddr(1)
	buyer := testAddr(2)
	creator := testAddr(7)
	asset := testAsset(3)
	require.NoError(t, f.registry.Register(asset, []market.Creator{
		{Address: creator, SharePercent: 10, Verified: true},
	}))
	require.NoError(t, f.ledger.Mint(market.AssetHoldingAddress(seller, asset), big.NewInt(1)))
	require.NoError(t, f.ledger.Mint(buyer, big.NewInt(1_000)))

	rec := f.do(t, http.MethodPost, "/v1/listings", &seller, createListingRequest{
		Asset:    hex.EncodeToString(asset[:]),
		Price:    "1000",
		Quantity: 1,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created listingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/v1/listings/%s/sale", created.ID), &buyer, settleRequest{
		SecondHighestBid: "0",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var settlement settlementResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settlement))
	require.Len(t, settlement.CreatorPayments, 1)
	require.Equal(t, hex.EncodeToString(creator[:]), settlement.CreatorPayments[0].Creator)
	require.Equal(t, "100", settlement.CreatorPayments[0].Amount)
	require.Equal(t, "22", settlement.MarketplaceFee)
	require.Equal(t, "878", settlement.SellerPayment)

	creatorBal, err := f.ledger.Balance(creator)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100), creatorBal)
}

func TestGetMissingListing(t *testing.T) {
	f := newFixture(t)
	missing := testAsset(9)
	rec := f.do(t, http.MethodGet, "/v1/listings/"+hex.EncodeToString(missing[:]), nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBadIdentifierRejected(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/v1/listings/nothex", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceAndAcceptBid(t *testing.T) {
	f := newFixture(t)
	seller := testAddr(1)
	bidder := testAddr(2)
	asset := testAsset(3)
	require.NoError(t, f.ledger.Mint(market.AssetHoldingAddress(seller, asset), big.NewInt(1)))
	require.NoError(t, f.ledger.Mint(bidder, big.NewInt(500)))

	rec := f.do(t, http.MethodPost, "/v1/bids", &bidder, placeBidRequest{
		Asset: hex.EncodeToString(asset[:]),
		Price: "500",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var placed bidResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &placed))

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/v1/bids/%s/accept", placed.ID), &seller, settleRequest{
		SecondHighestBid: "0",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	bidderHolding, err := f.ledger.Balance(market.AssetHoldingAddress(bidder, asset))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1), bidderHolding)
}

func TestCancelBidRefundsEscrow(t *testing.T) {
	f := newFixture(t)
	bidder := testAddr(2)
	asset := testAsset(3)
	require.NoError(t, f.ledger.Mint(bidder, big.NewInt(500)))

	rec := f.do(t, http.MethodPost, "/v1/bids", &bidder, placeBidRequest{
		Asset: hex.EncodeToString(asset[:]),
		Price: "500",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var placed bidResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &placed))

	rec = f.do(t, http.MethodDelete, "/v1/bids/"+placed.ID, &bidder, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	balance, err := f.ledger.Balance(bidder)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(500), balance)
}

func TestInvalidTokenRejected(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/bids", bytes.NewBufferString("{}"))
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
