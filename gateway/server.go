// Package gateway exposes the marketplace engine over HTTP.
package gateway

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"nftmarket/gateway/middleware"
	"nftmarket/native/market"
	marketstate "nftmarket/state/market"
)

// Config wires the server's collaborators.
type Config struct {
	Engine        *market.Engine
	Store         *marketstate.Store
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	Logger        *slog.Logger
}

// Server handles the marketplace HTTP API. Reads are open; mutations
// require an authenticated caller, whose address becomes the acting party.
type Server struct {
	engine *market.Engine
	store  *marketstate.Store
	logger *slog.Logger
}

// NewRouter builds the HTTP handler for the marketplace API.
func NewRouter(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{engine: cfg.Engine, store: cfg.Store, logger: logger}

	r := chi.NewRouter()
	if cfg.Observability != nil {
		r.Use(cfg.Observability.Middleware("market"))
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Middleware())
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Observability != nil {
		r.Handle("/metrics", cfg.Observability.MetricsHandler())
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/listings/{id}", srv.getListing)
		v1.Get("/bids/{id}", srv.getBid)

		v1.Group(func(authed chi.Router) {
			if cfg.Authenticator != nil {
				authed.Use(cfg.Authenticator.Middleware())
			}
			authed.Post("/listings", srv.createListing)
			authed.Delete("/listings/{id}", srv.cancelListing)
			authed.Post("/listings/{id}/sale", srv.executeSale)
			authed.Post("/bids", srv.placeBid)
			authed.Delete("/bids/{id}", srv.cancelBid)
			authed.Post("/bids/{id}/accept", srv.acceptBid)
		})
	})
	return r
}

type createListingRequest struct {
	Asset    string `json:"asset"`
	Price    string `json:"price"`
	Quantity uint64 `json:"quantity"`
	Expiry   int64  `json:"expiry,omitempty"`
}

type placeBidRequest struct {
	Asset  string `json:"asset"`
	Price  string `json:"price"`
	Expiry int64  `json:"expiry,omitempty"`
}

type settleRequest struct {
	SecondHighestBid string `json:"secondHighestBid"`
	SecondBidder     string `json:"secondBidder,omitempty"`
}

type listingResponse struct {
	ID        string `json:"id"`
	Seller    string `json:"seller"`
	Asset     string `json:"asset"`
	Price     string `json:"price"`
	Quantity  uint64 `json:"quantity"`
	CreatedAt int64  `json:"createdAt"`
	Expiry    int64  `json:"expiry,omitempty"`
}

type bidResponse struct {
	ID        string `json:"id"`
	Bidder    string `json:"bidder"`
	Asset     string `json:"asset"`
	Price     string `json:"price"`
	CreatedAt int64  `json:"createdAt"`
	Expiry    int64  `json:"expiry,omitempty"`
}

type creatorPaymentResponse struct {
	Creator string `json:"creator"`
	Amount  string `json:"amount"`
}

type settlementResponse struct {
	CreatorPayments []creatorPaymentResponse `json:"creatorPayments"`
	MarketplaceFee  string                   `json:"marketplaceFee"`
	RebateFee       string                   `json:"rebateFee"`
	SellerPayment   string                   `json:"sellerPayment"`
}

func (s *Server) createListing(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	var req createListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	asset, err := parseHash(req.Asset)
	if err != nil {
		http.Error(w, fmt.Sprintf("asset: %v", err), http.StatusBadRequest)
		return
	}
	price, err := parseAmount(req.Price)
	if err != nil {
		http.Error(w, fmt.Sprintf("price: %v", err), http.StatusBadRequest)
		return
	}
	listing, err := s.engine.CreateListing(caller, asset, price, req.Quantity, req.Expiry)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, encodeListing(listing))
}

func (s *Server) getListing(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("id: %v", err), http.StatusBadRequest)
		return
	}
	listing, ok := s.store.ListingGet(id)
	if !ok {
		http.Error(w, "listing not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, encodeListing(listing))
}

func (s *Server) cancelListing(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	id, err := parseHash(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("id: %v", err), http.StatusBadRequest)
		return
	}
	if err := s.engine.CancelListing(caller, id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) executeSale(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	id, err := parseHash(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("id: %v", err), http.StatusBadRequest)
		return
	}
	second, secondBidder, err := decodeSettleRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := s.engine.ExecuteSale(caller, id, second, secondBidder)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeSettlement(result))
}

func (s *Server) placeBid(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	var req placeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	asset, err := parseHash(req.Asset)
	if err != nil {
		http.Error(w, fmt.Sprintf("asset: %v", err), http.StatusBadRequest)
		return
	}
	price, err := parseAmount(req.Price)
	if err != nil {
		http.Error(w, fmt.Sprintf("price: %v", err), http.StatusBadRequest)
		return
	}
	bid, err := s.engine.PlaceBid(caller, asset, price, req.Expiry)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, encodeBid(bid))
}

func (s *Server) getBid(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("id: %v", err), http.StatusBadRequest)
		return
	}
	bid, ok := s.store.BidGet(id)
	if !ok {
		http.Error(w, "bid not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, encodeBid(bid))
}

func (s *Server) cancelBid(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	id, err := parseHash(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("id: %v", err), http.StatusBadRequest)
		return
	}
	if err := s.engine.CancelBid(caller, id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) acceptBid(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	id, err := parseHash(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("id: %v", err), http.StatusBadRequest)
		return
	}
	second, secondBidder, err := decodeSettleRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := s.engine.AcceptBid(caller, id, second, secondBidder)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeSettlement(result))
}

func decodeSettleRequest(r *http.Request) (*big.Int, [20]byte, error) {
	var secondBidder [20]byte
	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, secondBidder, fmt.Errorf("malformed request body")
	}
	second, err := parseAmount(req.SecondHighestBid)
	if err != nil {
		return nil, secondBidder, fmt.Errorf("secondHighestBid: %v", err)
	}
	if strings.TrimSpace(req.SecondBidder) != "" {
		secondBidder, err = parseAddress(req.SecondBidder)
		if err != nil {
			return nil, secondBidder, fmt.Errorf("secondBidder: %v", err)
		}
	}
	return second, secondBidder, nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, market.ErrValidation), errors.Is(err, market.ErrArithmeticOverflow):
		status = http.StatusBadRequest
	case errors.Is(err, market.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, market.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, market.ErrInsufficientFunds),
		errors.Is(err, market.ErrAccountNotFound),
		errors.Is(err, market.ErrCustodyTransfer):
		status = http.StatusConflict
	default:
		s.logger.Error("internal error", "error", err)
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func encodeListing(l *market.Listing) listingResponse {
	id := l.ID()
	return listingResponse{
		ID:        hex.EncodeToString(id[:]),
		Seller:    hex.EncodeToString(l.Seller[:]),
		Asset:     hex.EncodeToString(l.Asset[:]),
		Price:     l.Price.String(),
		Quantity:  l.Quantity,
		CreatedAt: l.CreatedAt,
		Expiry:    l.Expiry,
	}
}

func encodeBid(b *market.Bid) bidResponse {
	id := b.ID()
	return bidResponse{
		ID:        hex.EncodeToString(id[:]),
		Bidder:    hex.EncodeToString(b.Bidder[:]),
		Asset:     hex.EncodeToString(b.Asset[:]),
		Price:     b.Price.String(),
		CreatedAt: b.CreatedAt,
		Expiry:    b.Expiry,
	}
}

func encodeSettlement(result *market.SettlementResult) settlementResponse {
	payments := make([]creatorPaymentResponse, 0, len(result.CreatorPayments))
	for _, payment := range result.CreatorPayments {
		payments = append(payments, creatorPaymentResponse{
			Creator: hex.EncodeToString(payment.Address[:]),
			Amount:  payment.Amount.String(),
		})
	}
	return settlementResponse{
		CreatorPayments: payments,
		MarketplaceFee:  result.MarketplaceFee.String(),
		RebateFee:       result.RebateFee.String(),
		SellerPayment:   result.SellerPayment.String(),
	}
}

func parseHash(value string) ([32]byte, error) {
	var hash [32]byte
	decoded, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(value), "0x"))
	if err != nil {
		return hash, fmt.Errorf("not hex")
	}
	if len(decoded) != len(hash) {
		return hash, fmt.Errorf("must be %d bytes", len(hash))
	}
	copy(hash[:], decoded)
	return hash, nil
}

func parseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	decoded, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(value), "0x"))
	if err != nil {
		return addr, fmt.Errorf("not hex")
	}
	if len(decoded) != len(addr) {
		return addr, fmt.Errorf("must be %d bytes", len(addr))
	}
	copy(addr[:], decoded)
	return addr, nil
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("must not be empty")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("not a decimal integer")
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("must not be negative")
	}
	return amount, nil
}
