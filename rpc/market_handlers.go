package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"editionmarket/native/market"
	"editionmarket/observability"
)

type mintParams struct {
	Caller            string `json:"caller"`
	EditionCount      uint64 `json:"editionCount"`
	MetadataURI       string `json:"metadataUri"`
	Creator           string `json:"creator"`
	Collaborator      string `json:"collaborator"`
	CreatorSplit      uint8  `json:"creatorSplit"`
	CollaboratorSplit uint8  `json:"collaboratorSplit"`
	SaleMode          uint8  `json:"saleMode"`
	SaleWindowHours   uint64 `json:"saleWindowHours"`
	Price             string `json:"price"`
	FeeBps            uint32 `json:"feeBps"`
}

type setMaxEditionsParams struct {
	Caller string `json:"caller"`
	Max    uint64 `json:"max"`
}

type approveCreatorsParams struct {
	Caller   string   `json:"caller"`
	Creators []string `json:"creators"`
}

type buyNowParams struct {
	Buyer        string `json:"buyer"`
	OrderID      uint64 `json:"orderId"`
	EditionIndex uint64 `json:"editionIndex"`
	Paid         string `json:"paid"`
}

type editionRefParams struct {
	Caller       string `json:"caller"`
	WorkID       uint64 `json:"workId"`
	EditionIndex uint64 `json:"editionIndex"`
}

type putOnSaleParams struct {
	Caller       string `json:"caller"`
	WorkID       uint64 `json:"workId"`
	EditionIndex uint64 `json:"editionIndex"`
	Price        string `json:"price"`
}

type placeBidParams struct {
	Bidder       string `json:"bidder"`
	OrderID      uint64 `json:"orderId"`
	EditionIndex uint64 `json:"editionIndex"`
	Amount       string `json:"amount"`
}

type orderRefParams struct {
	Caller       string `json:"caller"`
	OrderID      uint64 `json:"orderId"`
	EditionIndex uint64 `json:"editionIndex"`
}

type requestOfferParams struct {
	Caller       string `json:"caller"`
	WorkID       uint64 `json:"workId"`
	EditionIndex uint64 `json:"editionIndex"`
	MinPrice     string `json:"minPrice"`
}

type transferParams struct {
	Caller       string `json:"caller"`
	From         string `json:"from"`
	To           string `json:"to"`
	WorkID       uint64 `json:"workId"`
	EditionIndex uint64 `json:"editionIndex"`
}

type getByIDParams struct {
	ID uint64 `json:"id"`
}

type balanceOfParams struct {
	Owner  string `json:"owner"`
	WorkID uint64 `json:"workId"`
}

type approvalParams struct {
	Owner    string `json:"owner"`
	Operator string `json:"operator"`
	Approved bool   `json:"approved"`
}

type workResult struct {
	ID                uint64 `json:"id"`
	Creator           string `json:"creator"`
	Collaborator      string `json:"collaborator"`
	CreatorSplit      uint8  `json:"creatorSplit"`
	CollaboratorSplit uint8  `json:"collaboratorSplit"`
	EditionCount      uint64 `json:"editionCount"`
	SaleMode          string `json:"saleMode"`
	SaleWindowHours   uint64 `json:"saleWindowHours"`
	Price             string `json:"price"`
	FeeBps            uint32 `json:"feeBps"`
	MetadataURI       string `json:"metadataUri"`
	MintedAt          int64  `json:"mintedAt"`
}

type orderResult struct {
	ID           uint64 `json:"id"`
	Kind         uint8  `json:"kind"`
	Owner        string `json:"owner"`
	WorkID       uint64 `json:"workId"`
	EditionIndex uint64 `json:"editionIndex"`
	Remaining    uint64 `json:"remaining"`
	Price        string `json:"price"`
	CreatedAt    int64  `json:"createdAt"`
}

type holderResult struct {
	Custody bool   `json:"custody"`
	Address string `json:"address,omitempty"`
	Status  string `json:"status"`
}

type bidResult struct {
	WorkID       uint64 `json:"workId"`
	EditionIndex uint64 `json:"editionIndex"`
	Bidder       string `json:"bidder"`
	Amount       string `json:"amount"`
	PlacedAt     int64  `json:"placedAt"`
}

func formatWork(work *market.Work) workResult {
	return workResult{
		ID:                work.ID,
		Creator:           hexAddr(work.Creator),
		Collaborator:      hexAddr(work.Collaborator),
		CreatorSplit:      work.CreatorSplit,
		CollaboratorSplit: work.CollaboratorSplit,
		EditionCount:      work.EditionCount,
		SaleMode:          work.SaleMode.String(),
		SaleWindowHours:   work.SaleWindowHours,
		Price:             bigString(work.Price),
		FeeBps:            work.FeeBps,
		MetadataURI:       work.MetadataURI,
		MintedAt:          work.MintedAt,
	}
}

func formatOrder(order *market.Order) orderResult {
	return orderResult{
		ID:           order.ID,
		Kind:         uint8(order.Kind),
		Owner:        hexAddr(order.Owner),
		WorkID:       order.WorkID,
		EditionIndex: order.EditionIndex,
		Remaining:    order.Remaining,
		Price:        bigString(order.Price),
		CreatedAt:    order.CreatedAt,
	}
}

func hexAddr(addr [20]byte) string {
	return ethcommon.BytesToAddress(addr[:]).Hex()
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	if !ethcommon.IsHexAddress(value) {
		return addr, fmt.Errorf("invalid address %q", value)
	}
	copy(addr[:], ethcommon.HexToAddress(value).Bytes())
	return addr, nil
}

func parseAmount(value string) (*big.Int, error) {
	if value == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected a single params object")
	}
	return json.Unmarshal(req.Params[0], out)
}

func (s *Server) handleMint(w http.ResponseWriter, req *RPCRequest) {
	var params mintParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	creator, err := parseAddress(params.Creator)
	if err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	collaborator, err := parseAddress(params.Collaborator)
	if err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	price, err := parseAmount(params.Price)
	if err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	work, order, err := s.engine.Mint(caller, market.MintParams{
		EditionCount:      params.EditionCount,
		MetadataURI:       params.MetadataURI,
		Creator:           creator,
		Collaborator:      collaborator,
		CreatorSplit:      params.CreatorSplit,
		CollaboratorSplit: params.CollaboratorSplit,
		SaleMode:          market.SaleMode(params.SaleMode),
		SaleWindowHours:   params.SaleWindowHours,
		Price:             price,
		FeeBps:            params.FeeBps,
	})
	if err != nil {
		s.writeEngineError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"work":  formatWork(work),
		"order": formatOrder(order),
	})
}

func (s *Server) handleSetMaxEditions(w http.ResponseWriter, req *RPCRequest) {
	var params setMaxEditionsParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	if err := s.engine.SetMaxEditions(caller, params.Max); err != nil {
		s.writeEngineError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleApproveCreators(w http.ResponseWriter, req *RPCRequest) {
	var params approveCreatorsParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	creators := make([][20]byte, 0, len(params.Creators))
	for _, raw := range params.Creators {
		addr, err := parseAddress(raw)
		if err != nil {
			writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
			return
		}
		creators = append(creators, addr)
	}
	if err := s.engine.ApproveCreators(caller, creators); err != nil {
		s.writeEngineError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleBuyNow(w http.ResponseWriter, req *RPCRequest) {
	var params buyNowParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	paid, err := parseAmount(params.Paid)
	if err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	if err := s.engine.BuyNow(buyer, params.OrderID, params.EditionIndex, paid); err != nil {
		s.writeEngineError(w, req.ID, req.Method, err)
		return
	}
	observability.MarketMetrics().Settle("buy-now")
	writeResult(w, req.ID, true)
}

func (s *Server) handleSecondHand(w http.ResponseWriter, req *RPCRequest) {
	var params editionRefParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	ok, err := s.engine.SecondHand(caller, params.WorkID, params.EditionIndex)
	if err != nil {
		s.writeEngineError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, ok)
}

func (s *Server) handlePutOnSaleBuy(w http.ResponseWriter, req *RPCRequest) {
	var params putOnSaleParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	price, err := parseAmount(params.Price)
	if err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	order, err := s.engine.PutOnSaleBuy(caller, params.WorkID, params.EditionIndex, price)
	if err != nil {
		s.writeEngineError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, formatOrder(order))
}

func (s *Server) handlePlaceBid(w http.ResponseWriter, req *RPCRequest) {
	var params placeBidParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	bidder, err := parseAddress(params.Bidder)
	if err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	bid, err := s.engine.PlaceBid(bidder, params.OrderID, params.EditionIndex, amount)
	if err != nil {
		s.writeEngineError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, bidResult{
		WorkID:       bid.WorkID,
		EditionIndex: bid.EditionIndex,
		Bidder:       hexAddr(bid.Bidder),
		Amount:       bigString(bid.Amount),
		PlacedAt:     bid.PlacedAt,
	})
}

func (s *Server) handleClaimAfterAuction(w http.ResponseWriter, req *RPCRequest) {
	var params orderRefParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	if err := s.engine.ClaimAfterAuction(caller, params.OrderID, params.EditionIndex); err != nil {
		s.writeEngineError(w, req.ID, req.Method, err)
		return
	}
	observability.MarketMetrics().Settle("auction-claim")
	writeResult(w, req.ID, true)
}

func (s *Server) handleRequestOffer(w http.ResponseWriter, req *RPCRequest) {
	var params requestOfferParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	minPrice, err := parseAmount(params.MinPrice)
	if err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	order, err := s.engine.RequestOffer(caller, params.WorkID, params.EditionIndex, minPrice)
	if err != nil {
		s.writeEngineError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, formatOrder(order))
}

func (s *Server) handleClaimBack(w http.ResponseWriter, req *RPCRequest) {
	var params orderRefParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	amount, err := s.engine.ClaimBack(caller, params.OrderID, params.EditionIndex)
	if err != nil {
		s.writeEngineError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"refunded": bigString(amount)})
}

func (s *Server) handleAcceptOffer(w http.ResponseWriter, req *RPCRequest) {
	var params orderRefParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	if err := s.engine.AcceptOffer(caller, params.OrderID, params.EditionIndex); err != nil {
		s.writeEngineError(w, req.ID, req.Method, err)
		return
	}
	observability.MarketMetrics().Settle("offer-accept")
	writeResult(w, req.ID, true)
}

func (s *Server) handleTransfer(w http.ResponseWriter, req *RPCRequest) {
	var params transferParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	from, err := parseAddress(params.From)
	if err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	to, err := parseAddress(params.To)
	if err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	if err := s.engine.Transfer(caller, from, to, params.WorkID, params.EditionIndex); err != nil {
		s.writeEngineError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleBurnEdition(w http.ResponseWriter, req *RPCRequest) {
	var params editionRefParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	if err := s.engine.BurnTokenEdition(caller, params.WorkID, params.EditionIndex); err != nil {
		s.writeEngineError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, req *RPCRequest) {
	var params getByIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	order, err := s.engine.OrderOf(params.ID)
	if err != nil {
		s.writeEngineError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, formatOrder(order))
}

func (s *Server) handleGetWork(w http.ResponseWriter, req *RPCRequest) {
	var params getByIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	work, err := s.engine.WorkOf(params.ID)
	if err != nil {
		s.writeEngineError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, formatWork(work))
}

func (s *Server) handleGetHolder(w http.ResponseWriter, req *RPCRequest) {
	var params editionRefParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	holder, err := s.engine.CurrentHolder(params.WorkID, params.EditionIndex)
	if err != nil {
		s.writeEngineError(w, req.ID, req.Method, err)
		return
	}
	status, err := s.engine.EditionStatusOf(params.WorkID, params.EditionIndex)
	if err != nil {
		s.writeEngineError(w, req.ID, req.Method, err)
		return
	}
	result := holderResult{Custody: holder.IsCustody(), Status: status.String()}
	if holder.Kind == market.HolderAccount {
		result.Address = hexAddr(holder.Addr)
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleGetBid(w http.ResponseWriter, req *RPCRequest) {
	var params editionRefParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	bid, err := s.engine.BidOf(params.WorkID, params.EditionIndex)
	if err != nil {
		s.writeEngineError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, bidResult{
		WorkID:       bid.WorkID,
		EditionIndex: bid.EditionIndex,
		Bidder:       hexAddr(bid.Bidder),
		Amount:       bigString(bid.Amount),
		PlacedAt:     bid.PlacedAt,
	})
}

func (s *Server) handleBalanceOf(w http.ResponseWriter, req *RPCRequest) {
	var params balanceOfParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	balance, err := s.ledger.BalanceOf(owner, params.WorkID)
	if err != nil {
		s.writeEngineError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"balance": balance})
}

func (s *Server) handleSetApprovalForAll(w http.ResponseWriter, req *RPCRequest) {
	var params approvalParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	operator, err := parseAddress(params.Operator)
	if err != nil {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidParams, err.Error())
		return
	}
	if err := s.ledger.SetApprovalForAll(owner, operator, params.Approved); err != nil {
		s.writeEngineError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, true)
}
