package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"editionmarket/core/types"
	"editionmarket/native/market"
	"editionmarket/storage"
)

// Manager is the persistence boundary shared by the market engine and the
// asset ledger. Records are RLP-encoded through stored* carrier structs
// (RLP has no signed integers, so timestamps travel as uint64 and amounts as
// decimal strings) and written under keccak-hashed prefixed keys.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

var (
	accountPrefix       = []byte("account/")
	workPrefix          = []byte("market/work/")
	orderPrefix         = []byte("market/order/")
	editionPrefix       = []byte("market/edition/")
	bidPrefix           = []byte("market/bid/")
	refundPrefix        = []byte("market/refund/")
	creatorPrefix       = []byte("market/creator/")
	workCounterKey      = []byte("market/meta/work-counter")
	orderCounterKey     = []byte("market/meta/order-counter")
	maxEditionsKey      = []byte("market/meta/max-editions")
	assetBalancePrefix  = []byte("assets/balance/")
	assetApprovalPrefix = []byte("assets/approval/")
	assetSupplyPrefix   = []byte("assets/supply/")
)

func hashKey(parts ...[]byte) []byte {
	size := 0
	for _, part := range parts {
		size += len(part)
	}
	buf := make([]byte, 0, size)
	for _, part := range parts {
		buf = append(buf, part...)
	}
	return ethcrypto.Keccak256(buf)
}

func uintKey(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func (m *Manager) getRaw(key []byte) ([]byte, bool, error) {
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (m *Manager) putRLP(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

func (m *Manager) getRLP(key []byte, out interface{}) (bool, error) {
	data, ok, err := m.getRaw(key)
	if err != nil || !ok {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func sanitizeUnix(ts int64) uint64 {
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func parseAmount(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("state: malformed amount %q", value)
	}
	return amount, nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// --- accounts ---

type storedAccount struct {
	Balance string
	Nonce   uint64
}

// GetAccount loads the native-value account for the address, returning a
// zeroed account when none is stored yet.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	var stored storedAccount
	ok, err := m.getRLP(hashKey(accountPrefix, addr), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return types.NewAccount(), nil
	}
	balance, err := parseAmount(stored.Balance)
	if err != nil {
		return nil, err
	}
	return &types.Account{Balance: balance, Nonce: stored.Nonce}, nil
}

// PutAccount stores the native-value account for the address.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if account == nil {
		account = types.NewAccount()
	}
	stored := storedAccount{
		Balance: amountString(account.Balance),
		Nonce:   account.Nonce,
	}
	return m.putRLP(hashKey(accountPrefix, addr), stored)
}

// --- market works ---

type storedWork struct {
	ID                uint64
	Creator           [20]byte
	Collaborator      [20]byte
	CreatorSplit      uint8
	CollaboratorSplit uint8
	EditionCount      uint64
	SaleMode          uint8
	SaleWindowHours   uint64
	Price             string
	FeeBps            uint32
	MetadataURI       string
	MintedAt          uint64
}

func (m *Manager) MarketWorkGet(id uint64) (*market.Work, bool, error) {
	var stored storedWork
	ok, err := m.getRLP(hashKey(workPrefix, uintKey(id)), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	price, err := parseAmount(stored.Price)
	if err != nil {
		return nil, false, err
	}
	work := &market.Work{
		ID:                stored.ID,
		Creator:           stored.Creator,
		Collaborator:      stored.Collaborator,
		CreatorSplit:      stored.CreatorSplit,
		CollaboratorSplit: stored.CollaboratorSplit,
		EditionCount:      stored.EditionCount,
		SaleMode:          market.SaleMode(stored.SaleMode),
		SaleWindowHours:   stored.SaleWindowHours,
		Price:             price,
		FeeBps:            stored.FeeBps,
		MetadataURI:       stored.MetadataURI,
		MintedAt:          int64(stored.MintedAt),
	}
	return work, true, nil
}

func (m *Manager) MarketWorkPut(work *market.Work) error {
	if work == nil {
		return fmt.Errorf("state: nil work")
	}
	stored := storedWork{
		ID:                work.ID,
		Creator:           work.Creator,
		Collaborator:      work.Collaborator,
		CreatorSplit:      work.CreatorSplit,
		CollaboratorSplit: work.CollaboratorSplit,
		EditionCount:      work.EditionCount,
		SaleMode:          uint8(work.SaleMode),
		SaleWindowHours:   work.SaleWindowHours,
		Price:             amountString(work.Price),
		FeeBps:            work.FeeBps,
		MetadataURI:       work.MetadataURI,
		MintedAt:          sanitizeUnix(work.MintedAt),
	}
	return m.putRLP(hashKey(workPrefix, uintKey(work.ID)), stored)
}

// --- market orders ---

type storedOrder struct {
	ID           uint64
	Kind         uint8
	Owner        [20]byte
	WorkID       uint64
	EditionIndex uint64
	Remaining    uint64
	Price        string
	CreatedAt    uint64
}

func (m *Manager) MarketOrderGet(id uint64) (*market.Order, bool, error) {
	var stored storedOrder
	ok, err := m.getRLP(hashKey(orderPrefix, uintKey(id)), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	price, err := parseAmount(stored.Price)
	if err != nil {
		return nil, false, err
	}
	order := &market.Order{
		ID:           stored.ID,
		Kind:         market.OrderKind(stored.Kind),
		Owner:        stored.Owner,
		WorkID:       stored.WorkID,
		EditionIndex: stored.EditionIndex,
		Remaining:    stored.Remaining,
		Price:        price,
		CreatedAt:    int64(stored.CreatedAt),
	}
	return order, true, nil
}

func (m *Manager) MarketOrderPut(order *market.Order) error {
	if order == nil {
		return fmt.Errorf("state: nil order")
	}
	stored := storedOrder{
		ID:           order.ID,
		Kind:         uint8(order.Kind),
		Owner:        order.Owner,
		WorkID:       order.WorkID,
		EditionIndex: order.EditionIndex,
		Remaining:    order.Remaining,
		Price:        amountString(order.Price),
		CreatedAt:    sanitizeUnix(order.CreatedAt),
	}
	return m.putRLP(hashKey(orderPrefix, uintKey(order.ID)), stored)
}

// --- market editions ---

type storedEdition struct {
	WorkID             uint64
	Index              uint64
	HolderKind         uint8
	HolderAddr         [20]byte
	Status             uint8
	ListedPrice        string
	SecondHandEligible bool
	ActiveOrder        uint64
	SoldAt             uint64
}

func editionKey(workID, index uint64) []byte {
	return hashKey(editionPrefix, uintKey(workID), uintKey(index))
}

func (m *Manager) MarketEditionGet(workID, index uint64) (*market.Edition, bool, error) {
	var stored storedEdition
	ok, err := m.getRLP(editionKey(workID, index), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	edition := &market.Edition{
		WorkID:             stored.WorkID,
		Index:              stored.Index,
		Holder:             market.Holder{Kind: market.HolderKind(stored.HolderKind), Addr: stored.HolderAddr},
		Status:             market.EditionStatus(stored.Status),
		SecondHandEligible: stored.SecondHandEligible,
		ActiveOrder:        stored.ActiveOrder,
		SoldAt:             int64(stored.SoldAt),
	}
	if stored.ListedPrice != "" {
		price, err := parseAmount(stored.ListedPrice)
		if err != nil {
			return nil, false, err
		}
		edition.ListedPrice = price
	}
	return edition, true, nil
}

func (m *Manager) MarketEditionPut(edition *market.Edition) error {
	if edition == nil {
		return fmt.Errorf("state: nil edition")
	}
	stored := storedEdition{
		WorkID:             edition.WorkID,
		Index:              edition.Index,
		HolderKind:         uint8(edition.Holder.Kind),
		HolderAddr:         edition.Holder.Addr,
		Status:             uint8(edition.Status),
		SecondHandEligible: edition.SecondHandEligible,
		ActiveOrder:        edition.ActiveOrder,
		SoldAt:             sanitizeUnix(edition.SoldAt),
	}
	if edition.ListedPrice != nil {
		stored.ListedPrice = edition.ListedPrice.String()
	}
	return m.putRLP(editionKey(edition.WorkID, edition.Index), stored)
}

// --- market bids ---

type storedBid struct {
	WorkID       uint64
	EditionIndex uint64
	Bidder       [20]byte
	Amount       string
	PlacedAt     uint64
}

func bidKey(workID, index uint64) []byte {
	return hashKey(bidPrefix, uintKey(workID), uintKey(index))
}

func (m *Manager) MarketBidGet(workID, index uint64) (*market.Bid, bool, error) {
	var stored storedBid
	ok, err := m.getRLP(bidKey(workID, index), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	amount, err := parseAmount(stored.Amount)
	if err != nil {
		return nil, false, err
	}
	bid := &market.Bid{
		WorkID:       stored.WorkID,
		EditionIndex: stored.EditionIndex,
		Bidder:       stored.Bidder,
		Amount:       amount,
		PlacedAt:     int64(stored.PlacedAt),
	}
	return bid, true, nil
}

func (m *Manager) MarketBidPut(bid *market.Bid) error {
	if bid == nil {
		return fmt.Errorf("state: nil bid")
	}
	stored := storedBid{
		WorkID:       bid.WorkID,
		EditionIndex: bid.EditionIndex,
		Bidder:       bid.Bidder,
		Amount:       amountString(bid.Amount),
		PlacedAt:     sanitizeUnix(bid.PlacedAt),
	}
	return m.putRLP(bidKey(bid.WorkID, bid.EditionIndex), stored)
}

func (m *Manager) MarketBidDelete(workID, index uint64) error {
	return m.db.Delete(bidKey(workID, index))
}

// --- refund ledger ---

func refundKey(workID, index uint64, bidder [20]byte) []byte {
	return hashKey(refundPrefix, uintKey(workID), uintKey(index), bidder[:])
}

func (m *Manager) MarketRefundGet(workID, index uint64, bidder [20]byte) (*big.Int, error) {
	var stored string
	ok, err := m.getRLP(refundKey(workID, index, bidder), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return parseAmount(stored)
}

func (m *Manager) MarketRefundPut(workID, index uint64, bidder [20]byte, amount *big.Int) error {
	key := refundKey(workID, index, bidder)
	if amount == nil || amount.Sign() == 0 {
		return m.db.Delete(key)
	}
	return m.putRLP(key, amount.String())
}

// --- counters and policy state ---

func (m *Manager) nextCounter(key []byte) (uint64, error) {
	var current uint64
	ok, err := m.getRLP(key, &current)
	if err != nil {
		return 0, err
	}
	if !ok {
		current = 0
	}
	next := current + 1
	if err := m.putRLP(key, next); err != nil {
		return 0, err
	}
	return next, nil
}

// MarketNextWorkID allocates and persists the next work identifier.
func (m *Manager) MarketNextWorkID() (uint64, error) {
	return m.nextCounter(hashKey(workCounterKey))
}

// MarketNextOrderID allocates and persists the next order identifier.
func (m *Manager) MarketNextOrderID() (uint64, error) {
	return m.nextCounter(hashKey(orderCounterKey))
}

func (m *Manager) MarketCreatorApproved(addr [20]byte) (bool, error) {
	var approved bool
	ok, err := m.getRLP(hashKey(creatorPrefix, addr[:]), &approved)
	if err != nil || !ok {
		return false, err
	}
	return approved, nil
}

func (m *Manager) MarketCreatorApprove(addr [20]byte) error {
	return m.putRLP(hashKey(creatorPrefix, addr[:]), true)
}

func (m *Manager) MarketMaxEditionsGet() (uint64, bool, error) {
	var max uint64
	ok, err := m.getRLP(hashKey(maxEditionsKey), &max)
	if err != nil || !ok {
		return 0, false, err
	}
	return max, true, nil
}

func (m *Manager) MarketMaxEditionsPut(max uint64) error {
	return m.putRLP(hashKey(maxEditionsKey), max)
}

// --- asset ledger state ---

func (m *Manager) AssetBalanceGet(owner [20]byte, workID uint64) (uint64, error) {
	var balance uint64
	ok, err := m.getRLP(hashKey(assetBalancePrefix, owner[:], uintKey(workID)), &balance)
	if err != nil || !ok {
		return 0, err
	}
	return balance, nil
}

func (m *Manager) AssetBalancePut(owner [20]byte, workID uint64, amount uint64) error {
	key := hashKey(assetBalancePrefix, owner[:], uintKey(workID))
	if amount == 0 {
		return m.db.Delete(key)
	}
	return m.putRLP(key, amount)
}

func (m *Manager) AssetApprovalGet(owner [20]byte, operator [20]byte) (bool, error) {
	var approved bool
	ok, err := m.getRLP(hashKey(assetApprovalPrefix, owner[:], operator[:]), &approved)
	if err != nil || !ok {
		return false, err
	}
	return approved, nil
}

func (m *Manager) AssetApprovalPut(owner [20]byte, operator [20]byte, approved bool) error {
	key := hashKey(assetApprovalPrefix, owner[:], operator[:])
	if !approved {
		return m.db.Delete(key)
	}
	return m.putRLP(key, true)
}

func (m *Manager) AssetSupplyGet(workID uint64) (uint64, error) {
	var supply uint64
	ok, err := m.getRLP(hashKey(assetSupplyPrefix, uintKey(workID)), &supply)
	if err != nil || !ok {
		return 0, err
	}
	return supply, nil
}

func (m *Manager) AssetSupplyPut(workID uint64, amount uint64) error {
	return m.putRLP(hashKey(assetSupplyPrefix, uintKey(workID)), amount)
}
