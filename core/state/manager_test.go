package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"editionmarket/core/types"
	"editionmarket/native/assets"
	"editionmarket/native/market"
	"editionmarket/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewManager(db)
}

func testAddr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

func TestAccountRoundTrip(t *testing.T) {
	manager := newTestManager(t)
	addr := testAddr(0x01)

	acc, err := manager.GetAccount(addr[:])
	require.NoError(t, err)
	require.Zero(t, acc.Balance.Sign())

	acc.Balance = big.NewInt(123_456)
	acc.Nonce = 7
	require.NoError(t, manager.PutAccount(addr[:], acc))

	loaded, err := manager.GetAccount(addr[:])
	require.NoError(t, err)
	require.Zero(t, loaded.Balance.Cmp(big.NewInt(123_456)))
	require.Equal(t, uint64(7), loaded.Nonce)
}

func TestPutNilAccountStoresZeroed(t *testing.T) {
	manager := newTestManager(t)
	addr := testAddr(0x02)
	require.NoError(t, manager.PutAccount(addr[:], nil))
	loaded, err := manager.GetAccount(addr[:])
	require.NoError(t, err)
	require.Zero(t, loaded.Balance.Sign())
	require.Zero(t, loaded.Nonce)
}

func TestWorkRoundTrip(t *testing.T) {
	manager := newTestManager(t)
	work := &market.Work{
		ID:                3,
		Creator:           testAddr(0x01),
		Collaborator:      testAddr(0x02),
		CreatorSplit:      60,
		CollaboratorSplit: 40,
		EditionCount:      20,
		SaleMode:          market.SaleAuction,
		SaleWindowHours:   24,
		Price:             big.NewInt(10_000),
		FeeBps:            1_000,
		MetadataURI:       "ipfs://work",
		MintedAt:          1_700_000_000,
	}
	require.NoError(t, manager.MarketWorkPut(work))

	loaded, ok, err := manager.MarketWorkGet(3)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, work.ID, loaded.ID)
	require.Equal(t, work.Creator, loaded.Creator)
	require.Equal(t, work.SaleMode, loaded.SaleMode)
	require.Equal(t, work.SaleWindowHours, loaded.SaleWindowHours)
	require.Zero(t, loaded.Price.Cmp(work.Price))
	require.Equal(t, work.MintedAt, loaded.MintedAt)
	require.Equal(t, work.MetadataURI, loaded.MetadataURI)

	_, ok, err = manager.MarketWorkGet(99)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOrderRoundTrip(t *testing.T) {
	manager := newTestManager(t)
	order := &market.Order{
		ID:           5,
		Kind:         market.OrderSecondHand,
		Owner:        testAddr(0x04),
		WorkID:       3,
		EditionIndex: 10,
		Remaining:    1,
		Price:        big.NewInt(12_000),
		CreatedAt:    1_700_000_500,
	}
	require.NoError(t, manager.MarketOrderPut(order))

	loaded, ok, err := manager.MarketOrderGet(5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, order.Kind, loaded.Kind)
	require.Equal(t, order.EditionIndex, loaded.EditionIndex)
	require.Zero(t, loaded.Price.Cmp(order.Price))
	require.Equal(t, order.CreatedAt, loaded.CreatedAt)
}

func TestEditionRoundTrip(t *testing.T) {
	manager := newTestManager(t)
	edition := &market.Edition{
		WorkID:      3,
		Index:       10,
		Holder:      market.CustodyHolder(),
		Status:      market.EditionHeld,
		ListedPrice: big.NewInt(12_000),
		ActiveOrder: 5,
		SoldAt:      1_700_000_400,
	}
	require.NoError(t, manager.MarketEditionPut(edition))

	loaded, ok, err := manager.MarketEditionGet(3, 10)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, loaded.Holder.IsCustody())
	require.Equal(t, market.EditionHeld, loaded.Status)
	require.Zero(t, loaded.ListedPrice.Cmp(big.NewInt(12_000)))
	require.Equal(t, uint64(5), loaded.ActiveOrder)
	require.Equal(t, edition.SoldAt, loaded.SoldAt)

	// A nil listed price survives the trip as nil, not zero.
	edition.ListedPrice = nil
	require.NoError(t, manager.MarketEditionPut(edition))
	loaded, ok, err = manager.MarketEditionGet(3, 10)
	require.NoError(t, err)
	require.True(t, ok)
	require.Nil(t, loaded.ListedPrice)
}

func TestBidLifecycle(t *testing.T) {
	manager := newTestManager(t)
	bid := &market.Bid{
		WorkID:       3,
		EditionIndex: 10,
		Bidder:       testAddr(0x06),
		Amount:       big.NewInt(10_001),
		PlacedAt:     1_700_000_100,
	}
	require.NoError(t, manager.MarketBidPut(bid))

	loaded, ok, err := manager.MarketBidGet(3, 10)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, bid.Bidder, loaded.Bidder)
	require.Zero(t, loaded.Amount.Cmp(bid.Amount))

	require.NoError(t, manager.MarketBidDelete(3, 10))
	_, ok, err = manager.MarketBidGet(3, 10)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRefundLedger(t *testing.T) {
	manager := newTestManager(t)
	bidder := testAddr(0x06)

	pending, err := manager.MarketRefundGet(3, 10, bidder)
	require.NoError(t, err)
	require.Zero(t, pending.Sign())

	require.NoError(t, manager.MarketRefundPut(3, 10, bidder, big.NewInt(10_001)))
	pending, err = manager.MarketRefundGet(3, 10, bidder)
	require.NoError(t, err)
	require.Zero(t, pending.Cmp(big.NewInt(10_001)))

	// Zeroing the refund removes the record entirely.
	require.NoError(t, manager.MarketRefundPut(3, 10, bidder, big.NewInt(0)))
	pending, err = manager.MarketRefundGet(3, 10, bidder)
	require.NoError(t, err)
	require.Zero(t, pending.Sign())
}

func TestCountersAdvance(t *testing.T) {
	manager := newTestManager(t)
	for want := uint64(1); want <= 3; want++ {
		id, err := manager.MarketNextWorkID()
		require.NoError(t, err)
		require.Equal(t, want, id)
	}
	// Order ids advance independently of work ids.
	id, err := manager.MarketNextOrderID()
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)
}

func TestCreatorApproval(t *testing.T) {
	manager := newTestManager(t)
	creator := testAddr(0x02)

	approved, err := manager.MarketCreatorApproved(creator)
	require.NoError(t, err)
	require.False(t, approved)

	require.NoError(t, manager.MarketCreatorApprove(creator))
	approved, err = manager.MarketCreatorApproved(creator)
	require.NoError(t, err)
	require.True(t, approved)
}

func TestMaxEditionsPolicy(t *testing.T) {
	manager := newTestManager(t)

	_, ok, err := manager.MarketMaxEditionsGet()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, manager.MarketMaxEditionsPut(100))
	max, ok, err := manager.MarketMaxEditionsGet()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(100), max)
}

func TestAssetState(t *testing.T) {
	manager := newTestManager(t)
	owner := testAddr(0x04)
	operator := testAddr(0xee)

	balance, err := manager.AssetBalanceGet(owner, 3)
	require.NoError(t, err)
	require.Zero(t, balance)

	require.NoError(t, manager.AssetBalancePut(owner, 3, 2))
	balance, err = manager.AssetBalanceGet(owner, 3)
	require.NoError(t, err)
	require.Equal(t, uint64(2), balance)

	// A zero balance deletes the record instead of storing zero.
	require.NoError(t, manager.AssetBalancePut(owner, 3, 0))
	balance, err = manager.AssetBalanceGet(owner, 3)
	require.NoError(t, err)
	require.Zero(t, balance)

	require.NoError(t, manager.AssetApprovalPut(owner, operator, true))
	approved, err := manager.AssetApprovalGet(owner, operator)
	require.NoError(t, err)
	require.True(t, approved)
	require.NoError(t, manager.AssetApprovalPut(owner, operator, false))
	approved, err = manager.AssetApprovalGet(owner, operator)
	require.NoError(t, err)
	require.False(t, approved)

	require.NoError(t, manager.AssetSupplyPut(3, 20))
	supply, err := manager.AssetSupplyGet(3)
	require.NoError(t, err)
	require.Equal(t, uint64(20), supply)
}

// TestManagerBacksMarketEngine drives a full primary sale through the real
// engine and asset ledger with the manager as the persistence backend.
func TestManagerBacksMarketEngine(t *testing.T) {
	manager := newTestManager(t)
	admin := testAddr(0x01)
	creator := testAddr(0x02)
	collaborator := testAddr(0x03)
	buyer := testAddr(0x04)
	vault := testAddr(0xee)
	collector := testAddr(0xff)

	ledger := assets.NewLedger()
	ledger.SetState(manager)

	engine := market.NewEngine()
	engine.SetState(manager)
	engine.SetLedger(ledger)
	engine.SetAdmin(admin)
	engine.SetEscrowVault(vault)
	engine.SetFeeCollector(collector)

	require.NoError(t, engine.SetMaxEditions(admin, 100))
	require.NoError(t, engine.ApproveCreators(admin, [][20]byte{creator}))

	work, order, err := engine.Mint(creator, market.MintParams{
		EditionCount:      20,
		MetadataURI:       "ipfs://work",
		Creator:           creator,
		Collaborator:      collaborator,
		CreatorSplit:      60,
		CollaboratorSplit: 40,
		SaleMode:          market.SaleFixedPrice,
		Price:             big.NewInt(10_000),
		FeeBps:            1_000,
	})
	require.NoError(t, err)

	require.NoError(t, manager.PutAccount(buyer[:], &types.Account{Balance: big.NewInt(10_000)}))
	require.NoError(t, engine.BuyNow(buyer, order.ID, 10, big.NewInt(10_000)))

	holder, err := engine.CurrentHolder(work.ID, 10)
	require.NoError(t, err)
	require.True(t, holder.Is(buyer))

	creatorAcc, err := manager.GetAccount(creator[:])
	require.NoError(t, err)
	require.Zero(t, creatorAcc.Balance.Cmp(big.NewInt(5_400)))

	units, err := ledger.BalanceOf(buyer, work.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(1), units)
}
