package market

import "math/big"

// The fee deduction and split arithmetic live here as an explicit policy.
// The platform fee comes off the top in basis points, then the net proceeds
// are divided by the percentage split recorded at mint. Observed reference
// behaviour: a 10000 sale with a 60/40 split and a 1000 bps fee credits the
// creator 5400 and the collaborator 3600.

const (
	feeDenominator   = 10_000
	splitDenominator = 100
	maxFeeBps        = 10_000
)

// platformFee returns the portion of the paid amount retained by the fee
// collector.
func platformFee(paid *big.Int, feeBps uint32) *big.Int {
	if paid == nil || paid.Sign() <= 0 || feeBps == 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(paid, new(big.Int).SetUint64(uint64(feeBps)))
	return fee.Div(fee, big.NewInt(feeDenominator))
}

// splitProceeds divides the paid amount into the fee, the creator share and
// the collaborator share. Rounding dust from the percentage division goes to
// the collaborator so the three parts always sum to exactly paid.
func splitProceeds(paid *big.Int, feeBps uint32, creatorSplit uint8) (fee, creatorShare, collaboratorShare *big.Int) {
	fee = platformFee(paid, feeBps)
	net := new(big.Int).Sub(cloneBigInt(paid), fee)
	creatorShare = new(big.Int).Mul(net, big.NewInt(int64(creatorSplit)))
	creatorShare.Div(creatorShare, big.NewInt(splitDenominator))
	collaboratorShare = new(big.Int).Sub(net, creatorShare)
	return fee, creatorShare, collaboratorShare
}

// sellerProceeds divides a second-hand sale between the fee collector and the
// relisting seller. The seller takes the full net amount; the mint-time
// creator split applies to primary sales only.
func sellerProceeds(paid *big.Int, feeBps uint32) (fee, seller *big.Int) {
	fee = platformFee(paid, feeBps)
	seller = new(big.Int).Sub(cloneBigInt(paid), fee)
	return fee, seller
}
