package rangebot

import "math/big"

// topUpAmount sizes a gas-reserve unwrap. Zero means no top-up is
// needed or possible. When the native balance is under the floor, the
// bot unwraps enough wrapped reserve for ReserveMultiple worst-case
// roundtrips, or failing that just the immediate deficit, whichever
// the wallet can afford.
func topUpAmount(native, wrapped *big.Int, cfg Config) *big.Int {
	if cfg.MinNativeWei == nil || native.Cmp(cfg.MinNativeWei) >= 0 {
		return nil
	}
	if wrapped == nil || wrapped.Sign() <= 0 {
		return nil
	}

	deficit := new(big.Int).Sub(cfg.MinNativeWei, native)

	want := new(big.Int)
	if cfg.WorstCaseGasWei != nil && cfg.ReserveMultiple > 0 {
		want.Mul(cfg.WorstCaseGasWei, big.NewInt(cfg.ReserveMultiple))
	}
	if want.Cmp(deficit) < 0 {
		want.Set(deficit)
	}

	if want.Cmp(wrapped) > 0 {
		if deficit.Cmp(wrapped) > 0 {
			// Can't even cover the deficit: unwrap everything we have.
			return new(big.Int).Set(wrapped)
		}
		return deficit
	}
	return want
}
