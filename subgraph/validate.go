package subgraph

import (
	"github.com/pkg/errors"
)

// ErrMalformedRecord is returned for records that do not have the shape the
// crawler relies on. It is never retried.
var ErrMalformedRecord = errors.New("malformed record")

func malformed(format string, args ...interface{}) error {
	return errors.Wrapf(ErrMalformedRecord, format, args...)
}

// required checks that every named value is set, names and values alternate.
func required(kind, id string, fields ...string) error {
	for i := 0; i+1 < len(fields); i += 2 {
		if fields[i+1] == "" {
			return malformed("%s %s: missing %s", kind, id, fields[i])
		}
	}
	return nil
}

func (t *Token) Validate() error {
	if t == nil {
		return malformed("missing token")
	}
	return required("token", t.ID, "id", t.ID, "symbol", t.Symbol)
}

func (p *Pair) Validate() error {
	if p == nil {
		return malformed("missing pair")
	}
	if err := required("pair", p.ID, "id", p.ID); err != nil {
		return err
	}
	if err := p.Token0.Validate(); err != nil {
		return errors.Wrapf(err, "pair %s token0", p.ID)
	}
	if err := p.Token1.Validate(); err != nil {
		return errors.Wrapf(err, "pair %s token1", p.ID)
	}
	return nil
}

func (p *PairSnapshot) Validate() error {
	if err := p.Pair.Validate(); err != nil {
		return err
	}
	return required("pair", p.ID,
		"reserve0", p.Reserve0,
		"reserve1", p.Reserve1,
		"totalSupply", p.TotalSupply,
		"reserveETH", p.ReserveETH,
		"reserveUSD", p.ReserveUSD,
		"trackedReserveETH", p.TrackedReserveETH,
		"token0Price", p.Token0Price,
		"token1Price", p.Token1Price,
		"volumeToken0", p.VolumeToken0,
		"volumeToken1", p.VolumeToken1,
		"volumeUSD", p.VolumeUSD,
		"untrackedVolumeUSD", p.UntrackedVolumeUSD,
	)
}

func (t *Transaction) Validate() error {
	if err := required("transaction", t.ID, "id", t.ID); err != nil {
		return err
	}

	for i := range t.Mints {
		if err := t.Mints[i].Validate(); err != nil {
			return errors.Wrapf(err, "transaction %s", t.ID)
		}
	}
	for i := range t.Burns {
		if err := t.Burns[i].Validate(); err != nil {
			return errors.Wrapf(err, "transaction %s", t.ID)
		}
	}
	for i := range t.Swaps {
		if err := t.Swaps[i].Validate(); err != nil {
			return errors.Wrapf(err, "transaction %s", t.ID)
		}
	}
	return nil
}

func (m *Mint) Validate() error {
	if err := required("mint", m.ID, "id", m.ID); err != nil {
		return err
	}
	if err := m.Pair.Validate(); err != nil {
		return errors.Wrapf(err, "mint %s", m.ID)
	}
	return required("mint", m.ID,
		"to", m.To,
		"sender", m.Sender,
		"liquidity", m.Liquidity,
		"amount0", m.Amount0,
		"amount1", m.Amount1,
		"amountUSD", m.AmountUSD,
	)
}

func (b *Burn) Validate() error {
	if err := required("burn", b.ID, "id", b.ID); err != nil {
		return err
	}
	if err := b.Pair.Validate(); err != nil {
		return errors.Wrapf(err, "burn %s", b.ID)
	}
	return required("burn", b.ID,
		"to", b.To,
		"sender", b.Sender,
		"liquidity", b.Liquidity,
		"amount0", b.Amount0,
		"amount1", b.Amount1,
		"amountUSD", b.AmountUSD,
	)
}

func (s *Swap) Validate() error {
	if err := required("swap", s.ID, "id", s.ID); err != nil {
		return err
	}
	if err := s.Pair.Validate(); err != nil {
		return errors.Wrapf(err, "swap %s", s.ID)
	}
	return required("swap", s.ID,
		"to", s.To,
		"sender", s.Sender,
		"amount0In", s.Amount0In,
		"amount1In", s.Amount1In,
		"amount0Out", s.Amount0Out,
		"amount1Out", s.Amount1Out,
		"amountUSD", s.AmountUSD,
	)
}

func (r *Identifier) Validate() error {
	return required("record", r.ID, "id", r.ID)
}
