package snapshot

import (
	"fmt"

	"github.com/driftlake-labs/driftlake/pkg/core"
)

// changed reports whether the source row is a newer version of the current
// open history row.
func (m *merger) changed(src, cur core.Row) (bool, error) {
	if m.cfg.Strategy == StrategyTimestamp {
		cmp, err := core.Compare(src[m.srcUpdatedAt], cur[m.curUpdatedAt])
		if err != nil {
			return false, fmt.Errorf("comparing %s: %w", m.srcUpdatedAt, err)
		}
		// only strictly newer counts; equal timestamps mean no new version
		return cmp > 0, nil
	}

	for _, pair := range m.checkPairs {
		sv := src[pair[0]]
		var cv core.Value
		if pair[1] != "" {
			cv = cur[pair[1]]
		}
		eq, err := core.Equal(sv, cv)
		if err != nil {
			return false, fmt.Errorf("comparing %s: %w", pair[0], err)
		}
		if !eq {
			return true, nil
		}
	}
	return false, nil
}

// validFrom computes the opening bound of a fresh history row. The
// timestamp strategy uses the source's own updated_at instant; the check
// strategy has no per-row instant and uses the run timestamp.
func (m *merger) validFrom(src core.Row) (core.Value, error) {
	if m.cfg.Strategy != StrategyTimestamp {
		return m.runAt, nil
	}
	v := src[m.srcUpdatedAt]
	if k := v.Kind(); k != core.KindTimestamp && k != core.KindDate {
		return core.Value{}, fmt.Errorf("column %s: %w", m.srcUpdatedAt,
			&core.TypeMismatchError{Left: k, Right: core.KindTimestamp})
	}
	return v, nil
}
