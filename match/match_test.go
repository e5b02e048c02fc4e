package match

import (
	"testing"

	"github.com/momentics/portals4ni/api"
	"github.com/momentics/portals4ni/event"
	"github.com/momentics/portals4ni/iobuf"
	"github.com/momentics/portals4ni/md"
	"github.com/momentics/portals4ni/pt"
	"github.com/stretchr/testify/require"
)

func newME(length uint64, matchBits uint64, opts api.MDOptions) *md.Entry {
	buf := make([]byte, length)
	return &md.Entry{
		Common: md.EntryCommon{Iovec: iobuf.Iovec{{Base: buf}}, Length: length, Options: opts | api.OptOpPut | api.OptOpGet},
		Match:  &md.MatchFields{MatchBits: matchBits, ID: api.ProcessID{NID: api.WildcardNID, PID: api.WildcardPID}},
	}
}

// TestMatch_PriorityBeforeOverflow exercises spec §4.4's tie-break: the
// priority list is scanned before overflow.
func TestMatch_PriorityBeforeOverflow(t *testing.T) {
	table := pt.NewTable(api.Handle{}, event.NewEQ(8), 0)
	low := newME(64, 0x1234, 0)
	high := newME(64, 0x1234, 0)
	table.Append(pt.OverflowList, low)
	table.Append(pt.PriorityList, high)

	res := Match(table, Request{MatchBits: 0x1234, Length: 16, Operation: api.OpPut})
	require.Equal(t, OutcomeMatched, res.Outcome)
	require.Same(t, high, res.Entry)
}

// TestMatch_EarliestAppendedWinsWithinList exercises the second half of
// spec §4.4's tie-break: within one list, earliest appended wins.
func TestMatch_EarliestAppendedWinsWithinList(t *testing.T) {
	table := pt.NewTable(api.Handle{}, event.NewEQ(8), 0)
	first := newME(64, 0x1, 0)
	second := newME(64, 0x1, 0)
	table.Append(pt.PriorityList, first)
	table.Append(pt.PriorityList, second)

	res := Match(table, Request{MatchBits: 0x1, Length: 16, Operation: api.OpPut})
	require.Same(t, first, res.Entry)
}

// TestMatch_NoTruncateRejectsOverlength exercises spec §8 scenario 2.
func TestMatch_NoTruncateRejectsOverlength(t *testing.T) {
	table := pt.NewTable(api.Handle{}, event.NewEQ(8), 0)
	e := newME(32, 0x1, api.OptNoTruncate)
	table.Append(pt.PriorityList, e)

	res := Match(table, Request{MatchBits: 0x1, Length: 40, Operation: api.OpGet})
	require.Equal(t, OutcomeNoMatch, res.Outcome)
}

func TestMatch_WithoutNoTruncateTruncates(t *testing.T) {
	table := pt.NewTable(api.Handle{}, event.NewEQ(8), 0)
	e := newME(32, 0x1, 0)
	table.Append(pt.PriorityList, e)

	res := Match(table, Request{MatchBits: 0x1, Length: 40, Operation: api.OpGet})
	require.Equal(t, OutcomeMatched, res.Outcome)
	require.Equal(t, uint64(32), e.Common.Consumed)
}

func TestMatch_PTDisabledDrops(t *testing.T) {
	table := pt.NewTable(api.Handle{}, event.NewEQ(8), 0)
	table.Disable()
	res := Match(table, Request{MatchBits: 0x1, Length: 1, Operation: api.OpPut})
	require.Equal(t, OutcomePTDisabled, res.Outcome)
}

func TestMatch_UseOnceAutoUnlinks(t *testing.T) {
	table := pt.NewTable(api.Handle{}, event.NewEQ(8), 0)
	e := newME(16, 0x1, api.OptUseOnce)
	table.Append(pt.PriorityList, e)

	res := Match(table, Request{MatchBits: 0x1, Length: 16, Operation: api.OpPut})
	require.True(t, res.AutoUnlinked)

	res2 := Match(table, Request{MatchBits: 0x1, Length: 16, Operation: api.OpPut})
	require.Equal(t, OutcomeNoMatch, res2.Outcome)
}
