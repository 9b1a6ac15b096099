package lipsync

import "sort"

// ChannelSet is a sorted, duplicate-free set of morph channel indices.
type ChannelSet []int

// NewChannelSet sorts and dedupes channels. No channels gives a nil set.
func NewChannelSet(channels ...int) ChannelSet {
	if len(channels) == 0 {
		return nil
	}
	out := make(ChannelSet, 0, len(channels))
	seen := make(map[int]struct{}, len(channels))
	for _, c := range channels {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Ints(out)
	return out
}

// Contains reports whether ch is in the set.
func (s ChannelSet) Contains(ch int) bool {
	i := sort.SearchInts(s, ch)
	return i < len(s) && s[i] == ch
}

// DefaultChannel is closed lips, used for visemes missing from a table.
const DefaultChannel = 6

// DefaultChannelTable matches the morph order of the expression capture: frame
// n+1 of the sequence is morph channel n.
var DefaultChannelTable = map[Viseme][]int{
	VisemeOpenVowel:        {1},
	VisemeWideVowel:        {2},
	VisemeRoundVowel:       {3},
	VisemeLabiodental:      {4},
	VisemeDental:           {1, 5},
	VisemeBilabial:         {6},
	VisemeSibilant:         {7},
	VisemeRhotic:           {8},
	VisemeLateral:          {9},
	VisemeAlveolarVoiced:   {10},
	VisemeAlveolarUnvoiced: {11},
	VisemeNasal:            {12},
	VisemeVelar:            {10, 14},
	VisemePalatal:          {15},
}

// WeightMapper resolves visemes to the morph channels they drive.
type WeightMapper struct {
	targets map[Viseme]ChannelSet
}

// NewWeightMapper builds a mapper from table, or DefaultChannelTable when nil.
// Visemes with no channels fall back to DefaultChannel.
func NewWeightMapper(table map[Viseme][]int) *WeightMapper {
	if table == nil {
		table = DefaultChannelTable
	}
	m := &WeightMapper{targets: make(map[Viseme]ChannelSet, len(table))}
	for v, chans := range table {
		if set := NewChannelSet(chans...); len(set) > 0 {
			m.targets[v] = set
		}
	}
	return m
}

// TargetsFor never returns an empty set.
func (m *WeightMapper) TargetsFor(v Viseme) ChannelSet {
	if set, ok := m.targets[v]; ok {
		return set
	}
	return ChannelSet{DefaultChannel}
}

// Union merges the channel targets of every viseme.
func (m *WeightMapper) Union(visemes ...Viseme) ChannelSet {
	var all []int
	for _, v := range visemes {
		all = append(all, m.TargetsFor(v)...)
	}
	return NewChannelSet(all...)
}
