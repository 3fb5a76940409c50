package bingo

import (
	"encoding/binary"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	LineCount      = 3
	ColumnCount    = 9
	NumbersPerLine = 5
	MaxNumber      = 90
)

// Card holds three lines of five numbers, each line in column order.
type Card [LineCount][NumbersPerLine]uint8

// Numbers returns every number on the card.
func (c Card) Numbers() []uint8 {
	out := make([]uint8, 0, LineCount*NumbersPerLine)
	for _, line := range c {
		out = append(out, line[:]...)
	}
	return out
}

// String renders a card as "l0n0,l0n1,...;l1n0,...".
func (c Card) String() string {
	var b strings.Builder
	for l, line := range c {
		if l > 0 {
			b.WriteByte(';')
		}
		for i, n := range line {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Itoa(int(n)))
		}
	}
	return b.String()
}

// Valid reports whether every number is in its column range, lines are
// strictly increasing and no number repeats on the card.
func (c Card) Valid() bool {
	seen := make(map[uint8]struct{}, LineCount*NumbersPerLine)
	for _, line := range c {
		prevCol := -1
		for _, n := range line {
			col := columnOf(n)
			if col < 0 || col <= prevCol {
				return false
			}
			if _, dup := seen[n]; dup {
				return false
			}
			seen[n] = struct{}{}
			prevCol = col
		}
	}
	return true
}

// columnRange returns the inclusive number range of column c.
func columnRange(c int) (lo, hi uint8) {
	switch c {
	case 0:
		return 1, 9
	case ColumnCount - 1:
		return 80, 90
	default:
		return uint8(10 * c), uint8(10*c + 9)
	}
}

func columnOf(n uint8) int {
	switch {
	case n < 1 || n > MaxNumber:
		return -1
	case n < 10:
		return 0
	case n >= 80:
		return ColumnCount - 1
	default:
		return int(n / 10)
	}
}

// nextSeed advances the seed chain: keccak256(seed || player || block).
func nextSeed(seed common.Hash, player common.Address, block uint64) common.Hash {
	var height [8]byte
	binary.BigEndian.PutUint64(height[:], block)
	return crypto.Keccak256Hash(seed.Bytes(), player.Bytes(), height[:])
}

// stream derives an unbounded sequence of draws from one seed.
type stream struct {
	seed    common.Hash
	counter uint64
}

func (s *stream) intn(n int) int {
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], s.counter)
	s.counter++
	h := crypto.Keccak256(s.seed.Bytes(), ctr[:])
	return int(binary.BigEndian.Uint64(h[:8]) % uint64(n))
}

func (s *stream) shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		swap(i, s.intn(i+1))
	}
}

// newCard draws a card from seed. Each line takes five distinct columns and
// one unused number from each.
func newCard(seed common.Hash) Card {
	rng := &stream{seed: seed}
	used := make(map[uint8]struct{}, LineCount*NumbersPerLine)

	var card Card
	for l := 0; l < LineCount; l++ {
		cols := make([]int, ColumnCount)
		for i := range cols {
			cols[i] = i
		}
		rng.shuffle(len(cols), func(i, j int) { cols[i], cols[j] = cols[j], cols[i] })
		cols = cols[:NumbersPerLine]
		sort.Ints(cols)

		for i, c := range cols {
			lo, hi := columnRange(c)
			span := int(hi-lo) + 1
			pick := rng.intn(span)
			for {
				n := lo + uint8(pick)
				if _, taken := used[n]; !taken {
					used[n] = struct{}{}
					card[l][i] = n
					break
				}
				pick = (pick + 1) % span
			}
		}
	}
	return card
}

// callOrder returns 1..MaxNumber in a seed-driven order.
func callOrder(seed common.Hash) []uint8 {
	order := make([]uint8, MaxNumber)
	for i := range order {
		order[i] = uint8(i + 1)
	}
	rng := &stream{seed: seed}
	rng.shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	return order
}
