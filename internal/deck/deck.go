// Package deck generates provably-valid symbol-matching decks using a
// projective-plane-of-order-n construction: for prime n, it produces
// n*n+n+1 cards of n+1 symbols such that any two cards share exactly one
// symbol.
package deck

import "github.com/pkg/errors"

// ErrInsufficientSymbols is returned when the supplied pool is smaller than
// the deck the requested order requires.
var ErrInsufficientSymbols = errors.New("deck: insufficient symbols in pool")

// ErrInvalidOrder is returned for a non-prime or non-positive order.
var ErrInvalidOrder = errors.New("deck: order must be a positive prime")

// ErrMalformedDeck is returned by Validate when the pairwise-unique-match
// invariant does not hold. The generator treats this as a hard postcondition,
// never an optimization to skip.
var ErrMalformedDeck = errors.New("deck: pairwise-intersection invariant violated")

// Symbol is an iconographic unit a Card may carry. Display is opaque payload
// the client renders; the server never interprets it.
type Symbol struct {
	ID      int         `json:"id"`
	Display interface{} `json:"display"`
}

// Card is an immutable, ordered set of exactly n+1 distinct Symbols.
type Card struct {
	ID      int      `json:"id"`
	Symbols []Symbol `json:"symbols"`
}

// HasSymbol reports whether the card carries the given symbol id.
func (c Card) HasSymbol(symbolID int) bool {
	for _, s := range c.Symbols {
		if s.ID == symbolID {
			return true
		}
	}
	return false
}

// Deck is an ordered sequence of Cards.
type Deck []Card

// CardCount returns n*n+n+1, the number of cards a plane of order n yields.
func CardCount(n int) int {
	return n*n + n + 1
}

// SymbolsPerCard returns n+1, the number of symbols on every card of a plane
// of order n.
func SymbolsPerCard(n int) int {
	return n + 1
}

// Generate builds a deck of CardCount(n) cards, each carrying
// SymbolsPerCard(n) symbols drawn from pool, satisfying the invariant that
// every pair of cards shares exactly one symbol. n must be prime (the
// construction below is only guaranteed valid for a prime modulus).
func Generate(n int, pool []Symbol) (Deck, error) {
	if n <= 1 || !isPrime(n) {
		return nil, ErrInvalidOrder
	}
	need := CardCount(n)
	if len(pool) < need {
		return nil, errors.Wrapf(ErrInsufficientSymbols, "need %d symbols, pool has %d", need, len(pool))
	}

	indices := make([][]int, 0, need)

	// 1. n+1 horizon cards: card i contains symbol 0 plus {1+j+i*n : 0<=j<n}.
	for i := 0; i <= n; i++ {
		card := make([]int, 0, n+1)
		card = append(card, 0)
		for j := 0; j < n; j++ {
			card = append(card, 1+j+i*n)
		}
		indices = append(indices, card)
	}

	// 2. n^2 body cards: card(i,j) contains symbol i+1 plus, for 0<=k<n,
	// symbol n+1 + n*k + ((i*k+j) mod n).
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			card := make([]int, 0, n+1)
			card = append(card, i+1)
			for k := 0; k < n; k++ {
				card = append(card, n+1+n*k+mod(i*k+j, n))
			}
			indices = append(indices, card)
		}
	}

	out := make(Deck, 0, need)
	for id, symbolIdxs := range indices {
		symbols := make([]Symbol, len(symbolIdxs))
		for pos, idx := range symbolIdxs {
			symbols[pos] = pool[idx]
		}
		out = append(out, Card{ID: id, Symbols: symbols})
	}

	if err := Validate(out, n); err != nil {
		return nil, err
	}
	return out, nil
}

// Validate checks the pairwise-unique-match invariant and cardinality
// postconditions. The generator always runs this before returning a deck;
// callers assembling a deck from persisted/transmitted data should too.
func Validate(d Deck, n int) error {
	if len(d) != CardCount(n) {
		return errors.Wrapf(ErrMalformedDeck, "expected %d cards, got %d", CardCount(n), len(d))
	}
	for _, c := range d {
		if len(c.Symbols) != SymbolsPerCard(n) {
			return errors.Wrapf(ErrMalformedDeck, "card %d has %d symbols, want %d", c.ID, len(c.Symbols), SymbolsPerCard(n))
		}
	}
	for i := 0; i < len(d); i++ {
		for j := i + 1; j < len(d); j++ {
			if sharedCount(d[i], d[j]) != 1 {
				return errors.Wrapf(ErrMalformedDeck, "cards %d and %d share %d symbols, want 1", d[i].ID, d[j].ID, sharedCount(d[i], d[j]))
			}
		}
	}
	return nil
}

func sharedCount(a, b Card) int {
	seen := make(map[int]struct{}, len(a.Symbols))
	for _, s := range a.Symbols {
		seen[s.ID] = struct{}{}
	}
	count := 0
	for _, s := range b.Symbols {
		if _, ok := seen[s.ID]; ok {
			count++
		}
	}
	return count
}

func mod(a, n int) int {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}

func isPrime(n int) bool {
	if n < 2 {
		return false
	}
	for i := 2; i*i <= n; i++ {
		if n%i == 0 {
			return false
		}
	}
	return true
}
