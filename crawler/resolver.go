package crawler

import (
	"uniswap-v2-crawler/database"
	"uniswap-v2-crawler/subgraph"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// EntityResolver maps token and pair descriptors to stored rows, creating
// them on first sight. Rows it has seen during the run are kept in memory.
type EntityResolver struct {
	tokens map[string]*database.Token
	pairs  map[string]*database.Pair
}

func NewEntityResolver() *EntityResolver {
	return &EntityResolver{
		tokens: make(map[string]*database.Token),
		pairs:  make(map[string]*database.Pair),
	}
}

// Cached reports the number of tokens and pairs in the run cache.
func (r *EntityResolver) Cached() (tokens, pairs int) {
	return len(r.tokens), len(r.pairs)
}

// resolveScope resolves entities inside one database transaction. Rows it
// loads or creates only reach the run cache on commit, so a rolled back
// record never leaves ids in the cache that are not in the store.
type resolveScope struct {
	resolver *EntityResolver
	db       *gorm.DB
	stats    *WriteStats

	tokens map[string]*database.Token
	pairs  map[string]*database.Pair
}

func (r *EntityResolver) begin(tx *gorm.DB, stats *WriteStats) *resolveScope {
	return &resolveScope{
		resolver: r,
		db:       tx,
		stats:    stats,
		tokens:   make(map[string]*database.Token),
		pairs:    make(map[string]*database.Pair),
	}
}

func (s *resolveScope) commit() {
	for id, token := range s.tokens {
		s.resolver.tokens[id] = token
	}
	for id, pair := range s.pairs {
		s.resolver.pairs[id] = pair
	}
}

func (s *resolveScope) lookupToken(id string) *database.Token {
	if token, ok := s.tokens[id]; ok {
		return token
	}
	return s.resolver.tokens[id]
}

func (s *resolveScope) lookupPair(id string) *database.Pair {
	if pair, ok := s.pairs[id]; ok {
		return pair
	}
	return s.resolver.pairs[id]
}

// Token returns the stored token with the descriptor's id. An existing row
// is returned unchanged even if the descriptor carries other attributes.
func (s *resolveScope) Token(data *subgraph.Token) (*database.Token, error) {
	if token := s.lookupToken(data.ID); token != nil {
		return token, nil
	}

	token, err := database.FetchByID[database.Token](s.db, data.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching token %s", data.ID)
	}

	if token == nil {
		token = &database.Token{
			ID:     data.ID,
			Symbol: data.Symbol,
			Name:   data.Name,
		}
		if err := database.Create(s.db, token); err != nil {
			return nil, errors.Wrapf(err, "creating token %s", data.ID)
		}
		s.stats.Tokens++
	}

	s.tokens[token.ID] = token
	return token, nil
}

// Pair returns the stored pair with the descriptor's id, creating it and its
// two tokens when needed.
func (s *resolveScope) Pair(data *subgraph.Pair) (*database.Pair, error) {
	if pair := s.lookupPair(data.ID); pair != nil {
		return pair, nil
	}

	pair, err := database.FetchByID[database.Pair](s.db, data.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching pair %s", data.ID)
	}

	if pair == nil {
		token0, err := s.Token(data.Token0)
		if err != nil {
			return nil, err
		}
		token1, err := s.Token(data.Token1)
		if err != nil {
			return nil, err
		}

		pair = &database.Pair{
			ID:       data.ID,
			Token0ID: token0.ID,
			Token1ID: token1.ID,
		}
		if err := database.Create(s.db, pair); err != nil {
			return nil, errors.Wrapf(err, "creating pair %s", data.ID)
		}
		s.stats.Pairs++
	}

	s.pairs[pair.ID] = pair
	return pair, nil
}
