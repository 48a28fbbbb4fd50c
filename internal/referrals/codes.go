package referrals

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	knownCodesCapacity = 1_000_000
	knownCodesFPR      = 0.001
)

// CodeGenerator produces random referral codes.
type CodeGenerator interface {
	Generate() (string, error)
}

type randomCodes struct {
	prefix string
	length int
}

// NewCodeGenerator returns a generator of prefix + length characters from [A-Z0-9].
func NewCodeGenerator(prefix string, length int) CodeGenerator {
	if length <= 0 {
		length = 8
	}
	return randomCodes{prefix: prefix, length: length}
}

func (g randomCodes) Generate() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	var b strings.Builder
	b.Grow(len(g.prefix) + g.length)
	b.WriteString(g.prefix)
	for i := 0; i < g.length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// knownCodes is a process-local probabilistic set of issued codes. A hit
// means "probably taken" and the caller draws again; the database remains
// the authority through its primary key.
type knownCodes struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
}

func newKnownCodes() *knownCodes {
	return &knownCodes{filter: bloom.NewWithEstimates(knownCodesCapacity, knownCodesFPR)}
}

func (k *knownCodes) MaybeTaken(code string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.filter.TestString(code)
}

func (k *knownCodes) Add(code string) {
	k.mu.Lock()
	k.filter.AddString(code)
	k.mu.Unlock()
}

// Warm loads every stored code into the filter.
func (s *Service) Warm(ctx context.Context) (int, error) {
	n := 0
	err := s.repo.EachCode(ctx, func(code string) {
		s.known.Add(code)
		n++
	})
	return n, err
}

// NormalizeCode uppercases and trims user-entered codes.
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
