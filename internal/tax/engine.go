// Package tax computes realized and unrealized capital-gains cost basis
// from ledger transactions, matching dispositions against acquisition
// lots under FIFO or LIFO.
package tax

import (
	"math"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/vietddude/basis/internal/core/domain"
)

// Options controls a cost-basis run.
type Options struct {
	Method       domain.Method
	TaxYear      int
	Jurisdiction string
}

// Engine matches dispositions against acquisition lots. It performs no
// I/O and raises no typed errors: a missing price is a zero-cost lot and
// an over-disposal silently exhausts the available lots. Callers needing
// strict validation layer their own checks on top.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// lot is one acquisition's remaining quantity and basis during matching.
type lot struct {
	entry    *domain.CostBasisEntry
	amount   float64
	costUSD  float64
	disposed bool
}

// Calculate produces one result per distinct token symbol in the input.
//
// Dispositions are walked in caller-supplied order; the engine does not
// re-sort them, so lot consumption reflects the caller's ordering even
// when that is not chronological.
func (e *Engine) Calculate(txs []domain.LedgerTransaction, opts Options) []domain.CostBasisResult {
	method := opts.Method
	if method == "" {
		method = domain.MethodFIFO
	}

	// Group by token, preserving first-appearance order.
	var tokens []string
	byToken := map[string][]domain.LedgerTransaction{}
	for _, tx := range txs {
		if _, seen := byToken[tx.TokenSymbol]; !seen {
			tokens = append(tokens, tx.TokenSymbol)
		}
		byToken[tx.TokenSymbol] = append(byToken[tx.TokenSymbol], tx)
	}

	results := make([]domain.CostBasisResult, 0, len(tokens))
	for _, token := range tokens {
		results = append(results, e.calculateToken(token, byToken[token], method))
	}
	return results
}

func (e *Engine) calculateToken(token string, txs []domain.LedgerTransaction, method domain.Method) domain.CostBasisResult {
	var acquisitions, dispositions []domain.LedgerTransaction
	for _, tx := range txs {
		switch {
		case tx.Type.IsAcquisition():
			acquisitions = append(acquisitions, tx)
		case tx.Type.IsDisposalEligible() && parseAmount(tx.Amount) < 0:
			// Outgoing only: a non-negative transfer/swap is an incoming
			// leg already captured by an acquisition-typed record.
			dispositions = append(dispositions, tx)
		}
	}

	// FIFO consumes the oldest lot first, LIFO the newest. Stable sort:
	// equal timestamps keep input order.
	sort.SliceStable(acquisitions, func(i, j int) bool {
		if method == domain.MethodLIFO {
			return acquisitions[i].Timestamp.After(acquisitions[j].Timestamp)
		}
		return acquisitions[i].Timestamp.Before(acquisitions[j].Timestamp)
	})

	lots := make([]*lot, 0, len(acquisitions))
	totalAcquired := 0.0
	for _, acq := range acquisitions {
		amount := math.Abs(parseAmount(acq.Amount))
		price := 0.0
		if acq.PriceUSD != nil {
			price = *acq.PriceUSD
		}
		totalAcquired += amount
		lots = append(lots, &lot{
			entry: &domain.CostBasisEntry{
				ID:              uuid.NewString(),
				TransactionID:   acq.ID,
				TokenSymbol:     token,
				AcquisitionDate: acq.Timestamp,
				Method:          method,
				TaxYear:         acq.Timestamp.Year(),
			},
			amount:  amount,
			costUSD: amount * price,
		})
	}

	var disposalEntries []*domain.CostBasisEntry
	totalDisposed := 0.0
	realized := 0.0

	for _, disp := range dispositions {
		remaining := math.Abs(parseAmount(disp.Amount))
		price := 0.0
		if disp.PriceUSD != nil {
			price = *disp.PriceUSD
		}

		for _, l := range lots {
			if remaining <= 0 {
				break
			}
			if l.disposed || l.amount == 0 {
				continue
			}

			// Unit cost before any mutation of this lot.
			unitCost := 0.0
			if l.amount > 0 {
				unitCost = l.costUSD / l.amount
			}

			if l.amount <= remaining {
				// Entire lot consumed.
				used := l.amount
				gain := (price - unitCost) * used
				disposalEntries = append(disposalEntries, &domain.CostBasisEntry{
					ID:              uuid.NewString(),
					TransactionID:   disp.ID,
					TokenSymbol:     token,
					Amount:          formatAmount(-used),
					CostBasisUSD:    gain,
					AcquisitionDate: l.entry.AcquisitionDate,
					Method:          method,
					TaxYear:         disp.Timestamp.Year(),
					IsDisposed:      true,
					DisposalTxnID:   disp.ID,
				})
				realized += gain
				totalDisposed += used
				remaining -= used
				l.amount = 0
				l.costUSD = 0
				l.disposed = true
				continue
			}

			// Partial consumption: the lot survives with its basis
			// scaled to the remaining quantity.
			used := remaining
			gain := (price - unitCost) * used
			disposalEntries = append(disposalEntries, &domain.CostBasisEntry{
				ID:              uuid.NewString(),
				TransactionID:   disp.ID,
				TokenSymbol:     token,
				Amount:          formatAmount(-used),
				CostBasisUSD:    gain,
				AcquisitionDate: l.entry.AcquisitionDate,
				Method:          method,
				TaxYear:         disp.Timestamp.Year(),
				IsDisposed:      true,
				DisposalTxnID:   disp.ID,
			})
			realized += gain
			totalDisposed += used
			l.amount -= used
			l.costUSD = unitCost * l.amount
			remaining = 0
		}
		// Any leftover disposal amount found no lots; accepted silently.
	}

	remainingBasis := 0.0
	entries := make([]*domain.CostBasisEntry, 0, len(lots)+len(disposalEntries))
	for _, l := range lots {
		l.entry.Amount = formatAmount(l.amount)
		l.entry.CostBasisUSD = l.costUSD
		l.entry.IsDisposed = l.disposed
		if !l.disposed {
			remainingBasis += l.costUSD
		}
		entries = append(entries, l.entry)
	}
	entries = append(entries, disposalEntries...)

	return domain.CostBasisResult{
		TokenSymbol:       token,
		TotalAcquired:     formatAmount(totalAcquired),
		TotalDisposed:     formatAmount(totalDisposed),
		RemainingQuantity: formatAmount(totalAcquired - totalDisposed),
		RealizedGainLoss:  realized,
		CostBasis:         remainingBasis,
		Entries:           entries,
	}
}

func parseAmount(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func formatAmount(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
