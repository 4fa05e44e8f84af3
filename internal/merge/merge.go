// Package merge groups raw per-source rows sharing a (parser, id) key and
// asks the owning adapter to collapse them into the events that survive
// into the ledger.
package merge

import (
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/sklarsa/bitcoin-gains/internal/ledger"
	"github.com/sklarsa/bitcoin-gains/internal/source"
)

type key struct {
	parser string
	id     string
}

// Merge groups rows by (Parser, ID) and replaces each group with the
// result of the owning adapter's Merge. parsersByName looks up the Parser
// implementation responsible for a given Parser name so its Merge method
// can be invoked; rows whose Parser name is absent from parsersByName pass
// through ungrouped (defensive: should not happen in practice).
func Merge(rows []*ledger.Transaction, parsersByName map[string]source.Parser) ([]*ledger.Transaction, error) {
	groups := make(map[key][]*ledger.Transaction)
	var order []key

	for _, t := range rows {
		k := key{parser: t.Parser, id: t.ID}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], t)
	}

	var out []*ledger.Transaction
	for _, k := range order {
		group := groups[k]
		p, ok := parsersByName[k.parser]
		if !ok {
			log.WithField("parser", k.parser).Warn("merge: unknown parser for group, passing through")
			out = append(out, group...)
			continue
		}
		merged, err := p.Merge(group)
		if err != nil {
			return nil, err
		}
		out = append(out, merged...)
	}

	sort.Slice(out, ledger.ByOrder(out))
	return out, nil
}
