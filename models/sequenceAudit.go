package models

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"bitbucket.org/mmdatafocus/brewery_backend/config"
	"bitbucket.org/mmdatafocus/brewery_backend/sequence"
)

// ScopeAudit summarizes the codes of one numbering scope. Soft-deleted rows
// are included since their codes stay taken.
type ScopeAudit struct {
	Format      string   `json:"format"`
	Scope       string   `json:"scope"`
	Count       int      `json:"count"`
	MaxSequence int      `json:"max_sequence"`
	Gaps        []int    `json:"gaps"`
	Duplicates  []int    `json:"duplicates"`
	Malformed   []string `json:"malformed"`
}

func (a *ScopeAudit) Healthy() bool {
	return len(a.Duplicates) == 0 && len(a.Malformed) == 0
}

type auditRow struct {
	ScopeKey string
	Prefix   string
	Code     string
}

// AuditSequences checks every scope for gaps, reused sequence values and codes
// that don't match their scope's prefix or width. Gaps are expected for
// finished products whose candidate was taken by another creator.
func AuditSequences(ctx context.Context) ([]*ScopeAudit, error) {
	db := config.GetDB().WithContext(ctx)

	var batchRows []struct {
		CreatorId   int
		BatchNumber string
	}
	if err := db.Table(sequence.BatchFormat.Table).Select("creator_id, batch_number").
		Order("creator_id, batch_number").Scan(&batchRows).Error; err != nil {
		return nil, err
	}
	rows := make([]auditRow, 0, len(batchRows))
	for _, r := range batchRows {
		scope, err := sequence.BatchScope(r.CreatorId)
		if err != nil {
			rows = append(rows, auditRow{ScopeKey: "batch:?", Code: r.BatchNumber})
			continue
		}
		rows = append(rows, auditRow{ScopeKey: scope.Key, Prefix: scope.Prefix, Code: r.BatchNumber})
	}
	results := auditFormat(sequence.BatchFormat, rows, nil)

	var productRows []struct {
		CreatorId    int
		ProductType  string
		SerialNumber string
	}
	if err := db.Table(sequence.ProductFormat.Table).Select("creator_id, product_type, serial_number").
		Order("creator_id, product_type, serial_number").Scan(&productRows).Error; err != nil {
		return nil, err
	}
	rows = rows[:0]
	for _, r := range productRows {
		key := fmt.Sprintf("%s:%d:%s", sequence.ProductFormat.Name, r.CreatorId, r.ProductType)
		rows = append(rows, auditRow{ScopeKey: key, Prefix: r.ProductType, Code: r.SerialNumber})
	}
	results = append(results, auditFormat(sequence.ProductFormat, rows, productPrefixOK)...)

	var bottleRows []struct {
		FinishedProductId int
		SerialNumber      string
		BottleNumber      string
	}
	if err := db.Table(sequence.BottleFormat.Table + " AS b").
		Select("b.finished_product_id, COALESCE(fp.serial_number, '') AS serial_number, b.bottle_number").
		Joins("LEFT JOIN " + sequence.ProductFormat.Table + " AS fp ON fp.id = b.finished_product_id").
		Order("b.finished_product_id, b.bottle_number").Scan(&bottleRows).Error; err != nil {
		return nil, err
	}
	rows = rows[:0]
	for _, r := range bottleRows {
		key := fmt.Sprintf("%s:%d", sequence.BottleFormat.Name, r.FinishedProductId)
		rows = append(rows, auditRow{ScopeKey: key, Prefix: r.SerialNumber, Code: r.BottleNumber})
	}
	results = append(results, auditFormat(sequence.BottleFormat, rows, nil)...)

	return results, nil
}

// product prefixes are YYYYMM + type; the month varies within a scope
func productPrefixOK(prefix string, want string) bool {
	if len(prefix) != 6+len(want) || prefix[6:] != want {
		return false
	}
	if _, err := strconv.Atoi(prefix[:6]); err != nil {
		return false
	}
	month, _ := strconv.Atoi(prefix[4:6])
	return month >= 1 && month <= 12
}

func auditFormat(f sequence.Format, rows []auditRow, prefixOK func(got string, want string) bool) []*ScopeAudit {
	if prefixOK == nil {
		prefixOK = func(got string, want string) bool { return got == want }
	}
	byScope := map[string]*ScopeAudit{}
	seen := map[string]map[int]int{}
	var order []string
	for _, r := range rows {
		a, ok := byScope[r.ScopeKey]
		if !ok {
			a = &ScopeAudit{Format: f.Name, Scope: r.ScopeKey}
			byScope[r.ScopeKey] = a
			seen[r.ScopeKey] = map[int]int{}
			order = append(order, r.ScopeKey)
		}
		a.Count++
		prefix, seq, err := f.Split(r.Code)
		if err != nil || !prefixOK(prefix, r.Prefix) {
			a.Malformed = append(a.Malformed, r.Code)
			continue
		}
		seen[r.ScopeKey][seq]++
		if seq > a.MaxSequence {
			a.MaxSequence = seq
		}
	}

	results := make([]*ScopeAudit, 0, len(order))
	for _, key := range order {
		a := byScope[key]
		for seq := 1; seq <= a.MaxSequence; seq++ {
			switch n := seen[key][seq]; {
			case n == 0:
				a.Gaps = append(a.Gaps, seq)
			case n > 1:
				a.Duplicates = append(a.Duplicates, seq)
			}
		}
		results = append(results, a)
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Scope < results[j].Scope })
	return results
}
