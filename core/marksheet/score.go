package marksheet

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/trezcool/academia/core"
)

// score document keys
const (
	keySubjectID   = "subjectId"
	keySubjectName = "subjectName"
	keyStudentID   = "studentId"
	keyHolderMap   = "studentMarks"
	keyMarks       = "marks"
	keyObtained    = "obtained"
	keyMaxMarks    = "maxMarks"
	keyTotal       = "total"
	keyName        = "name"
)

// ScoreRecord is one raw score of a holder (student) in a category (subject).
type ScoreRecord struct {
	HolderID     string
	CategoryID   string
	CategoryName string
	Marks        float64
	MaxMarks     float64
}

// Score is the sum of every record of a holder in one category.
type Score struct {
	CategoryID   string  `json:"categoryId"`
	CategoryName string  `json:"categoryName"`
	Obtained     float64 `json:"obtained"`
	Maximum      float64 `json:"maximum"`
}

// Percentage is presented with two decimals.
func (s Score) Percentage() float64 {
	if s.Maximum == 0 {
		return 0
	}
	return Round2(s.Obtained / s.Maximum * 100)
}

// Round2 rounds half away from zero to two decimals.
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// HolderScores indexes a holder's aggregated scores by lower-cased category name and by category id.
type HolderScores struct {
	ByName map[string]*Score
	ByID   map[string]*Score
}

func newHolderScores() HolderScores {
	return HolderScores{ByName: make(map[string]*Score), ByID: make(map[string]*Score)}
}

// names returns the category name keys in sorted order.
func (hs HolderScores) names() []string {
	names := make([]string, 0, len(hs.ByName))
	for name := range hs.ByName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Aggregate sums marks and maximums per (holder, category). A category is identified by its id,
// or by its name when the record has no id.
func Aggregate(records []ScoreRecord) map[string]HolderScores {
	byHolder := make(map[string]HolderScores)
	for _, r := range records {
		hs, ok := byHolder[r.HolderID]
		if !ok {
			hs = newHolderScores()
			byHolder[r.HolderID] = hs
		}

		name := nameKey(r.CategoryName)
		var score *Score
		if r.CategoryID != "" {
			score = hs.ByID[r.CategoryID]
		} else if name != "" {
			score = hs.ByName[name]
		}
		if score == nil {
			score = &Score{CategoryID: r.CategoryID, CategoryName: strings.TrimSpace(r.CategoryName)}
			if r.CategoryID != "" {
				hs.ByID[r.CategoryID] = score
			}
		}
		if score.CategoryName == "" {
			score.CategoryName = strings.TrimSpace(r.CategoryName)
		}
		if name != "" {
			if _, taken := hs.ByName[name]; !taken {
				hs.ByName[name] = score
			}
		}
		score.Obtained += r.Marks
		score.Maximum += r.MaxMarks
	}
	return byHolder
}

// RecordsFromDoc reads the records of `holderID` out of a marks document. Both the nested shape
// {subjectId, subjectName, maxMarks, studentMarks: {<holder>: {marks, maxMarks}}} and the flat shape
// {studentId, subjectId, subjectName, marks, maxMarks} are understood. An empty holderID reads every holder.
func RecordsFromDoc(doc core.Document, holderID string, subjectNames map[string]string) []ScoreRecord {
	base := ScoreRecord{
		CategoryID:   doc.String(keySubjectID),
		CategoryName: doc.String(keySubjectName),
	}
	if base.CategoryName == "" {
		base.CategoryName = subjectNames[base.CategoryID]
	}
	docMax, _ := number(doc[keyMaxMarks])

	if holders, ok := asMap(doc[keyHolderMap]); ok {
		records := make([]ScoreRecord, 0, 1)
		for id, v := range holders {
			if holderID != "" && id != holderID {
				continue
			}
			r := base
			r.HolderID = id
			r.MaxMarks = docMax
			if entry, ok := asMap(v); ok {
				r.Marks = firstNumber(entry, keyMarks, keyObtained)
				if m := firstNumber(entry, keyMaxMarks, keyTotal); m > 0 {
					r.MaxMarks = m
				}
			} else if n, ok := number(v); ok {
				r.Marks = n
			} else {
				continue
			}
			records = append(records, r)
		}
		sort.Slice(records, func(i, j int) bool { return records[i].HolderID < records[j].HolderID })
		return records
	}

	id := doc.String(keyStudentID)
	if id == "" || (holderID != "" && id != holderID) {
		return nil
	}
	r := base
	r.HolderID = id
	r.Marks = firstNumber(doc, keyMarks, keyObtained)
	r.MaxMarks = docMax
	return []ScoreRecord{r}
}

func firstNumber(m map[string]interface{}, keys ...string) float64 {
	for _, k := range keys {
		if n, ok := number(m[k]); ok {
			return n
		}
	}
	return 0
}

// number accepts any numeric value or numeric string.
func number(v interface{}) (float64, bool) {
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	return core.ToFloat(v)
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case core.Document:
		return m, true
	}
	return nil, false
}
