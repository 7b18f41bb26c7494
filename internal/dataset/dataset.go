// Package dataset holds the bucket-keyed record collections persisted as
// event_data.json and event_data_detailed.json, and the rules for merging
// records into them.
package dataset

import (
	"bytes"
	"cmp"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jerrybase-cli/internal/model"
)

// PreBucket is the catch-all label the site uses for shows before 1965.
const PreBucket = "pre-1965"

// Record is a show record that can be keyed and validated.
type Record interface {
	ID() string
	Validate() error
}

// Basic is the listing dataset.
type Basic = Dataset[model.BasicRecord]

// Detailed is the enriched dataset.
type Detailed = Dataset[model.DetailRecord]

// Dataset maps year-bucket labels to records. Buckets are kept in
// chronological order and records within a bucket are ordered by show id,
// whose leading eight digits are the show date.
type Dataset[R Record] struct {
	order   []string
	buckets map[string][]R
}

// New returns an empty dataset.
func New[R Record]() *Dataset[R] {
	return &Dataset[R]{buckets: make(map[string][]R)}
}

// Buckets returns the bucket labels in chronological order.
func (d *Dataset[R]) Buckets() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Records returns the records of a bucket. The slice must not be modified.
func (d *Dataset[R]) Records(bucket string) []R {
	return d.buckets[bucket]
}

// Len returns the total number of records.
func (d *Dataset[R]) Len() int {
	n := 0
	for _, recs := range d.buckets {
		n += len(recs)
	}
	return n
}

// IDs returns the set of record ids across all buckets.
func (d *Dataset[R]) IDs() map[string]struct{} {
	ids := make(map[string]struct{}, d.Len())
	for _, recs := range d.buckets {
		for _, r := range recs {
			ids[r.ID()] = struct{}{}
		}
	}
	return ids
}

// AddBucket registers an empty bucket so it is persisted even without records.
func (d *Dataset[R]) AddBucket(bucket string) {
	if _, ok := d.buckets[bucket]; ok {
		return
	}
	i := sort.Search(len(d.order), func(i int) bool { return compareBuckets(d.order[i], bucket) > 0 })
	d.order = append(d.order, "")
	copy(d.order[i+1:], d.order[i:])
	d.order[i] = bucket
	d.buckets[bucket] = []R{}
}

// Merge inserts rec into bucket, replacing any record with the same id. The
// resulting dataset does not depend on the order in which distinct records
// are merged. It reports whether an existing record was replaced.
func (d *Dataset[R]) Merge(bucket string, rec R) bool {
	d.AddBucket(bucket)
	recs := d.buckets[bucket]
	id := rec.ID()
	i := sort.Search(len(recs), func(i int) bool { return CompareIDs(recs[i].ID(), id) >= 0 })
	if i < len(recs) && recs[i].ID() == id {
		recs[i] = rec
		return true
	}
	recs = append(recs, rec)
	copy(recs[i+1:], recs[i:])
	recs[i] = rec
	d.buckets[bucket] = recs
	return false
}

// Get looks a record up by id across all buckets.
func (d *Dataset[R]) Get(id string) (rec R, bucket string, ok bool) {
	for _, b := range d.order {
		recs := d.buckets[b]
		i := sort.Search(len(recs), func(i int) bool { return CompareIDs(recs[i].ID(), id) >= 0 })
		if i < len(recs) && recs[i].ID() == id {
			return recs[i], b, true
		}
	}
	return rec, "", false
}

// Has reports whether a record with the given id exists in bucket.
func (d *Dataset[R]) Has(bucket, id string) bool {
	recs := d.buckets[bucket]
	i := sort.Search(len(recs), func(i int) bool { return CompareIDs(recs[i].ID(), id) >= 0 })
	return i < len(recs) && recs[i].ID() == id
}

// Prune removes every record for which keep returns false and returns the
// removed count. Buckets left empty are kept.
func (d *Dataset[R]) Prune(keep func(bucket string, rec R) bool) int {
	removed := 0
	for _, b := range d.order {
		recs := d.buckets[b]
		kept := recs[:0]
		for _, r := range recs {
			if keep(b, r) {
				kept = append(kept, r)
				continue
			}
			removed++
		}
		d.buckets[b] = kept
	}
	return removed
}

// Clone returns a copy that can be mutated independently of d. Records are
// copied by value.
func (d *Dataset[R]) Clone() *Dataset[R] {
	c := New[R]()
	c.order = append(c.order, d.order...)
	for b, recs := range d.buckets {
		c.buckets[b] = append([]R{}, recs...)
	}
	return c
}

// MarshalJSON encodes the dataset as an object whose keys follow bucket order.
func (d *Dataset[R]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, b := range d.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(b)
		if err != nil {
			return nil, eris.Wrap(err, "dataset: marshal bucket label")
		}
		buf.Write(key)
		buf.WriteByte(':')

		recs := d.buckets[b]
		if recs == nil {
			recs = []R{}
		}
		val, err := json.Marshal(recs)
		if err != nil {
			return nil, eris.Wrapf(err, "dataset: marshal bucket %s", b)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes and validates a bucket-keyed document. A record that
// fails validation aborts decoding with a wrapped *model.MalformedRecordError.
func (d *Dataset[R]) UnmarshalJSON(data []byte) error {
	fresh := New[R]()
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return eris.Wrap(err, "dataset: read document")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return eris.New("dataset: document is not an object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return eris.Wrap(err, "dataset: read bucket label")
		}
		bucket, _ := tok.(string)

		var recs []R
		if err := dec.Decode(&recs); err != nil {
			return eris.Wrapf(err, "dataset: decode bucket %s", bucket)
		}

		fresh.AddBucket(bucket)
		for i, r := range recs {
			if err := r.Validate(); err != nil {
				return eris.Wrapf(err, "dataset: bucket %s record %d", bucket, i)
			}
		}
		sort.SliceStable(recs, func(i, j int) bool { return CompareIDs(recs[i].ID(), recs[j].ID()) < 0 })
		fresh.buckets[bucket] = recs
	}

	*d = *fresh
	return nil
}

// CompareIDs orders show ids by date fragment, then numerically by venue
// fragment, then by duplicate suffix ("19750315_311" before "19750315_311-2").
func CompareIDs(a, b string) int {
	if a == b {
		return 0
	}
	ad, av, _ := strings.Cut(a, "_")
	bd, bv, _ := strings.Cut(b, "_")
	if c := strings.Compare(ad, bd); c != 0 {
		return c
	}
	av, as, _ := strings.Cut(av, model.ShowIDSuffixSep)
	bv, bs, _ := strings.Cut(bv, model.ShowIDSuffixSep)
	if c := compareNumeric(av, bv); c != 0 {
		return c
	}
	if c := compareNumeric(as, bs); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// compareNumeric compares two id parts as integers when both parse, else
// lexically. An empty part sorts first.
func compareNumeric(a, b string) int {
	if a == b {
		return 0
	}
	an, aErr := strconv.Atoi(a)
	bn, bErr := strconv.Atoi(b)
	switch {
	case aErr == nil && bErr == nil:
		return cmp.Compare(an, bn)
	case a == "":
		return -1
	case b == "":
		return 1
	}
	return strings.Compare(a, b)
}

// compareBuckets orders labels chronologically: "pre-" buckets first, then
// numeric years ascending, then anything else lexically.
func compareBuckets(a, b string) int {
	ra, ya := bucketRank(a)
	rb, yb := bucketRank(b)
	if ra != rb {
		return ra - rb
	}
	if ra == 1 && ya != yb {
		return ya - yb
	}
	return strings.Compare(a, b)
}

func bucketRank(label string) (rank, year int) {
	if strings.HasPrefix(strings.ToLower(label), "pre") {
		return 0, 0
	}
	if y, err := strconv.Atoi(strings.TrimSpace(label)); err == nil {
		return 1, y
	}
	return 2, 0
}
