// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sufarray builds a suffix array over a stream of symbol ids using
// the SA-IS linear-time construction (Nong, Zhang, and Chan, "Two Efficient
// Algorithms for Linear Time Suffix Array Construction"), then supports
// prefix lookup and frequency-ordered n-gram enumeration over it, including
// a parallel enumeration that splits the array across a thread pool at
// first-symbol boundaries.
package sufarray

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"sync"
	"unsafe"

	"github.com/edsrzf/mmap-go"

	"code.hybscloud.com/substrate/threadpool"
)

// ErrorID is returned by IDAt for an out-of-range position, matching the
// teacher's SuffixArray::ErrorID sentinel.
const ErrorID = ^uint32(0)

// EnumFunc is called once per enumerated key, with its length, frequency,
// and the index of its first occurrence in the suffix array.
type EnumFunc func(key []uint32, keylen int, freq int, firstIndex int)

// FilterFunc decides whether to explore or report a key; exploringFurther
// is true when the caller is about to recurse into longer keys sharing
// this prefix, so returning false here can prune an entire subtree at
// once.
type FilterFunc func(key []uint32, keylen int, freq int, exploringFurther bool) bool

// SuffixArray is a suffix array over a fixed stream of symbol ids.
type SuffixArray struct {
	ids             []uint32
	index           []int
	freq            []int
	vocabSize       uint32
	sentinel        uint32
	newline         uint32
	lastLinenumMark uint32
	readonly        bool
}

// New builds a suffix array over ids (retained, not copied: the caller
// must not mutate it afterward), which contains vocabSize distinct symbol
// ids. Any id at or above lastLinenumMark is treated as equal to newline
// for comparison purposes, collapsing distinct line-number encodings into
// one symbol. If freqs is nil, per-type counts are computed with one pass
// over ids; otherwise freqs (zero-extended to vocabSize+2 entries if it is
// shorter) is used both to build the array and as the table Freq queries.
func New(ids []uint32, vocabSize, sentinel, newline, lastLinenumMark uint32, freqs []int) (*SuffixArray, error) {
	if len(ids) == 0 {
		return nil, errors.New("sufarray: empty input")
	}
	intIDs := make([]int, len(ids))
	for i, id := range ids {
		intIDs[i] = int(id)
	}
	if freqs == nil {
		freqs = make([]int, vocabSize+2)
		for _, id := range intIDs {
			freqs[convertEOL(id, int(vocabSize), int(newline))]++
		}
	} else if len(freqs) < int(vocabSize)+2 {
		padded := make([]int, vocabSize+2)
		copy(padded, freqs)
		freqs = padded
	}
	index := create(intIDs, int(vocabSize), int(newline), freqs)
	return &SuffixArray{
		ids:             ids,
		index:           index,
		freq:            freqs,
		vocabSize:       vocabSize,
		sentinel:        sentinel,
		newline:         newline,
		lastLinenumMark: lastLinenumMark,
	}, nil
}

// IndexSize returns the number of entries in the suffix array (== len(ids)
// at construction time).
func (sa *SuffixArray) IndexSize() int { return len(sa.index) }

// VocabSize returns the number of distinct symbol ids the array was built
// over.
func (sa *SuffixArray) VocabSize() uint32 { return sa.vocabSize }

// IDAt returns the symbol id at position pos in the original id stream, or
// ErrorID if pos is out of range.
func (sa *SuffixArray) IDAt(pos int) uint32 {
	if pos >= 0 && pos < len(sa.ids) {
		return sa.ids[pos]
	}
	return ErrorID
}

// IndexAt returns the starting position of the Nth-smallest suffix.
func (sa *SuffixArray) IndexAt(n int) int { return sa.index[n] }

// Freq returns the recorded frequency of symbol id, or 0 if no frequency
// table is available or id is out of range.
func (sa *SuffixArray) Freq(id uint32) int {
	if sa.freq == nil || int(id) >= len(sa.freq) {
		return 0
	}
	return sa.freq[id]
}

// ReadOnly reports whether this array was produced by Load/LoadMmap rather
// than New.
func (sa *SuffixArray) ReadOnly() bool { return sa.readonly }

/***************************************************************************
 * SA-IS construction
 ***************************************************************************/

func convertEOL(id, numTypes, newline int) int {
	if id >= numTypes {
		return newline
	}
	return id
}

// classifyLS classifies every position of ids as S-type (true) or L-type
// (false) by a right-to-left scan, returning a slice of length len(ids)+2
// (the two sentinel slots mirror the teacher's one-past-the-end S bits
// used to seed the scan and to treat the final element's substring as
// terminated).
func classifyLS(ids []int, numTypes, newline int) []bool {
	n := len(ids)
	ls := make([]bool, n+2)
	ls[n+1] = true
	ls[n] = false
	ls[n-1] = true
	bit := true
	if n >= 2 {
		id2 := convertEOL(ids[n-1], numTypes, newline)
		for i := n - 1; i > 0; i-- {
			id1 := convertEOL(ids[i-1], numTypes, newline)
			bit = id1 < id2 || (id1 == id2 && bit)
			ls[i-1] = bit
			id2 = id1
		}
	}
	return ls
}

// bucketBoundaries returns an array of size numTypes+2 holding, for each
// symbol, the starting index of its bucket in the suffix array, computed
// from freqs (counted by one pass over ids if freqs is nil).
func bucketBoundaries(ids []int, numTypes, newline int, freqs []int) []int {
	buckets := make([]int, numTypes+2)
	if freqs == nil {
		for _, id := range ids {
			buckets[convertEOL(id, numTypes, newline)]++
		}
		freqs = buckets
	}
	total := 0
	for i := 0; i <= numTypes; i++ {
		bcount := freqs[i]
		buckets[i] = total
		total += bcount
	}
	buckets[numTypes+1] = total
	return buckets
}

// bucketEndsFrom copies buckets[1:numTypes+2] into a fresh array, giving
// the END boundary of each bucket (the start of the next one).
func bucketEndsFrom(buckets []int, numTypes int) []int {
	out := make([]int, numTypes+1)
	copy(out, buckets[1:numTypes+2])
	return out
}

// induce fills in L-type then S-type positions of sa from the seeded
// LMS positions, using ls for the type of each position.
func induce(ids []int, sa []int, numTypes, newline int, buckets []int, ls []bool) {
	n := len(ids)
	bucketEnds := bucketEndsFrom(buckets, numTypes)
	for i := 0; i < n; i++ {
		j := sa[i]
		if j == -1 || j == 0 {
			continue
		}
		j--
		if !ls[j] {
			bck := convertEOL(ids[j], numTypes, newline)
			sa[buckets[bck]] = j
			buckets[bck]++
		}
	}
	for i := n; i > 0; i-- {
		j := sa[i-1]
		if j == -1 || j == 0 {
			continue
		}
		j--
		if ls[j] {
			bck := convertEOL(ids[j], numTypes, newline)
			bucketEnds[bck]--
			sa[bucketEnds[bck]] = j
		}
	}
}

// create is the SA-IS recursive core: classify L/S types, seed LMS
// positions into their buckets, induce-sort the rest, reduce adjacent
// LMS-substrings to a name sequence, recurse if names aren't yet unique,
// then induce the final array from the resolved LMS order.
func create(ids []int, numTypes, newline int, freqs []int) []int {
	n := len(ids)
	if n == 0 {
		return nil
	}
	ls := classifyLS(ids, numTypes, newline)
	index := make([]int, n)
	for i := range index {
		index[i] = -1
	}
	buckets := bucketBoundaries(ids, numTypes, newline, freqs)
	bucketEnds := bucketEndsFrom(buckets, numTypes)
	prevType := ls[0]
	for i := 1; i < n; i++ {
		currType := ls[i]
		if !prevType && currType {
			bck := convertEOL(ids[i], numTypes, newline)
			bucketEnds[bck]--
			index[bucketEnds[bck]] = i
		}
		prevType = currType
	}
	induce(ids, index, numTypes, newline, buckets, ls)

	// compact LMS positions (in induced order) to the front of index
	subsize := 0
	for i := 0; i < n; i++ {
		idx := index[i]
		if idx > 0 && !ls[idx-1] && ls[idx] {
			index[subsize] = idx
			subsize++
		}
	}
	for i := subsize; i < n; i++ {
		index[i] = -1
	}
	s1 := index[subsize:]

	// name each LMS-substring by comparing it against the previous one
	name := 0
	prev := -1
	for i := 0; i < subsize; i++ {
		pos := index[i]
		diff := false
		if prev == -1 {
			diff = true
		} else {
			lastPosBit, lastPrevBit := true, true
		compareLoop:
			for d := 0; d < n; d++ {
				pd, vd := pos+d, prev+d
				if pd >= n || vd >= n || ids[pd] != ids[vd] {
					diff = true
					break compareLoop
				}
				posBit, prevBit := ls[pd], ls[vd]
				if posBit != prevBit {
					diff = true
					break compareLoop
				} else if (posBit && !lastPosBit) || (prevBit && !lastPrevBit) {
					break compareLoop
				}
				lastPosBit, lastPrevBit = posBit, prevBit
			}
		}
		if diff {
			name++
			prev = pos
		}
		s1[pos/2] = name - 1
	}

	// compact the named positions (scattered by pos/2) to the front of s1
	for i, j := subsize, subsize; i < n; i++ {
		if idx := index[i]; idx != -1 {
			index[j] = idx
			j++
		}
	}

	if name < subsize {
		reduced := create(append([]int(nil), s1[:subsize]...), name, 0, nil)
		copy(index[:subsize], reduced)
	} else {
		for i := 0; i < subsize; i++ {
			index[s1[i]] = i
		}
	}

	// recover each LMS position's place in the original id stream
	prevBit := ls[0]
	for i, j := 1, 0; i < n; i++ {
		currBit := ls[i]
		if !prevBit && currBit {
			s1[j] = i
			j++
		}
		prevBit = currBit
	}
	for i := 0; i < subsize; i++ {
		index[i] = s1[index[i]]
	}
	for i := subsize; i < n; i++ {
		index[i] = -1
	}

	// seed the resolved LMS order into its final buckets and induce once more
	buckets = bucketBoundaries(ids, numTypes, newline, freqs)
	bucketEnds = bucketEndsFrom(buckets, numTypes)
	for i := subsize; i > 0; i-- {
		j := index[i-1]
		index[i-1] = -1
		bck := convertEOL(ids[j], numTypes, newline)
		bucketEnds[bck]--
		index[bucketEnds[bck]] = j
	}
	induce(ids, index, numTypes, newline, buckets, ls)
	return index
}

/***************************************************************************
 * Lookup
 ***************************************************************************/

func (sa *SuffixArray) compareAt(idx int, key []uint32, keylen int) int {
	n := len(sa.ids)
	pos := 0
	for pos < keylen {
		a, b := sa.ids[idx], key[pos]
		eol := a >= sa.lastLinenumMark || b >= sa.lastLinenumMark
		if a >= sa.lastLinenumMark {
			a = sa.newline
		}
		if b >= sa.lastLinenumMark {
			b = sa.newline
		}
		var c int
		switch {
		case a < b:
			c = -1
		case a > b:
			c = 1
		}
		if c != 0 {
			return c
		}
		if eol {
			break
		}
		idx = (idx + 1) % n
		pos++
	}
	return 0
}

// Lookup performs a double binary search for the range [first, last] of
// suffix-array indices whose suffix starts with key, reporting ok=false if
// key does not occur.
func (sa *SuffixArray) Lookup(key []uint32) (first, last int, ok bool) {
	n := len(sa.index)
	keylen := len(key)
	lo, hi := 0, n
	for lo < hi {
		mid := lo + (hi-lo)/2
		if sa.compareAt(sa.index[mid], key, keylen) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo >= n || sa.compareAt(sa.index[lo], key, keylen) != 0 {
		return 0, 0, false
	}
	first = lo
	lo, hi = 0, n
	for lo < hi {
		mid := lo + (hi-lo)/2
		if sa.compareAt(sa.index[mid], key, keylen) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	last = lo
	if lo > 0 {
		last--
	}
	return first, last, true
}

/***************************************************************************
 * Enumeration
 ***************************************************************************/

// Enumerate walks the suffix-array range [startpos, endpos), reporting one
// run per distinct key of each length from maxlen down to minlen. filter,
// if non-nil, is consulted before every call to fn and may suppress it.
func (sa *SuffixArray) Enumerate(startpos, endpos, minlen, maxlen int, fn EnumFunc, filter FilterFunc) {
	if maxlen < 1 {
		return
	}
	keystart := make([]int, maxlen+1)
	keyval := make([]uint32, maxlen)
	for i := 0; i < maxlen; i++ {
		keystart[i+1] = startpos
		keyval[i] = sa.IDAt(sa.index[startpos] + i)
	}
	for idx := startpos + 1; idx < endpos; idx++ {
		common := 0
		for ; common < maxlen; common++ {
			pos := sa.index[idx] + common
			if keyval[common] != sa.IDAt(pos) {
				break
			}
		}
		for length := maxlen; length > common; length-- {
			if length >= minlen {
				freq := idx - keystart[length]
				if filter == nil || filter(keyval[:length], length, freq, false) {
					fn(keyval[:length], length, freq, keystart[length])
				}
			}
			keystart[length] = idx
			keyval[length-1] = sa.IDAt(sa.index[idx] + length - 1)
		}
	}
	for length := maxlen; length >= minlen; length-- {
		freq := endpos - keystart[length]
		if filter == nil || filter(keyval[:length], length, freq, false) {
			fn(keyval[:length], length, freq, keystart[length])
		}
	}
}

// enumerateSegment walks the unigram range [firstID, lastID), using the
// frequency table to skip entire phrases in one step when maxlen==1 or a
// filtered-out unigram has no occurrences worth expanding.
func (sa *SuffixArray) enumerateSegment(startpos int, firstID, lastID uint32, minlen, maxlen int, fn EnumFunc, filter FilterFunc) {
	if minlen < 1 {
		minlen = 1
	}
	if maxlen < minlen {
		maxlen = minlen
	}
	for id := firstID; id < lastID; id++ {
		freq := sa.Freq(id)
		if freq == 0 {
			continue
		}
		key := []uint32{id}
		if filter == nil || filter(key, 1, freq, maxlen > 1) {
			switch {
			case maxlen == 1:
				fn(key, 1, freq, startpos)
			case freq > 1:
				sa.Enumerate(startpos, startpos+freq, minlen, maxlen, fn, filter)
			default:
				start := sa.index[startpos]
				for length := maxlen; length >= minlen; length-- {
					end := start + length
					if end > len(sa.ids) {
						end = len(sa.ids)
					}
					k := sa.ids[start:end]
					if filter == nil || filter(k, length, 1, false) {
						fn(k, length, 1, startpos)
					}
				}
			}
		}
		startpos += freq
	}
}

// EnumerateParallel is EnumerateParallelAsync followed by a wait for every
// segment to finish.
func (sa *SuffixArray) EnumerateParallel(pool *threadpool.Pool, minlen, maxlen int, fn EnumFunc, filter FilterFunc) {
	sa.EnumerateParallelAsync(pool, minlen, maxlen, fn, filter).Wait()
}

// EnumerateParallelAsync splits the vocabulary into roughly
// pool.NumWorkers()*32 segments at first-symbol boundaries (using unigram
// frequencies, so each segment is a contiguous range of the suffix array)
// and dispatches one enumeration job per segment. Call Wait on the
// returned group to block until every segment has completed, matching the
// teacher's finishParallel. Segments start at symbol id 1, past the
// sentinel's (id 0) entries at the front of the array, so unlike Enumerate
// over [0, IndexSize()) no key beginning with the sentinel is reported.
func (sa *SuffixArray) EnumerateParallelAsync(pool *threadpool.Pool, minlen, maxlen int, fn EnumFunc, filter FilterFunc) *sync.WaitGroup {
	var wg sync.WaitGroup
	if minlen < 1 {
		minlen = 1
	}
	if maxlen < minlen {
		maxlen = minlen
	}
	numSegments := 0
	if pool != nil {
		numSegments = pool.NumWorkers() * 32
	}
	sentinelFreq := sa.Freq(sa.sentinel)
	if numSegments == 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sa.enumerateSegment(sentinelFreq, 1, sa.vocabSize, minlen, maxlen, fn, filter)
		}()
		return &wg
	}

	total := len(sa.index) - sentinelFreq
	segmentSize := (total + numSegments - 1) / numSegments

	type segment struct {
		startpos        int
		firstID, lastID uint32
	}
	var segments []segment
	prevStart := sentinelFreq
	prevID := uint32(1)
	count := 0
	for id := uint32(1); id < sa.vocabSize; id++ {
		count += sa.Freq(id)
		if count >= segmentSize {
			segments = append(segments, segment{prevStart, prevID, id + 1})
			prevStart += count
			prevID = id + 1
			count = 0
		}
	}
	segments = append(segments, segment{prevStart, prevID, sa.vocabSize})

	for _, seg := range segments {
		seg := seg
		wg.Add(1)
		pool.Dispatch(func() {
			defer wg.Done()
			sa.enumerateSegment(seg.startpos, seg.firstID, seg.lastID, minlen, maxlen, fn, filter)
		})
	}
	return &wg
}

/***************************************************************************
 * Persistence
 ***************************************************************************/

// Signature is the magic the teacher's SuffixArray writes at the start of
// its serialized form.
var Signature = [9]byte{0x7F, 'S', 'u', 'f', 'A', 'r', 'r', 'a', 'y'}

const fileFormat = 1

// ErrBadSignature is returned by Load/LoadMmap when the stream does not
// begin with the expected signature.
var ErrBadSignature = errors.New("sufarray: bad signature")

// ErrElementSize is returned when the stream's recorded id/index element
// sizes do not match this build (both fixed at 4 bytes).
var ErrElementSize = errors.New("sufarray: wrong element size")

type wireHeader struct {
	NumIDs          uint64
	VocabSize       uint64
	Sentinel        uint64
	Newline         uint64
	LastLinenumMark uint64
	IndexOffset     uint64
	IDsOffset       uint64
	FreqOffset      uint64
}

// Save serializes the array: signature, element-size self-check, header,
// index array, frequency table (if present), and the id stream itself if
// includeIDs is set. w must support Seek because the header's offset
// fields are patched in after the body has been written, the same
// two-pass layout the teacher's CFile-based save uses.
func (sa *SuffixArray) Save(w io.WriteSeeker, includeIDs bool) error {
	if _, err := w.Write(Signature[:]); err != nil {
		return err
	}
	if _, err := w.Write([]byte{4, 4}); err != nil {
		return err
	}
	headerOffset, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	hdr := wireHeader{
		NumIDs:          uint64(len(sa.index)),
		VocabSize:       uint64(sa.vocabSize),
		Sentinel:        uint64(sa.sentinel),
		Newline:         uint64(sa.newline),
		LastLinenumMark: uint64(sa.lastLinenumMark),
	}
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return err
	}
	if len(sa.index) > 0 {
		pos, err := w.Seek(0, io.SeekCurrent)
		if err != nil {
			return err
		}
		hdr.IndexOffset = uint64(pos - headerOffset)
		for _, idx := range sa.index {
			if err := binary.Write(w, binary.LittleEndian, uint32(idx)); err != nil {
				return err
			}
		}
	}
	if len(sa.freq) > 0 {
		pos, err := w.Seek(0, io.SeekCurrent)
		if err != nil {
			return err
		}
		hdr.FreqOffset = uint64(pos - headerOffset)
		for _, f := range sa.freq {
			if err := binary.Write(w, binary.LittleEndian, uint32(f)); err != nil {
				return err
			}
		}
	}
	if includeIDs && len(sa.ids) > 0 {
		pos, err := w.Seek(0, io.SeekCurrent)
		if err != nil {
			return err
		}
		hdr.IDsOffset = uint64(pos - headerOffset)
		for _, id := range sa.ids {
			if err := binary.Write(w, binary.LittleEndian, id); err != nil {
				return err
			}
		}
	}
	lastPos, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if _, err := w.Seek(headerOffset, io.SeekStart); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return err
	}
	_, err = w.Seek(lastPos, io.SeekStart)
	return err
}

// Load reads a suffix array previously written by Save. The index,
// frequency, and id arrays are read in full and owned by the result; for a
// zero-copy view over a memory-mapped file, use LoadMmap or OpenMmap.
func Load(r io.Reader) (*SuffixArray, error) {
	var sig [9]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return nil, err
	}
	if sig != Signature {
		return nil, ErrBadSignature
	}
	var sizes [2]byte
	if _, err := io.ReadFull(r, sizes[:]); err != nil {
		return nil, err
	}
	if sizes[0] != 4 || sizes[1] != 4 {
		return nil, ErrElementSize
	}
	var hdr wireHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}
	sa := &SuffixArray{
		vocabSize:       uint32(hdr.VocabSize),
		sentinel:        uint32(hdr.Sentinel),
		newline:         uint32(hdr.Newline),
		lastLinenumMark: uint32(hdr.LastLinenumMark),
		readonly:        true,
	}
	if hdr.IndexOffset != 0 {
		sa.index = make([]int, hdr.NumIDs)
		for i := range sa.index {
			var v uint32
			if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
				return nil, err
			}
			sa.index[i] = int(v)
		}
	}
	if hdr.FreqOffset != 0 {
		sa.freq = make([]int, hdr.VocabSize+2)
		for i := range sa.freq {
			var v uint32
			if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
				return nil, err
			}
			sa.freq[i] = int(v)
		}
	}
	if hdr.IDsOffset != 0 {
		sa.ids = make([]uint32, hdr.NumIDs)
		for i := range sa.ids {
			if err := binary.Read(r, binary.LittleEndian, &sa.ids[i]); err != nil {
				return nil, err
			}
		}
	}
	return sa, nil
}

func uint32View(b []byte) []uint32 {
	return unsafe.Slice((*uint32)(unsafe.Pointer(unsafe.SliceData(b))), len(b)/4)
}

// LoadMmap parses a suffix array directly out of region, a memory-mapped
// byte slice previously produced by Save. The id stream is a true
// zero-copy view over region (the dominant cost for large corpora);
// the index and frequency arrays are copied into native []int since a
// 64-bit Go int cannot alias a 4-byte wire word in place.
func LoadMmap(region []byte) (*SuffixArray, error) {
	headerSize := len(Signature) + 2
	const wireHeaderSize = 8 * 8
	if len(region) < headerSize+wireHeaderSize {
		return nil, io.ErrUnexpectedEOF
	}
	if !bytes.Equal(region[:len(Signature)], Signature[:]) {
		return nil, ErrBadSignature
	}
	if region[len(Signature)] != 4 || region[len(Signature)+1] != 4 {
		return nil, ErrElementSize
	}
	var hdr wireHeader
	if err := binary.Read(bytes.NewReader(region[headerSize:headerSize+wireHeaderSize]), binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}
	sa := &SuffixArray{
		vocabSize:       uint32(hdr.VocabSize),
		sentinel:        uint32(hdr.Sentinel),
		newline:         uint32(hdr.Newline),
		lastLinenumMark: uint32(hdr.LastLinenumMark),
		readonly:        true,
	}
	if hdr.IndexOffset != 0 {
		view := uint32View(region[int(hdr.IndexOffset)+headerSize:])[:hdr.NumIDs]
		sa.index = make([]int, len(view))
		for i, v := range view {
			sa.index[i] = int(v)
		}
	}
	if hdr.FreqOffset != 0 {
		view := uint32View(region[int(hdr.FreqOffset)+headerSize:])[:hdr.VocabSize+2]
		sa.freq = make([]int, len(view))
		for i, v := range view {
			sa.freq[i] = int(v)
		}
	}
	if hdr.IDsOffset != 0 {
		sa.ids = uint32View(region[int(hdr.IDsOffset)+headerSize:])[:hdr.NumIDs]
	}
	return sa, nil
}

// OpenMmap memory-maps path read-only and parses a suffix array out of it.
// The caller must call the returned close function once the array is no
// longer needed.
func OpenMmap(path string) (sa *SuffixArray, closeFn func() error, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, nil, err
	}
	sa, err = LoadMmap(m)
	if err != nil {
		_ = m.Unmap()
		return nil, nil, err
	}
	return sa, m.Unmap, nil
}
