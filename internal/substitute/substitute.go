// Package substitute applies ordered literal string replacements to byte
// streams. Each rule is a transform.Transformer; a rule list becomes a
// transform.Chain so the rules run strictly in declared order while the data
// is streamed, without loading whole files into memory.
package substitute

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/text/transform"
)

// maxLiteral bounds patterns and replacements so a single match always fits
// in the transform.Reader buffers.
const maxLiteral = 2048

// Rule replaces every occurrence of Pattern with Replacement.
type Rule struct {
	Pattern     string
	Replacement string
}

// Validate reports whether the rule can be applied.
func (r Rule) Validate() error {
	if r.Pattern == "" {
		return fmt.Errorf("substitution pattern is empty")
	}
	if len(r.Pattern) > maxLiteral {
		return fmt.Errorf("substitution pattern %.20q... exceeds %d bytes", r.Pattern, maxLiteral)
	}
	if len(r.Replacement) > maxLiteral {
		return fmt.Errorf("replacement for %q exceeds %d bytes", r.Pattern, maxLiteral)
	}
	return nil
}

// Transformer returns a fresh streaming transformer for the rule.
func (r Rule) Transformer() transform.Transformer {
	return &replacer{old: []byte(r.Pattern), new: []byte(r.Replacement)}
}

// Filter is an ordered list of rules.
type Filter struct {
	rules []Rule
}

// New validates rules and returns a Filter applying them in order.
func New(rules []Rule) (*Filter, error) {
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return &Filter{rules: append([]Rule(nil), rules...)}, nil
}

// Rules returns a copy of the filter's rules.
func (f *Filter) Rules() []Rule {
	return append([]Rule(nil), f.rules...)
}

// Empty reports whether the filter has no rules.
func (f *Filter) Empty() bool {
	return f == nil || len(f.rules) == 0
}

// Transformer returns a new chained transformer. Transformers are stateful,
// so every stream needs its own.
func (f *Filter) Transformer() transform.Transformer {
	if f.Empty() {
		return transform.Nop
	}
	ts := make([]transform.Transformer, len(f.rules))
	for i, r := range f.rules {
		ts[i] = r.Transformer()
	}
	return transform.Chain(ts...)
}

// Reader wraps r so that reads return substituted bytes.
func (f *Filter) Reader(r io.Reader) io.Reader {
	if f.Empty() {
		return r
	}
	return transform.NewReader(r, f.Transformer())
}

// Copy streams src through the filter into dst.
func (f *Filter) Copy(dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, f.Reader(src))
}

// Bytes applies the filter to b.
func (f *Filter) Bytes(b []byte) ([]byte, error) {
	if f.Empty() {
		return append([]byte(nil), b...), nil
	}
	out, _, err := transform.Bytes(f.Transformer(), b)
	return out, err
}

// String applies the filter to s.
func (f *Filter) String(s string) (string, error) {
	if f.Empty() {
		return s, nil
	}
	out, _, err := transform.String(f.Transformer(), s)
	return out, err
}

// replacer is a transform.Transformer replacing one literal. When the source
// ends in a proper prefix of the pattern and more input may follow, those
// bytes are held back (ErrShortSrc) so matches spanning buffer boundaries are
// still found.
type replacer struct {
	transform.NopResetter
	old, new []byte
}

func (r *replacer) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		i := bytes.Index(src[nSrc:], r.old)
		if i < 0 {
			end := len(src)
			if !atEOF {
				end -= partialSuffix(src[nSrc:], r.old)
			}
			n := copy(dst[nDst:], src[nSrc:end])
			nDst += n
			nSrc += n
			if nSrc < end {
				return nDst, nSrc, transform.ErrShortDst
			}
			if nSrc < len(src) {
				return nDst, nSrc, transform.ErrShortSrc
			}
			return nDst, nSrc, nil
		}

		if len(dst)-nDst < i+len(r.new) {
			// Emit as much of the unmatched prefix as fits and ask for room.
			n := copy(dst[nDst:], src[nSrc:nSrc+i])
			nDst += n
			nSrc += n
			return nDst, nSrc, transform.ErrShortDst
		}

		nDst += copy(dst[nDst:], src[nSrc:nSrc+i])
		nDst += copy(dst[nDst:], r.new)
		nSrc += i + len(r.old)
	}
	return nDst, nSrc, nil
}

// partialSuffix returns the length of the longest suffix of b that is a
// proper prefix of pattern.
func partialSuffix(b, pattern []byte) int {
	max := len(pattern) - 1
	if max > len(b) {
		max = len(b)
	}
	for n := max; n > 0; n-- {
		if bytes.Equal(b[len(b)-n:], pattern[:n]) {
			return n
		}
	}
	return 0
}
