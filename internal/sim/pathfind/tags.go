package pathfind

import "sort"

// TagSet is a sorted set of distinct access tags. The zero value is the empty set.
type TagSet []string

func NewTagSet(tags ...string) TagSet {
	if len(tags) == 0 {
		return nil
	}
	out := make(TagSet, 0, len(tags))
	for _, t := range tags {
		out.Add(t)
	}
	return out
}

func (s TagSet) Has(tag string) bool {
	i := sort.SearchStrings(s, tag)
	return i < len(s) && s[i] == tag
}

func (s *TagSet) Add(tag string) {
	i := sort.SearchStrings(*s, tag)
	if i < len(*s) && (*s)[i] == tag {
		return
	}
	*s = append(*s, "")
	copy((*s)[i+1:], (*s)[i:])
	(*s)[i] = tag
}

// Covers reports whether every distinct tag in required is a member of s.
// Duplicates on either side do not affect the result; an empty requirement is
// always covered.
func (s TagSet) Covers(required []string) bool {
	for _, t := range required {
		if !s.Has(t) {
			return false
		}
	}
	return true
}

func (s TagSet) Equal(o TagSet) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func (s TagSet) Clone() TagSet {
	if len(s) == 0 {
		return nil
	}
	out := make(TagSet, len(s))
	copy(out, s)
	return out
}
