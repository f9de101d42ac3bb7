package library

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Tag is a (key, value) label used as similarity ground truth.
type Tag struct {
	Key   string
	Value string
}

// MarshalJSON encodes a tag as a two-element array: ["key", "value"].
func (t Tag) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{t.Key, t.Value})
}

func (t *Tag) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("tag must have exactly 2 elements, got %d", len(pair))
	}
	t.Key, t.Value = pair[0], pair[1]
	return nil
}

// TagSet is an unordered set of tags.
type TagSet map[Tag]struct{}

// NewTagSet creates a set holding the given tags.
func NewTagSet(tags ...Tag) TagSet {
	s := make(TagSet, len(tags))
	for _, t := range tags {
		s[t] = struct{}{}
	}
	return s
}

func (s TagSet) Add(key, value string) {
	s[Tag{Key: key, Value: value}] = struct{}{}
}

func (s TagSet) Has(key, value string) bool {
	_, ok := s[Tag{Key: key, Value: value}]
	return ok
}

// Union adds every tag of other to s.
func (s TagSet) Union(other TagSet) {
	for t := range other {
		s[t] = struct{}{}
	}
}

// Sorted returns the tags ordered by key, then value.
func (s TagSet) Sorted() []Tag {
	tags := make([]Tag, 0, len(s))
	for t := range s {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Key != tags[j].Key {
			return tags[i].Key < tags[j].Key
		}
		return tags[i].Value < tags[j].Value
	})
	return tags
}

// Values returns the sorted values stored under key.
func (s TagSet) Values(key string) []string {
	var values []string
	for t := range s {
		if t.Key == key {
			values = append(values, t.Value)
		}
	}
	sort.Strings(values)
	return values
}

// MarshalJSON encodes the set as a sorted array of tag pairs so label files
// are stable across runs.
func (s TagSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *TagSet) UnmarshalJSON(data []byte) error {
	var tags []Tag
	if err := json.Unmarshal(data, &tags); err != nil {
		return err
	}
	*s = NewTagSet(tags...)
	return nil
}
