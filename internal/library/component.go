package library

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// ComponentType is the "type" tag value for every library slice.
	ComponentType = "library-slice"

	TagLibrary  = "library"
	TagType     = "type"
	TagFunction = "function"
)

// Component is a single exported function sliced out of a Library.
//
// The JSON form is the component exchange format: enough to rebuild the
// component on another worker without shipping the whole Library.
type Component struct {
	Library  string   `json:"library"`
	Version  string   `json:"version"`
	Date     string   `json:"date"`
	Path     string   `json:"path"`     // library file to link against
	Function string   `json:"function"` // exported symbol name
	Included []string `json:"included"` // base symbols reachable from Function
}

// Name is the "<library>-<function>" identifier.
func (c Component) Name() string {
	return fmt.Sprintf("%s-%s", c.Library, c.Function)
}

func (c Component) Description() string {
	return fmt.Sprintf("The %s function from the %s library.", c.Function, c.Library)
}

// Tags returns the component's labels: its library, its type and one
// function tag per included function plus the function itself.
func (c Component) Tags() TagSet {
	tags := NewTagSet(
		Tag{Key: TagLibrary, Value: c.Library},
		Tag{Key: TagType, Value: ComponentType},
	)
	for _, fn := range c.Included {
		tags.Add(TagFunction, fmt.Sprintf("%s-%s", c.Library, fn))
	}
	tags.Add(TagFunction, c.Name())
	return tags
}

// Marshal encodes the component in the exchange format.
func (c Component) Marshal() ([]byte, error) {
	if c.Included == nil {
		c.Included = []string{}
	}
	return json.Marshal(c)
}

// UnmarshalComponent decodes a component produced by Marshal.
func UnmarshalComponent(data []byte) (Component, error) {
	var c Component
	if err := json.Unmarshal(data, &c); err != nil {
		return Component{}, fmt.Errorf("failed to decode component: %w", err)
	}
	if c.Library == "" || c.Function == "" {
		return Component{}, errors.New("component requires library and function")
	}
	if c.Included == nil {
		c.Included = []string{}
	}
	return c, nil
}
